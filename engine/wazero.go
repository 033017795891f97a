package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"
)

// Features is the set of optional WebAssembly features a host exposes.
type Features uint8

const (
	// FeatureBulkMemory enables bulk memory operations and passive data segments.
	FeatureBulkMemory Features = 1 << iota
	// FeatureThreads enables shared linear memory and atomics.
	FeatureThreads

	// FeaturesNone is a host that only speaks the MVP plus mutable globals.
	FeaturesNone Features = 0
	// FeaturesIsolated matches a current browser running cross-origin isolated.
	FeaturesIsolated = FeatureBulkMemory | FeatureThreads
)

var featureNames = []struct {
	name string
	bit  Features
}{
	{"bulk-memory", FeatureBulkMemory},
	{"threads", FeatureThreads},
}

func (f Features) String() string {
	if f == FeaturesNone {
		return "none"
	}
	var parts []string
	for _, n := range featureNames {
		if f&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, ",")
}

// ParseFeatures parses a comma separated feature list such as
// "bulk-memory,threads". "none" and the empty string mean FeaturesNone.
func ParseFeatures(s string) (Features, error) {
	var f Features
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" || part == "none" {
			continue
		}
		found := false
		for _, n := range featureNames {
			if n.name == part {
				f |= n.bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown feature %q", part)
		}
	}
	return f, nil
}

// Config holds configuration for engine creation
type Config struct {
	// Features selects the optional WebAssembly features the engine accepts.
	Features Features

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32
}

// DefaultConfig accepts everything an isolated browser would.
func DefaultConfig() *Config {
	return &Config{Features: FeaturesIsolated}
}

// CoreFeatures maps Features onto wazero core features.
func (c *Config) CoreFeatures() api.CoreFeatures {
	features := api.CoreFeaturesV2
	if c.Features&FeatureBulkMemory == 0 {
		// reference-types depends on bulk-memory
		features = features.
			SetEnabled(api.CoreFeatureBulkMemoryOperations, false).
			SetEnabled(api.CoreFeatureReferenceTypes, false)
	}
	if c.Features&FeatureThreads != 0 {
		features |= experimental.CoreFeaturesThreads
	}
	return features
}

// WazeroEngine compiles and instantiates core modules with a fixed feature set
type WazeroEngine struct {
	runtime  wazero.Runtime
	features Features
}

// NewWazeroEngine creates a new wazero-based engine with DefaultConfig
func NewWazeroEngine(ctx context.Context) (*WazeroEngine, error) {
	return NewWazeroEngineWithConfig(ctx, nil)
}

// NewWazeroEngineWithConfig creates a new engine with custom configuration
func NewWazeroEngineWithConfig(ctx context.Context, cfg *Config) (*WazeroEngine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	runtimeCfg := wazero.NewRuntimeConfig().WithCoreFeatures(cfg.CoreFeatures())
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	Logger().Debug("engine created", zap.Stringer("features", cfg.Features))
	return &WazeroEngine{
		runtime:  wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		features: cfg.Features,
	}, nil
}

// Features returns the feature set this engine accepts.
func (e *WazeroEngine) Features() Features {
	return e.features
}

// Validate reports whether wasmBytes decodes and validates under the
// engine's feature set. Nothing is kept.
func (e *WazeroEngine) Validate(ctx context.Context, wasmBytes []byte) error {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return err
	}
	return compiled.Close(ctx)
}

// LoadModule compiles wasmBytes for later instantiation.
func (e *WazeroEngine) LoadModule(ctx context.Context, wasmBytes []byte) (*WazeroModule, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("compile failed: %w", err)
	}
	return &WazeroModule{
		runtime:  e.runtime,
		compiled: compiled,
	}, nil
}

func (e *WazeroEngine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// WazeroModule is a compiled WASM module
type WazeroModule struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
}

// Instantiate creates a running instance. An empty name instantiates
// anonymously so the same module can be instantiated more than once.
func (m *WazeroModule) Instantiate(ctx context.Context, name string) (api.Module, error) {
	cfg := wazero.NewModuleConfig().WithName(name)
	mod, err := m.runtime.InstantiateModule(ctx, m.compiled, cfg)
	if err != nil {
		return nil, fmt.Errorf("instantiate failed: %w", err)
	}
	return mod, nil
}

// ExportedFunctions returns the module's exported function definitions.
func (m *WazeroModule) ExportedFunctions() map[string]api.FunctionDefinition {
	return m.compiled.ExportedFunctions()
}

// ImportedFunctions returns "module.name" keys of every imported function,
// sorted.
func (m *WazeroModule) ImportedFunctions() []string {
	defs := m.compiled.ImportedFunctions()
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		mod, name, _ := def.Import()
		names = append(names, mod+"."+name)
	}
	sort.Strings(names)
	return names
}

func (m *WazeroModule) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}
