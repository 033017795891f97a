package runtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-shell/engine"
	"github.com/wippyai/wasm-shell/errors"
	"github.com/wippyai/wasm-shell/gate"
)

// Runtime reads binary modules from a Source and instantiates them on a
// feature-configured engine.
type Runtime struct {
	engine *engine.WazeroEngine
	source Source
	owned  bool
}

// New creates a Runtime with its own engine configured by cfg (nil means
// engine.DefaultConfig).
func New(ctx context.Context, source Source, cfg *engine.Config) (*Runtime, error) {
	eng, err := engine.NewWazeroEngineWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Load("create engine", err)
	}
	return &Runtime{engine: eng, source: source, owned: true}, nil
}

// NewWithEngine creates a Runtime sharing eng. Closing the Runtime leaves
// eng open.
func NewWithEngine(eng *engine.WazeroEngine, source Source) *Runtime {
	return &Runtime{engine: eng, source: source}
}

// Engine returns the underlying engine.
func (r *Runtime) Engine() *engine.WazeroEngine {
	return r.engine
}

// Close releases the engine if this Runtime created it.
// All instances must be closed before calling this.
func (r *Runtime) Close(ctx context.Context) error {
	if !r.owned {
		return nil
	}
	return r.engine.Close(ctx)
}

// Load implements gate.Loader.
func (r *Runtime) Load(ctx context.Context, path string) (gate.Handle, error) {
	inst, err := r.Instantiate(ctx, path)
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// Instantiate reads the module at path, compiles it and instantiates it.
func (r *Runtime) Instantiate(ctx context.Context, path string) (*Instance, error) {
	if r.source == nil {
		return nil, errors.InvalidInput(errors.PhaseLoad, "no module source configured")
	}

	wasmBytes, err := r.source.ReadModule(ctx, path)
	if err != nil {
		return nil, err
	}

	mod, err := r.engine.LoadModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidData).
			Target(path).
			Detail("compile module").
			Cause(err).
			Build()
	}

	inst, err := mod.Instantiate(ctx, "")
	if err != nil {
		_ = mod.Close(ctx)
		return nil, errors.Instantiation(path, err)
	}

	Logger().Debug("module instantiated",
		zap.String("path", path),
		zap.Int("bytes", len(wasmBytes)),
		zap.Strings("imports", mod.ImportedFunctions()))

	return &Instance{module: mod, instance: inst, path: path}, nil
}
