package wasmshell

import (
	"os"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/wippyai/wasm-shell/errors"
)

const (
	// ModulePath is where the binary module lives relative to the shell scope.
	ModulePath = "./app_bg.wasm"

	// ReloadMarkerKey is the session storage key the cross-origin isolation
	// bootstrap sets right before it forces a reload.
	ReloadMarkerKey = "coiReloadedBySelf"

	// DefaultName and DefaultVersion make up the default cache name.
	DefaultName    = "shell"
	DefaultVersion = "v1"
)

// Manifest is the ordered, fixed list of shell assets that must be
// available offline. The cache that holds them is versioned by name.
type Manifest struct {
	Name    string   `yaml:"name"`
	Version string   `yaml:"version"`
	Assets  []string `yaml:"assets"`
}

// DefaultManifest returns the application shell: root document, loader
// script, worker script, generated bindings, icon and the binary module.
func DefaultManifest() Manifest {
	return Manifest{
		Name:    DefaultName,
		Version: DefaultVersion,
		Assets: []string{
			"./",
			"./index.html",
			"./index.js",
			"./sw.js",
			"./app.js",
			"./favicon.ico",
			ModulePath,
		},
	}
}

// CacheName is the name of the cache bucket holding this manifest version.
func (m Manifest) CacheName() string {
	return m.Name + "-" + m.Version
}

// CachePrefix is shared by every version of this manifest's cache.
func (m Manifest) CachePrefix() string {
	return m.Name + "-"
}

// Has reports whether asset is listed.
func (m Manifest) Has(asset string) bool {
	for _, a := range m.Assets {
		if a == asset {
			return true
		}
	}
	return false
}

// Validate checks the manifest is usable as a cache snapshot.
func (m Manifest) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return errors.InvalidInput(errors.PhaseConfig, "manifest name is required")
	}
	if strings.TrimSpace(m.Version) == "" {
		return errors.InvalidInput(errors.PhaseConfig, "manifest version is required")
	}
	if len(m.Assets) == 0 {
		return errors.InvalidInput(errors.PhaseConfig, "manifest lists no assets")
	}

	seen := make(map[string]struct{}, len(m.Assets))
	for _, asset := range m.Assets {
		if !strings.HasPrefix(asset, "./") {
			return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Target(asset).
				Detail("asset paths must be relative to the scope and start with ./").
				Build()
		}
		if escapesScope(asset) {
			return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Target(asset).
				Detail("asset escapes the scope").
				Build()
		}
		if _, dup := seen[asset]; dup {
			return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Target(asset).
				Detail("duplicate asset").
				Build()
		}
		seen[asset] = struct{}{}
	}
	return nil
}

func escapesScope(asset string) bool {
	for _, seg := range strings.Split(asset[2:], "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// LoadManifest reads a YAML manifest. Fields left empty fall back to the
// default manifest.
func LoadManifest(filename string) (Manifest, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Manifest{}, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read manifest")
	}
	return ParseManifest(data)
}

// ParseManifest decodes YAML manifest bytes.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "parse manifest")
	}

	def := DefaultManifest()
	if m.Name == "" {
		m.Name = def.Name
	}
	if m.Version == "" {
		m.Version = def.Version
	}
	if len(m.Assets) == 0 {
		m.Assets = def.Assets
	}

	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}
