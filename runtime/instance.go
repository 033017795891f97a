package runtime

import (
	"context"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-shell/engine"
	"github.com/wippyai/wasm-shell/errors"
)

// Function describes one exported function by its core signature.
type Function struct {
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

// Instance is the module handle: the instantiated module's exported
// surface. It is owned by its caller and never persisted.
type Instance struct {
	module   *engine.WazeroModule
	instance api.Module
	path     string
	closed   bool
	mu       sync.Mutex
}

// Path is the module path this instance was loaded from.
func (i *Instance) Path() string {
	return i.path
}

// Exports returns the sorted names of exported functions.
func (i *Instance) Exports() []string {
	defs := i.module.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Functions returns every exported function with its signature, sorted by name.
func (i *Instance) Functions() []Function {
	defs := i.module.ExportedFunctions()
	funcs := make([]Function, 0, len(defs))
	for name, def := range defs {
		funcs = append(funcs, Function{
			Name:    name,
			Params:  def.ParamTypes(),
			Results: def.ResultTypes(),
		})
	}
	sort.Slice(funcs, func(a, b int) bool { return funcs[a].Name < funcs[b].Name })
	return funcs
}

// Call invokes an exported function with raw core values. Use
// api.EncodeI32, api.EncodeF64 and friends to build args.
func (i *Instance) Call(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil, errors.New(errors.PhaseLoad, errors.KindState).
			Target(i.path).
			Detail("instance closed").
			Build()
	}

	fn := i.instance.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseLoad, "export", name)
	}

	if want := len(fn.Definition().ParamTypes()); want != len(args) {
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Target(name).
			Detail("expected %d arguments, got %d", want, len(args)).
			Build()
	}

	return fn.Call(ctx, args...)
}

func (i *Instance) Close(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil
	}
	i.closed = true

	err := i.instance.Close(ctx)
	if cerr := i.module.Close(ctx); err == nil {
		err = cerr
	}
	return err
}
