package engine

import (
	"context"

	"go.uber.org/zap"

	wasmshell "github.com/wippyai/wasm-shell"
	"github.com/wippyai/wasm-shell/errors"
)

// Environment answers the gate's capability probes natively by validating
// probe modules against a WazeroEngine.
type Environment struct {
	engine *WazeroEngine

	// ServiceWorker reports whether an offline controller can be registered.
	ServiceWorker bool
}

// NewEnvironment returns an Environment backed by e.
func NewEnvironment(e *WazeroEngine, serviceWorker bool) *Environment {
	return &Environment{engine: e, ServiceWorker: serviceWorker}
}

func (e *Environment) ServiceWorkers() bool {
	return e.ServiceWorker
}

// SharedMemory validates a module declaring shared memory.
func (e *Environment) SharedMemory() bool {
	return e.ValidateModule(wasmshell.SharedMemoryProbe())
}

func (e *Environment) ValidateModule(bin []byte) bool {
	if err := e.engine.Validate(context.Background(), bin); err != nil {
		Logger().Debug("probe rejected",
			zap.Error(errors.Wrap(errors.PhaseProbe, errors.KindUnsupported, err, "validate probe module")))
		return false
	}
	return true
}
