package gate

// Capability is one platform feature the binary module requires.
type Capability int

const (
	CapabilityNone Capability = iota
	CapabilityServiceWorker
	CapabilitySharedMemory
	CapabilityBulkMemory
)

func (c Capability) String() string {
	switch c {
	case CapabilityServiceWorker:
		return "service-worker"
	case CapabilitySharedMemory:
		return "shared-memory"
	case CapabilityBulkMemory:
		return "bulk-memory"
	default:
		return "none"
	}
}

// Detail is the diagnostic description of a missing capability. It is
// logged and reported, never shown to the user.
func (c Capability) Detail() string {
	switch c {
	case CapabilityServiceWorker:
		return "service worker not available, perhaps due to private mode"
	case CapabilitySharedMemory:
		return "this browser does not have SharedArrayBuffer support enabled"
	case CapabilityBulkMemory:
		return "this browser does not support passive wasm memory"
	default:
		return ""
	}
}

// Policy decides when a missing capability is reported.
type Policy int

const (
	// PolicyImmediate reports on every attempt. No reload can fix it.
	PolicyImmediate Policy = iota
	// PolicyDeferred stays silent on the first attempt, since the cross-origin
	// isolation bootstrap may still reload the page with the right headers.
	PolicyDeferred
)

// Policy returns the reporting policy for c.
func (c Capability) Policy() Policy {
	if c == CapabilityServiceWorker {
		return PolicyImmediate
	}
	return PolicyDeferred
}

// Environment answers capability probes for the hosting context.
type Environment interface {
	// ServiceWorkers reports whether background workers can be registered.
	ServiceWorkers() bool
	// SharedMemory reports whether memory can be shared across contexts.
	SharedMemory() bool
	// ValidateModule reports whether bin is a module the host accepts.
	ValidateModule(bin []byte) bool
}

// CapabilitySet is evaluated left to right; later checks are meaningless once
// an earlier prerequisite is absent.
var CapabilitySet = [...]Capability{
	CapabilityServiceWorker,
	CapabilitySharedMemory,
	CapabilityBulkMemory,
}

func present(env Environment, c Capability, probe func() []byte) bool {
	switch c {
	case CapabilityServiceWorker:
		return env.ServiceWorkers()
	case CapabilitySharedMemory:
		return env.SharedMemory()
	case CapabilityBulkMemory:
		// Feature flags for this instruction class are unreliable, so
		// validate a real module that uses it.
		return env.ValidateModule(probe())
	default:
		return true
	}
}

// FirstMissing runs the capability checks in order and returns the first
// capability env lacks, or CapabilityNone.
func FirstMissing(env Environment, probe func() []byte) Capability {
	for _, c := range CapabilitySet {
		if !present(env, c, probe) {
			return c
		}
	}
	return CapabilityNone
}
