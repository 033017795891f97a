// Package gate decides whether the binary module may be instantiated in the
// current environment.
//
// Three capabilities are checked in a fixed order, stopping at the first one
// that is missing:
//
//	CapabilityServiceWorker  reported at once, no reload can add it
//	CapabilitySharedMemory   reported only on the corrective reload
//	CapabilityBulkMemory     reported only on the corrective reload
//
// Shared memory and bulk memory are usually missing on a first visit because
// the page is not yet served with cross-origin isolation headers. A separate
// bootstrap installs those headers, sets a session marker and reloads. The
// marker is read as an Attempt: AttemptFirst stays silent, AttemptCorrective
// alerts. Absence of the marker is never read as "environment is fine".
//
// When every check passes, Evaluate starts one asynchronous Loader.Load and
// returns a Load to wait on. A rejected load is logged and never alerted.
//
// Hosts plug in through Environment, MarkerStore, Alerter, Loader and the
// optional Reporter. Browser binds them to syscall/js under GOOS=js; the
// engine package provides a wazero-backed Environment for native preflight.
package gate
