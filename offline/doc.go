// Package offline implements the shell's offline cache controller: a
// cache-first layer that precaches a manifest's assets as one batch and then
// answers exact in-scope GET matches without touching the network.
//
// Lifecycle:
//
//	Uninstalled -> Installing -> Activated
//	                    |
//	                    +-> Redundant (install failed, Register retries)
//
// The controller can act as an http.RoundTripper for clients or as an
// http.Handler fronting an origin. Storage is pluggable: NewMemoryStorage
// keeps caches in process, and the sqlite subpackage persists them.
package offline
