// Package wasmshell bootstraps a WebAssembly application shell that needs
// isolated shared memory and bulk memory operations, and delivers that shell
// offline-first.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	wasmshell/          Root package with the asset manifest and probe modules
//	├── gate/           Capability gate deciding whether the module may load
//	├── engine/         wazero integration answering capability probes natively
//	├── runtime/        Module loader producing the module handle
//	├── offline/        Cache-first offline controller (install/activate/fetch)
//	│   └── sqlite/     Persistent cache storage
//	├── shell/          HTTP server for the shell and its service worker script
//	├── config/         Environment configuration, logging and tracing setup
//	├── errors/         Structured error types
//	└── cmd/
//	    ├── shellhost/  Shell server, native preflight and module inspector
//	    └── bootstrap/  Browser entry point (js/wasm)
//
// # Capability Gate
//
// The gate checks, in order, service worker support, shared memory and bulk
// memory with passive data segments. A missing service worker is reported at
// once. The other two are reported only after the cross-origin isolation
// bootstrap has already reloaded the page, because before that reload they
// are expected to be missing:
//
//	g := gate.New(env, markers, alerter, loader)
//	d := g.Evaluate(ctx)
//	if d.Outcome == gate.OutcomeLoading {
//	    h, err := d.Load.Wait(ctx)
//	    ...
//	}
//
// # Offline Controller
//
// The controller caches every manifest asset in one all-or-nothing batch, then
// serves cache hits verbatim and forwards misses to the network:
//
//	c, err := offline.New(offline.NewMemoryStorage(), nil, origin)
//	if err != nil {
//	    return err
//	}
//	c.RegisterAsync(ctx)
//	http.ListenAndServe(":8000", c)
//
// # Thread Safety
//
// Gate and Controller are safe for concurrent use. A module handle returned
// by the loader is owned by its caller and is NOT thread-safe.
package wasmshell
