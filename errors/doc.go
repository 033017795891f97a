// Package errors provides structured error types for the wasm-shell packages.
//
// Errors are categorized by Phase (where in the shell lifecycle the error
// occurred) and Kind (error category). The Error type carries the target asset,
// URL or capability, an optional HTTP status and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseInstall, errors.KindBadStatus).
//		Target("./app_bg.wasm").
//		Status(404).
//		Detail("response is not ok").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.BadStatus(errors.PhaseInstall, "./index.js", 500)
//	err := errors.Network(errors.PhaseFetch, "/index.html", cause)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
