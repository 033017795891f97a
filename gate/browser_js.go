//go:build js && wasm

package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"syscall/js"

	"github.com/wippyai/wasm-shell/errors"
)

// Browser binds the gate to the document context through syscall/js.
// It implements Environment, MarkerStore, Alerter, Loader and Reporter.
type Browser struct {
	global js.Value

	// BindingsGlobal names the generated bindings' init function.
	BindingsGlobal string

	// DiagnosticsURL receives reports through navigator.sendBeacon.
	// Empty disables reporting.
	DiagnosticsURL string
}

// NewBrowser returns a Browser bound to the global object.
func NewBrowser() *Browser {
	return &Browser{
		global:         js.Global(),
		BindingsGlobal: "wasm_bindgen",
		DiagnosticsURL: "/_shell/diagnostics",
	}
}

// ServiceWorkers implements Environment. Private modes often hide
// navigator.serviceWorker.
func (b *Browser) ServiceWorkers() bool {
	nav := b.global.Get("navigator")
	return nav.Truthy() && nav.Get("serviceWorker").Truthy()
}

// SharedMemory implements Environment.
func (b *Browser) SharedMemory() bool {
	return b.global.Get("SharedArrayBuffer").Type() == js.TypeFunction
}

// ValidateModule implements Environment with WebAssembly.validate.
func (b *Browser) ValidateModule(bin []byte) bool {
	wa := b.global.Get("WebAssembly")
	if wa.Type() != js.TypeObject {
		return false
	}
	buf := b.global.Get("Uint8Array").New(len(bin))
	js.CopyBytesToJS(buf, bin)
	return wa.Call("validate", buf).Bool()
}

// Get implements MarkerStore over sessionStorage.
func (b *Browser) Get(key string) (v string, ok bool) {
	// Storage access throws in some sandboxed frames.
	defer func() {
		if recover() != nil {
			v, ok = "", false
		}
	}()

	storage := b.global.Get("sessionStorage")
	if !storage.Truthy() {
		return "", false
	}
	item := storage.Call("getItem", key)
	if item.IsNull() || item.IsUndefined() {
		return "", false
	}
	return item.String(), true
}

// Alert implements Alerter with window.alert.
func (b *Browser) Alert(msg string) {
	b.global.Call("alert", msg)
}

// Report implements Reporter with navigator.sendBeacon.
func (b *Browser) Report(_ context.Context, r Report) {
	if b.DiagnosticsURL == "" {
		return
	}
	nav := b.global.Get("navigator")
	if !nav.Truthy() || nav.Get("sendBeacon").Type() != js.TypeFunction {
		return
	}
	body, err := json.Marshal(r)
	if err != nil {
		return
	}
	nav.Call("sendBeacon", b.DiagnosticsURL, string(body))
}

// Load implements Loader by calling the generated bindings' init function
// with the module path and awaiting its promise.
func (b *Browser) Load(ctx context.Context, path string) (Handle, error) {
	init := b.global.Get(b.BindingsGlobal)
	if init.Type() != js.TypeFunction {
		return nil, errors.NotFound(errors.PhaseLoad, "bindings", b.BindingsGlobal)
	}

	exports, err := await(ctx, init.Invoke(path))
	if err != nil {
		return nil, errors.Instantiation(path, err)
	}
	return &browserHandle{exports: exports}, nil
}

type promiseResult struct {
	value js.Value
	err   error
}

func await(ctx context.Context, promise js.Value) (js.Value, error) {
	ch := make(chan promiseResult, 1)

	onResolve := js.FuncOf(func(_ js.Value, args []js.Value) any {
		v := js.Undefined()
		if len(args) > 0 {
			v = args[0]
		}
		ch <- promiseResult{value: v}
		return nil
	})
	onReject := js.FuncOf(func(_ js.Value, args []js.Value) any {
		msg := "promise rejected"
		if len(args) > 0 {
			msg = args[0].Call("toString").String()
		}
		ch <- promiseResult{err: fmt.Errorf("%s", msg)}
		return nil
	})
	release := func() {
		onResolve.Release()
		onReject.Release()
	}

	promise.Call("then", onResolve, onReject)

	select {
	case r := <-ch:
		release()
		return r.value, r.err
	case <-ctx.Done():
		// The callbacks must outlive the wait.
		go func() {
			<-ch
			release()
		}()
		return js.Undefined(), ctx.Err()
	}
}

type browserHandle struct {
	exports js.Value
}

func (h *browserHandle) Exports() []string {
	if !h.exports.Truthy() {
		return nil
	}
	keys := js.Global().Get("Object").Call("keys", h.exports)
	names := make([]string, keys.Length())
	for i := range names {
		names[i] = keys.Index(i).String()
	}
	return names
}
