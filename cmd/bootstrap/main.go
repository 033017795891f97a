//go:build js && wasm

// Command bootstrap runs the capability gate in the document context and,
// when every check passes, starts the application module.
package main

import (
	"context"
	"syscall/js"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-shell/gate"
)

// consoleSink writes log lines to the browser console.
type consoleSink struct {
	console js.Value
}

func (s consoleSink) Write(p []byte) (int, error) {
	s.console.Call("log", string(p))
	return len(p), nil
}

func (consoleSink) Sync() error { return nil }

func newLogger() *zap.Logger {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = ""
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(enc),
		zapcore.AddSync(consoleSink{console: js.Global().Get("console")}),
		zapcore.InfoLevel,
	)
	return zap.New(core).Named("shell")
}

func main() {
	log := newLogger()
	gate.SetLogger(log)

	browser := gate.NewBrowser()
	g := gate.New(browser, browser, browser, browser,
		gate.WithReporter(browser),
		gate.WithLogger(log),
	)

	ctx := context.Background()
	d := g.Evaluate(ctx)
	if d.Outcome != gate.OutcomeLoading {
		return
	}

	h, err := d.Load.Wait(ctx)
	if err != nil {
		// Already logged by the gate.
		return
	}
	log.Info("application started", zap.Strings("exports", h.Exports()))
}
