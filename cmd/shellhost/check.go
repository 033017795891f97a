package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"go.uber.org/zap"

	wasmshell "github.com/wippyai/wasm-shell"
	"github.com/wippyai/wasm-shell/engine"
	"github.com/wippyai/wasm-shell/gate"
	"github.com/wippyai/wasm-shell/runtime"
)

// newSource picks where modules are read from: the proxied origin, through
// the offline cache, or the shell directory.
func newSource(ctx context.Context, opts options, log *zap.Logger) (runtime.Source, func() error, error) {
	if opts.cfg.Origin == "" {
		return runtime.FSSource{FS: os.DirFS(opts.cfg.Dir)}, func() error { return nil }, nil
	}

	c, closeStorage, err := newController(opts, log)
	if err != nil {
		return nil, nil, err
	}
	if err := c.Register(ctx); err != nil {
		log.Warn("offline cache unavailable, reading from network", zap.Error(err))
	}
	base := c.Origin()
	base.Path = c.Scope()
	src := runtime.HTTPSource{
		Client: &http.Client{Transport: c},
		Base:   base,
	}
	return src, closeStorage, nil
}

// runCheck evaluates the capability gate natively against the configured
// module and reports the decision to out. It returns false when the gate
// alerted or the module failed to load.
func runCheck(ctx context.Context, opts options, log *zap.Logger, out io.Writer) (bool, error) {
	eng, err := engine.NewWazeroEngineWithConfig(ctx, &engine.Config{Features: opts.features})
	if err != nil {
		return false, err
	}
	defer eng.Close(ctx)

	src, closeSource, err := newSource(ctx, opts, log)
	if err != nil {
		return false, err
	}
	defer func() { _ = closeSource() }()

	markers := gate.StaticMarkers{}
	if opts.reloaded {
		markers[wasmshell.ReloadMarkerKey] = "1"
	}

	rt := runtime.NewWithEngine(eng, src)
	g := gate.New(
		engine.NewEnvironment(eng, !opts.noSW),
		markers,
		&gate.WriterAlerter{W: out},
		rt,
		gate.WithLogger(log.Named("gate")),
	)

	d := g.Evaluate(ctx)
	fmt.Fprintf(out, "features: %s\n", opts.features)
	fmt.Fprintf(out, "attempt:  %s\n", d.Attempt)
	fmt.Fprintf(out, "outcome:  %s\n", d.Outcome)

	switch d.Outcome {
	case gate.OutcomeDeferred:
		fmt.Fprintf(out, "missing:  %s (silent until the corrective reload, rerun with -reloaded)\n", d.Missing)
		return true, nil
	case gate.OutcomeFailed:
		fmt.Fprintf(out, "missing:  %s: %s\n", d.Missing, d.Missing.Detail())
		return false, nil
	}

	h, err := d.Load.Wait(ctx)
	if err != nil {
		fmt.Fprintf(out, "load:     failed: %v\n", err)
		return false, nil
	}
	inst := h.(*runtime.Instance)
	defer inst.Close(ctx)

	fmt.Fprintf(out, "module:   %s\n", inst.Path())
	for _, f := range inst.Functions() {
		fmt.Fprintf(out, "  %s\n", f.Signature())
	}
	return true, nil
}
