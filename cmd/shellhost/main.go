package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	wasmshell "github.com/wippyai/wasm-shell"
	"github.com/wippyai/wasm-shell/config"
	"github.com/wippyai/wasm-shell/engine"
	"github.com/wippyai/wasm-shell/gate"
	"github.com/wippyai/wasm-shell/offline"
	"github.com/wippyai/wasm-shell/runtime"
	"github.com/wippyai/wasm-shell/shell"
)

type options struct {
	cfg          config.Config
	features     engine.Features
	noSW         bool
	reloaded     bool
	check        bool
	interactive  bool
	manifestFile string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		config.Exitf("Error: %v", err)
	}

	var (
		dir          = flag.String("dir", cfg.Dir, "Shell directory to serve")
		bind         = flag.String("bind", cfg.Bind, "Listen address")
		manifestFile = flag.String("manifest", cfg.Manifest, "YAML manifest (default: built-in asset list)")
		origin       = flag.String("origin", cfg.Origin, "Proxy this origin through the offline cache instead of serving -dir")
		cacheDB      = flag.String("cache-db", cfg.CacheDB, "SQLite file for the offline cache (default: in memory)")
		isolation    = flag.Bool("isolation", cfg.Isolation, "Send cross-origin isolation headers")
		tlsCert      = flag.String("tls-cert", cfg.TLSCert, "TLS certificate file")
		tlsKey       = flag.String("tls-key", cfg.TLSKey, "TLS key file")
		features     = flag.String("features", cfg.Features, "Engine features for -check and -i (bulk-memory,threads or none)")
		check        = flag.Bool("check", false, "Run the capability gate against the module and exit")
		reloaded     = flag.Bool("reloaded", false, "With -check: evaluate as the corrective attempt")
		noSW         = flag.Bool("no-service-worker", false, "With -check: emulate a context without service workers")
		interactive  = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	cfg.Dir = *dir
	cfg.Bind = *bind
	cfg.Origin = *origin
	cfg.CacheDB = *cacheDB
	cfg.Isolation = *isolation
	cfg.TLSCert = *tlsCert
	cfg.TLSKey = *tlsKey
	cfg.Features = *features

	if err := cfg.Validate(); err != nil {
		config.Exitf("Error: %v", err)
	}
	feats, err := engine.ParseFeatures(cfg.Features)
	if err != nil {
		config.Exitf("Error: %v", err)
	}

	opts := options{
		cfg:          cfg,
		features:     feats,
		noSW:         *noSW,
		reloaded:     *reloaded,
		check:        *check,
		interactive:  *interactive,
		manifestFile: *manifestFile,
	}

	if opts.interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			config.Exitf("Error: -i needs a terminal")
		}
		if err := runInteractive(opts); err != nil {
			config.Exitf("Error: %v", err)
		}
		return
	}

	log, err := config.NewLogger(cfg.LogLevel, cfg.LogDev || term.IsTerminal(int(os.Stderr.Fd())))
	if err != nil {
		config.Exitf("Error: %v", err)
	}
	defer func() { _ = log.Sync() }()
	setLoggers(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.check {
		ok, err := runCheck(ctx, opts, log, os.Stdout)
		if err != nil {
			config.Exitf("Error: %v", err)
		}
		if !ok {
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, opts, log); err != nil {
		log.Error("shellhost stopped", zap.Error(err))
		os.Exit(1)
	}
}

func setLoggers(log *zap.Logger) {
	gate.SetLogger(log.Named("gate"))
	engine.SetLogger(log.Named("engine"))
	runtime.SetLogger(log.Named("runtime"))
	offline.SetLogger(log.Named("offline"))
	shell.SetLogger(log.Named("shell"))
}

func loadManifest(file string, log *zap.Logger) (wasmshell.Manifest, error) {
	if file == "" {
		return wasmshell.DefaultManifest(), nil
	}
	m, err := wasmshell.LoadManifest(file)
	if err != nil {
		return m, err
	}
	if !m.Has(wasmshell.ModulePath) {
		log.Warn("manifest does not precache the module; it will not load offline",
			zap.String("manifest", file),
			zap.String("module", wasmshell.ModulePath))
	}
	return m, nil
}

func parseOrigin(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("origin %q must be an absolute http(s) URL", raw)
	}
	return u, nil
}
