package main

import (
	"context"
	stderrors "errors"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-shell/config"
	"github.com/wippyai/wasm-shell/offline"
	"github.com/wippyai/wasm-shell/offline/sqlite"
	"github.com/wippyai/wasm-shell/shell"
)

const shutdownTimeout = 10 * time.Second

// openStorage returns the offline cache storage and its closer.
func openStorage(path string) (offline.Storage, func() error, error) {
	if path == "" {
		return offline.NewMemoryStorage(), func() error { return nil }, nil
	}
	s, err := sqlite.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

// newController builds the offline controller fronting opts.cfg.Origin.
func newController(opts options, log *zap.Logger) (*offline.Controller, func() error, error) {
	origin, err := parseOrigin(opts.cfg.Origin)
	if err != nil {
		return nil, nil, err
	}
	manifest, err := loadManifest(opts.manifestFile, log)
	if err != nil {
		return nil, nil, err
	}
	storage, closeStorage, err := openStorage(opts.cfg.CacheDB)
	if err != nil {
		return nil, nil, err
	}
	c, err := offline.New(storage, nil, origin,
		offline.WithManifest(manifest),
		offline.WithScope(origin.Path),
		offline.WithLogger(log.Named("offline")))
	if err != nil {
		_ = closeStorage()
		return nil, nil, err
	}
	return c, closeStorage, nil
}

func newHandler(ctx context.Context, opts options, log *zap.Logger) (*shell.Server, func() error, error) {
	serverOpts := []shell.Option{
		shell.WithIsolation(opts.cfg.Isolation),
		shell.WithLogger(log.Named("shell")),
	}

	if opts.cfg.Origin == "" {
		manifest, err := loadManifest(opts.manifestFile, log)
		if err != nil {
			return nil, nil, err
		}
		srv, err := shell.New(os.DirFS(opts.cfg.Dir), append(serverOpts, shell.WithManifest(manifest))...)
		if err != nil {
			return nil, nil, err
		}
		return srv, func() error { return nil }, nil
	}

	c, closeStorage, err := newController(opts, log)
	if err != nil {
		return nil, nil, err
	}
	c.RegisterAsync(ctx)

	srv, err := shell.NewProxy(c, serverOpts...)
	if err != nil {
		c.Wait()
		_ = closeStorage()
		return nil, nil, err
	}
	cleanup := func() error {
		c.Wait()
		return closeStorage()
	}
	return srv, cleanup, nil
}

func serve(ctx context.Context, opts options, log *zap.Logger) error {
	shutdownTracing, err := config.SetupTracing(ctx, opts.cfg)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	handler, cleanup, err := newHandler(ctx, opts, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := cleanup(); err != nil {
			log.Warn("cleanup failed", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              opts.cfg.Bind,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("serving shell",
			zap.String("addr", opts.cfg.Bind),
			zap.String("dir", opts.cfg.Dir),
			zap.String("origin", opts.cfg.Origin),
			zap.Bool("tls", opts.cfg.TLS()),
			zap.Bool("isolation", opts.cfg.Isolation),
			zap.String("cache", handler.Manifest().CacheName()),
			zap.String("worker", handler.WorkerPath()))
		if opts.cfg.TLS() {
			errCh <- srv.ListenAndServeTLS(opts.cfg.TLSCert, opts.cfg.TLSKey)
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}
