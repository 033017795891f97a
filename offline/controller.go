package offline

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	wasmshell "github.com/wippyai/wasm-shell"
	"github.com/wippyai/wasm-shell/errors"
)

const tracerName = "github.com/wippyai/wasm-shell/offline"

// Option configures a Controller.
type Option func(*Controller)

// WithManifest sets the cache name and the asset list installed on Register.
func WithManifest(m wasmshell.Manifest) Option {
	return func(c *Controller) {
		c.manifest = m
	}
}

// WithScope limits interception to paths under scope. Defaults to "/".
func WithScope(scope string) Option {
	return func(c *Controller) {
		if !strings.HasPrefix(scope, "/") {
			scope = "/" + scope
		}
		if !strings.HasSuffix(scope, "/") {
			scope += "/"
		}
		c.scope = scope
	}
}

// WithLogger sets the controller's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		c.log = l
	}
}

// WithTracer sets the tracer used for install, activate and fetch spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) {
		c.tracer = t
	}
}

// registration is one in-flight Register call shared by concurrent callers.
type registration struct {
	done chan struct{}
	err  error
}

// Controller is a cache-first offline layer in front of an origin. It
// precaches the manifest assets on Register and afterwards answers exact
// in-scope GET matches from the cache without touching the network.
type Controller struct {
	storage  Storage
	network  http.RoundTripper
	origin   *url.URL
	log      *zap.Logger
	tracer   trace.Tracer
	cache    Cache
	inflight *registration
	scope    string
	manifest wasmshell.Manifest
	pending  sync.WaitGroup
	mu       sync.RWMutex
	state    State
}

// New creates a Controller for origin. A nil network uses
// http.DefaultTransport.
func New(storage Storage, network http.RoundTripper, origin *url.URL, opts ...Option) (*Controller, error) {
	if storage == nil {
		return nil, errors.InvalidInput(errors.PhaseConfig, "storage is required")
	}
	if origin == nil || origin.Scheme == "" || origin.Host == "" {
		return nil, errors.InvalidInput(errors.PhaseConfig, "origin must be an absolute URL")
	}
	if network == nil {
		network = http.DefaultTransport
	}

	c := &Controller{
		storage:  storage,
		network:  network,
		origin:   &url.URL{Scheme: origin.Scheme, Host: origin.Host},
		scope:    "/",
		manifest: wasmshell.DefaultManifest(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = Logger()
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	if err := c.manifest.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Manifest returns the manifest the controller installs.
func (c *Controller) Manifest() wasmshell.Manifest {
	return c.manifest
}

// Origin returns the origin the controller fronts.
func (c *Controller) Origin() *url.URL {
	u := *c.origin
	return &u
}

// Scope returns the path prefix the controller intercepts, with leading and
// trailing slashes.
func (c *Controller) Scope() string {
	return c.scope
}

// Register installs and activates the cache. It is a no-op once activated,
// and concurrent callers share one in-flight registration. A cache left
// complete by an earlier process is adopted without refetching.
func (c *Controller) Register(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateActivated {
		c.mu.Unlock()
		return nil
	}
	if r := c.inflight; r != nil {
		c.mu.Unlock()
		<-r.done
		return r.err
	}
	r := &registration{done: make(chan struct{})}
	c.inflight = r
	c.state = StateInstalling
	c.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	err := c.register(ctx)

	c.mu.Lock()
	if err != nil {
		c.state = StateRedundant
	}
	c.inflight = nil
	c.mu.Unlock()

	r.err = err
	close(r.done)
	return err
}

func (c *Controller) register(ctx context.Context) error {
	restored, err := c.restore(ctx)
	if err != nil {
		c.log.Warn("inspect existing cache failed", zap.Error(err))
	}
	if !restored {
		if err := c.Install(ctx); err != nil {
			c.log.Error("install failed",
				zap.String("cache", c.manifest.CacheName()),
				zap.Error(err))
			return err
		}
	}
	return c.Activate(ctx)
}

// restore reports whether storage already holds every manifest asset under
// the current cache name.
func (c *Controller) restore(ctx context.Context) (bool, error) {
	name := c.manifest.CacheName()
	ok, err := c.storage.Has(ctx, name)
	if err != nil || !ok {
		return false, err
	}
	cache, err := c.storage.Open(ctx, name)
	if err != nil {
		return false, err
	}
	keys, err := cache.Keys(ctx)
	if err != nil {
		return false, err
	}
	stored := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		stored[k] = struct{}{}
	}
	for _, asset := range c.manifest.Assets {
		if _, ok := stored[c.assetKey(asset)]; !ok {
			return false, nil
		}
	}
	c.log.Info("adopted existing cache", zap.String("cache", name), zap.Int("entries", len(keys)))
	return true, nil
}

// WaitUntil runs fn in the background and keeps Wait blocked until it
// returns. fn gets a context that outlives ctx's cancellation.
func (c *Controller) WaitUntil(ctx context.Context, fn func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		if err := fn(ctx); err != nil {
			c.log.Warn("background task failed", zap.Error(err))
		}
	}()
}

// RegisterAsync starts Register under WaitUntil.
func (c *Controller) RegisterAsync(ctx context.Context) {
	c.WaitUntil(ctx, c.Register)
}

// Wait blocks until every WaitUntil task has returned.
func (c *Controller) Wait() {
	c.pending.Wait()
}

// assetKey maps a manifest asset ("./x") to its cache key under scope.
func (c *Controller) assetKey(asset string) string {
	u, err := c.assetURL(asset)
	if err != nil {
		return c.scope + strings.TrimPrefix(asset, "./")
	}
	return requestKey(u)
}

// requestKey maps a request URL to its cache key: path plus query.
func requestKey(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		return p + "?" + u.RawQuery
	}
	return p
}

// inScope reports whether u targets the controller's origin and scope. A
// URL without a host is taken as origin-relative.
func (c *Controller) inScope(u *url.URL) bool {
	if u.Host != "" && !strings.EqualFold(u.Host, c.origin.Host) {
		return false
	}
	if u.Scheme != "" && u.Scheme != c.origin.Scheme {
		return false
	}
	p := u.Path
	if p == "" {
		p = "/"
	}
	return strings.HasPrefix(p, c.scope)
}

// assetURL resolves a manifest asset against the origin and scope.
func (c *Controller) assetURL(asset string) (*url.URL, error) {
	ref, err := url.Parse(c.scope + strings.TrimPrefix(asset, "./"))
	if err != nil {
		return nil, err
	}
	return c.origin.ResolveReference(ref), nil
}
