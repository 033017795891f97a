package offline

import (
	"io"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-shell/errors"
)

// Fetch answers req cache-first. Out-of-scope requests and every request
// before activation go to the network. An in-scope GET that exactly matches
// a cached key is answered from the cache; anything else goes to the network
// and is not cached. Network errors are returned unchanged.
func (c *Controller) Fetch(req *http.Request) (*http.Response, error) {
	ctx, span := c.tracer.Start(req.Context(), "offline.fetch", trace.WithAttributes(
		attribute.String("http.request.method", req.Method),
		attribute.String("url.path", req.URL.Path),
	))
	defer span.End()
	req = req.WithContext(ctx)

	c.mu.RLock()
	cache, state := c.cache, c.state
	c.mu.RUnlock()

	if state == StateActivated && cache != nil && req.Method == http.MethodGet && c.inScope(req.URL) {
		key := requestKey(req.URL)
		entry, ok, err := cache.Match(ctx, key)
		switch {
		case err != nil:
			c.log.Warn("cache match failed", zap.String("key", key), zap.Error(err))
		case ok:
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return entry.Response(req), nil
		}
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	resp, err := c.network.RoundTrip(c.outbound(req))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return resp, nil
}

// RoundTrip implements http.RoundTripper so the controller can back an
// http.Client.
func (c *Controller) RoundTrip(req *http.Request) (*http.Response, error) {
	return c.Fetch(req)
}

// outbound points an origin-relative request at the origin.
func (c *Controller) outbound(req *http.Request) *http.Request {
	if req.URL.Host != "" && req.RequestURI == "" {
		return req
	}
	out := req.Clone(req.Context())
	out.RequestURI = ""
	if out.URL.Host == "" {
		out.URL.Scheme = c.origin.Scheme
		out.URL.Host = c.origin.Host
		out.Host = c.origin.Host
	}
	return out
}

// ServeHTTP serves incoming requests through Fetch. A network failure is
// answered with 502. Upstream headers replace any the caller already set, so
// a header never carries two values.
func (c *Controller) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	in := r.Clone(r.Context())
	in.RequestURI = ""
	in.URL.Scheme = c.origin.Scheme
	in.URL.Host = c.origin.Host
	in.Host = c.origin.Host

	resp, err := c.Fetch(in)
	if err != nil {
		err = errors.Network(errors.PhaseFetch, r.URL.Path, err)
		c.log.Warn("upstream fetch failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	header := w.Header()
	for k, vs := range resp.Header {
		header[k] = append([]string(nil), vs...)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		c.log.Debug("response copy interrupted", zap.String("path", r.URL.Path), zap.Error(err))
	}
}
