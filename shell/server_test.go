package shell

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"testing/fstest"

	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	wasmshell "github.com/wippyai/wasm-shell"
	"github.com/wippyai/wasm-shell/offline"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func shellFS() fstest.MapFS {
	return fstest.MapFS{
		"index.html":   {Data: []byte("<html>shell</html>")},
		"index.js":     {Data: []byte("boot()")},
		"app.js":       {Data: []byte("bindings()")},
		"app_bg.wasm":  {Data: []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}},
		"sw.js":        {Data: []byte("stale worker on disk")},
		"favicon.ico":  {Data: []byte("ico")},
		"nested/a.txt": {Data: []byte("a")},
	}
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	s, err := New(shellFS(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func serve(h http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, body))
	return rec
}

func TestServer_IsolationHeaders(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/", "/index.html", "/sw.js", "/missing"} {
		rec := serve(s, http.MethodGet, path, nil)
		for k, v := range IsolationHeaders {
			if got := rec.Header().Get(k); got != v {
				t.Errorf("%s: %s = %q, want %q", path, k, got, v)
			}
		}
	}

	off := newTestServer(t, WithIsolation(false))
	rec := serve(off, http.MethodGet, "/index.html", nil)
	for k := range IsolationHeaders {
		if got := rec.Header().Get(k); got != "" {
			t.Errorf("isolation off: %s = %q", k, got)
		}
	}
}

func TestServer_StaticFiles(t *testing.T) {
	s := newTestServer(t)

	rec := serve(s, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "<html>shell</html>" {
		t.Errorf("/ = %d %q", rec.Code, rec.Body.String())
	}

	rec = serve(s, http.MethodGet, "/index.html", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "<html>shell</html>" {
		t.Errorf("/index.html = %d %q, want the document without a redirect", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/html") {
		t.Errorf("/index.html Content-Type = %q", got)
	}

	rec = serve(s, http.MethodGet, "/index.js", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "boot()" {
		t.Errorf("index.js = %d %q", rec.Code, rec.Body.String())
	}

	rec = serve(s, http.MethodGet, "/app_bg.wasm", nil)
	if got := rec.Header().Get("Content-Type"); got != "application/wasm" {
		t.Errorf("wasm Content-Type = %q", got)
	}

	rec = serve(s, http.MethodGet, "/nope.js", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing file status = %d", rec.Code)
	}
}

func TestServer_WorkerScript(t *testing.T) {
	m := wasmshell.Manifest{Name: "turtle", Version: "v3", Assets: []string{"./", "./index.html", "./app_bg.wasm"}}
	s := newTestServer(t, WithManifest(m))

	rec := serve(s, http.MethodGet, WorkerPath, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/javascript") {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q", got)
	}

	script := rec.Body.String()
	for _, want := range []string{
		`var cacheName = "turtle-v3";`,
		`var cachePrefix = "turtle-";`,
		`var filesToCache = ["./","./index.html","./app_bg.wasm"];`,
		"cache.addAll(filesToCache)",
		"caches.match(e.request)",
	} {
		if !strings.Contains(script, want) {
			t.Errorf("worker script missing %q", want)
		}
	}
	if strings.Contains(script, "stale worker on disk") {
		t.Error("file on disk shadowed the generated worker")
	}
}

func TestServer_InvalidManifest(t *testing.T) {
	if _, err := New(shellFS(), WithManifest(wasmshell.Manifest{Name: "x", Version: "1"})); err == nil {
		t.Fatal("expected error for manifest without assets")
	}
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for nil fs")
	}
}

func TestServer_Diagnostics(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	var parsed []string
	s := newTestServer(t,
		WithLogger(zap.New(core)),
		WithUserAgentParser(func(ua string) UserAgent {
			parsed = append(parsed, ua)
			return UserAgent{Family: "Firefox", Major: "115"}
		}))

	req := httptest.NewRequest(http.MethodPost, DiagnosticsPath,
		strings.NewReader(`{"capability":"shared-memory","attempt":"corrective","detail":"no SharedArrayBuffer"}`))
	req.Header.Set("User-Agent", "Mozilla/5.0 Firefox/115.0")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if len(parsed) != 1 || parsed[0] != "Mozilla/5.0 Firefox/115.0" {
		t.Errorf("parser saw %v", parsed)
	}

	entries := logs.FilterMessage("client capability report").All()
	if len(entries) != 1 {
		t.Fatalf("logged %d reports, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["capability"] != "shared-memory" || fields["attempt"] != "corrective" || fields["browser"] != "Firefox" {
		t.Errorf("fields = %v", fields)
	}

	rec = serve(s, http.MethodPost, DiagnosticsPath, strings.NewReader("not json"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad report status = %d", rec.Code)
	}
}

func TestParseUserAgent(t *testing.T) {
	ua := ParseUserAgent("Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0")
	if ua.Family != "Firefox" || ua.Major != "115" {
		t.Errorf("ParseUserAgent = %+v", ua)
	}
}

func TestProxy(t *testing.T) {
	var hits atomic.Int32
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, "origin "+r.URL.Path)
	}))
	defer origin.Close()

	u, _ := url.Parse(origin.URL)
	m := wasmshell.Manifest{Name: "shell", Version: "v1", Assets: []string{"./", "./index.html"}}
	c, err := offline.New(offline.NewMemoryStorage(), origin.Client().Transport, u, offline.WithManifest(m))
	if err != nil {
		t.Fatalf("offline.New: %v", err)
	}
	if err := c.Register(context.Background()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	p, err := NewProxy(c)
	if err != nil {
		t.Fatalf("NewProxy: %v", err)
	}
	if p.Manifest().CacheName() != "shell-v1" {
		t.Errorf("proxy manifest = %s", p.Manifest().CacheName())
	}

	before := hits.Load()
	rec := serve(p, http.MethodGet, "/index.html", nil)
	if rec.Body.String() != "origin /index.html" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if hits.Load() != before {
		t.Error("cached asset reached the origin")
	}
	if rec.Header().Get("Cross-Origin-Embedder-Policy") != "require-corp" {
		t.Error("proxy response lacks isolation headers")
	}

	rec = serve(p, http.MethodGet, WorkerPath, nil)
	if !strings.Contains(rec.Body.String(), `"./index.html"`) {
		t.Errorf("proxy worker script = %q", rec.Body.String())
	}

	if _, err := NewProxy(nil); err == nil {
		t.Error("nil controller accepted")
	}
}

func TestProxy_OverShellOrigin(t *testing.T) {
	upstream, err := New(shellFS())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	origin := httptest.NewServer(upstream)
	defer origin.Close()

	u, _ := url.Parse(origin.URL)
	c, err := offline.New(offline.NewMemoryStorage(), origin.Client().Transport, u)
	if err != nil {
		t.Fatalf("offline.New: %v", err)
	}
	if err := c.Register(context.Background()); err != nil {
		t.Fatalf("Register against a shell origin: %v", err)
	}

	p, err := NewProxy(c)
	if err != nil {
		t.Fatalf("NewProxy: %v", err)
	}
	for _, target := range []string{"/", "/index.html", "/app.js", "/uncached.txt"} {
		rec := serve(p, http.MethodGet, target, nil)
		for k, v := range IsolationHeaders {
			got := rec.Header().Values(k)
			if len(got) != 1 || got[0] != v {
				t.Errorf("%s: %s = %q, want exactly [%s]", target, k, got, v)
			}
		}
	}
}

func TestProxy_ScopedWorker(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "origin "+r.URL.Path)
	}))
	defer origin.Close()

	u, _ := url.Parse(origin.URL + "/app/")
	m := wasmshell.Manifest{Name: "shell", Version: "v1", Assets: []string{"./", "./index.html"}}
	c, err := offline.New(offline.NewMemoryStorage(), origin.Client().Transport, u,
		offline.WithManifest(m),
		offline.WithScope(u.Path))
	if err != nil {
		t.Fatalf("offline.New: %v", err)
	}

	p, err := NewProxy(c)
	if err != nil {
		t.Fatalf("NewProxy: %v", err)
	}
	if p.WorkerPath() != "/app/sw.js" {
		t.Fatalf("WorkerPath = %q, want /app/sw.js", p.WorkerPath())
	}

	rec := serve(p, http.MethodGet, "/app/sw.js", nil)
	if !strings.Contains(rec.Body.String(), `var cacheName = "shell-v1";`) {
		t.Errorf("scoped worker script = %q", rec.Body.String())
	}
	if got := rec.Header().Get("Service-Worker-Allowed"); got != "/app/" {
		t.Errorf("Service-Worker-Allowed = %q, want /app/", got)
	}

	rec = serve(p, http.MethodGet, WorkerPath, nil)
	if rec.Body.String() != "origin /sw.js" {
		t.Errorf("root worker path = %q, want it proxied to the origin", rec.Body.String())
	}
}
