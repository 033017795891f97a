package shell

import (
	"bytes"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	wasmshell "github.com/wippyai/wasm-shell"
	"github.com/wippyai/wasm-shell/errors"
	"github.com/wippyai/wasm-shell/offline"
)

// WorkerPath is where the generated offline worker script is served when
// the shell owns the whole origin.
const WorkerPath = "/sw.js"

const workerFile = "sw.js"

// Option configures a Server.
type Option func(*Server)

// WithManifest sets the manifest the worker script is generated from.
func WithManifest(m wasmshell.Manifest) Option {
	return func(s *Server) {
		s.manifest = m
	}
}

// WithIsolation toggles the cross-origin isolation headers. On by default.
func WithIsolation(on bool) Option {
	return func(s *Server) {
		s.isolation = on
	}
}

// WithLogger sets the server's logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// WithUserAgentParser replaces the parser used for diagnostics reports.
func WithUserAgentParser(fn UserAgentParser) Option {
	return func(s *Server) {
		s.uaparser = fn
	}
}

// Server serves the application shell: static files or a proxied origin,
// the generated worker script and the diagnostics endpoint.
type Server struct {
	content   http.Handler
	mux       *http.ServeMux
	log       *zap.Logger
	uaparser  UserAgentParser
	worker    []byte
	scope     string
	manifest  wasmshell.Manifest
	isolation bool
}

// New serves the shell from fsys.
func New(fsys fs.FS, opts ...Option) (*Server, error) {
	if fsys == nil {
		return nil, errors.InvalidInput(errors.PhaseConfig, "shell file system is required")
	}
	content := wasmContentType(indexDocument(fsys, http.FileServerFS(fsys)))
	return newServer(content, "/", opts)
}

// NewProxy fronts the controller's origin. Requests are answered cache-first
// by the controller; the worker script follows the controller's manifest
// unless WithManifest overrides it, and is served under the controller's
// scope so its relative assets resolve to the same keys.
func NewProxy(c *offline.Controller, opts ...Option) (*Server, error) {
	if c == nil {
		return nil, errors.InvalidInput(errors.PhaseConfig, "offline controller is required")
	}
	opts = append([]Option{WithManifest(c.Manifest())}, opts...)
	return newServer(c, c.Scope(), opts)
}

func newServer(content http.Handler, scope string, opts []Option) (*Server, error) {
	s := &Server{
		content:   content,
		scope:     scope,
		isolation: true,
		manifest:  wasmshell.DefaultManifest(),
		uaparser:  ParseUserAgent,
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = Logger()
	}
	if err := s.manifest.Validate(); err != nil {
		return nil, err
	}

	worker, err := RenderWorker(s.manifest)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "render worker script")
	}
	s.worker = worker

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("GET "+s.WorkerPath(), s.serveWorker)
	s.mux.HandleFunc("POST "+DiagnosticsPath, s.diagnostics)
	s.mux.Handle("/", s.content)
	return s, nil
}

// Manifest returns the manifest the worker script was generated from.
func (s *Server) Manifest() wasmshell.Manifest {
	return s.manifest
}

// WorkerPath returns the path the worker script is served at.
func (s *Server) WorkerPath() string {
	return s.scope + workerFile
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.isolation {
		setIsolationHeaders(w.Header())
	}
	s.log.Debug("request", zap.String("method", r.Method), zap.String("path", r.URL.Path))
	s.mux.ServeHTTP(w, r)
}

func (s *Server) serveWorker(w http.ResponseWriter, _ *http.Request) {
	h := w.Header()
	h.Set("Content-Type", "text/javascript; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("Service-Worker-Allowed", s.scope)
	_, _ = w.Write(s.worker)
}

// IsolationHeaders are set on every response when isolation is on. They make
// the document cross-origin isolated, which shared memory requires.
var IsolationHeaders = map[string]string{
	"Cross-Origin-Opener-Policy":   "same-origin",
	"Cross-Origin-Embedder-Policy": "require-corp",
	"Cross-Origin-Resource-Policy": "same-origin",
}

func setIsolationHeaders(h http.Header) {
	for k, v := range IsolationHeaders {
		h.Set(k, v)
	}
}

// indexDocument serves index.html files directly. The file server redirects
// them to their directory, and a worker must not precache a redirect.
func indexDocument(fsys fs.FS, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if path.Base(r.URL.Path) != "index.html" {
			next.ServeHTTP(w, r)
			return
		}
		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		var modtime time.Time
		if fi, err := fs.Stat(fsys, name); err == nil {
			modtime = fi.ModTime()
		}
		http.ServeContent(w, r, name, modtime, bytes.NewReader(body))
	})
}

// wasmContentType makes sure modules are served as application/wasm so
// streaming compilation accepts them.
func wasmContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".wasm") {
			w.Header().Set("Content-Type", "application/wasm")
		}
		next.ServeHTTP(w, r)
	})
}
