package offline

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Entry is one cached response, keyed by its scope-resolved request path
// (with query, if any).
type Entry struct {
	StoredAt time.Time
	Header   http.Header
	Key      string
	Body     []byte
	Status   int
}

// Response rebuilds the cached response verbatim for req.
func (e *Entry) Response(req *http.Request) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set("Content-Length", strconv.Itoa(len(e.Body)))

	return &http.Response{
		Status:        strconv.Itoa(e.Status) + " " + http.StatusText(e.Status),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

// Cache is one named cache bucket.
type Cache interface {
	// Match returns the entry stored under key.
	Match(ctx context.Context, key string) (*Entry, bool, error)
	// PutAll commits every entry or none of them.
	PutAll(ctx context.Context, entries []Entry) error
	// Keys lists stored keys in sorted order.
	Keys(ctx context.Context) ([]string, error)
}

// Storage holds named caches. Open creates a cache on first use.
type Storage interface {
	Open(ctx context.Context, name string) (Cache, error)
	Has(ctx context.Context, name string) (bool, error)
	Delete(ctx context.Context, name string) (bool, error)
	Keys(ctx context.Context) ([]string, error)
}

// hop-by-hop and length headers are not replayed from the cache
var uncachedHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Transfer-Encoding",
	"Content-Length",
	"Set-Cookie",
}

func cacheableHeader(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		return http.Header{}
	}
	for _, name := range uncachedHeaders {
		out.Del(name)
	}
	return out
}
