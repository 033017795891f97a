package gate

import (
	"fmt"
	"io"
	"sync"
)

// StaticMarkers is a MarkerStore backed by a fixed map, for hosts without
// session storage.
type StaticMarkers map[string]string

// Get implements MarkerStore.
func (m StaticMarkers) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// WriterAlerter writes alerts to an io.Writer, one per line.
type WriterAlerter struct {
	W  io.Writer
	mu sync.Mutex
}

// Alert implements Alerter.
func (a *WriterAlerter) Alert(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, _ = fmt.Fprintln(a.W, msg)
}
