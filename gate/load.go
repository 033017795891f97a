package gate

import (
	"context"
)

// Load is a pending module instantiation. It resolves exactly once.
type Load struct {
	handle Handle
	err    error
	done   chan struct{}
	path   string
}

func newLoad(path string) *Load {
	return &Load{path: path, done: make(chan struct{})}
}

func (l *Load) finish(h Handle, err error) {
	l.handle, l.err = h, err
	close(l.done)
}

// Path is the module path that was requested.
func (l *Load) Path() string {
	return l.path
}

// Done is closed once the module is ready or has been rejected.
func (l *Load) Done() <-chan struct{} {
	return l.done
}

// Wait blocks until the load resolves or ctx ends. Giving up on the wait
// does not cancel the load itself.
func (l *Load) Wait(ctx context.Context) (Handle, error) {
	select {
	case <-l.done:
		return l.handle, l.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Handle returns the module handle, or nil while pending or after a rejection.
func (l *Load) Handle() Handle {
	select {
	case <-l.done:
		return l.handle
	default:
		return nil
	}
}

// Err returns the rejection, or nil while pending or after success.
func (l *Load) Err() error {
	select {
	case <-l.done:
		return l.err
	default:
		return nil
	}
}
