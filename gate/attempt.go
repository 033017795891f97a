package gate

import (
	"strings"

	wasmshell "github.com/wippyai/wasm-shell"
)

// Attempt distinguishes the first load of a page from the load that follows
// the isolation bootstrap's forced reload.
type Attempt int

const (
	// AttemptFirst means no corrective reload has happened in this session
	// yet. A missing reload marker always lands here.
	AttemptFirst Attempt = iota
	// AttemptCorrective means this load is the result of the automatic
	// reload. No further correction will come.
	AttemptCorrective
)

func (a Attempt) String() string {
	if a == AttemptCorrective {
		return "corrective"
	}
	return "first"
}

// Reports tells whether a capability with policy p is reported on this attempt.
func (a Attempt) Reports(p Policy) bool {
	return p == PolicyImmediate || a == AttemptCorrective
}

// MarkerStore reads session-scoped flags. The gate only ever reads it.
type MarkerStore interface {
	Get(key string) (string, bool)
}

// ReadAttempt maps the reload marker onto an Attempt. The bootstrap is
// best-effort: an absent or empty marker means "not yet corrected".
func ReadAttempt(store MarkerStore) Attempt {
	if store == nil {
		return AttemptFirst
	}
	v, ok := store.Get(wasmshell.ReloadMarkerKey)
	if !ok || strings.TrimSpace(v) == "" {
		return AttemptFirst
	}
	return AttemptCorrective
}
