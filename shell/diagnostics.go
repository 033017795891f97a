package shell

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/ua-parser/uap-go/uaparser"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-shell/gate"
)

// DiagnosticsPath receives capability reports from the browser gate.
const DiagnosticsPath = "/_shell/diagnostics"

const maxReportBytes = 4 << 10

// UserAgent is the parsed browser identity of a report's sender.
type UserAgent struct {
	Family string
	Major  string
	Minor  string
	Patch  string
}

// UserAgentParser converts a User-Agent header value into a UserAgent.
type UserAgentParser func(string) UserAgent

var savedParser = sync.OnceValue(uaparser.NewFromSaved)

// ParseUserAgent parses ua with the bundled ua-parser regexes.
func ParseUserAgent(ua string) UserAgent {
	parsed := savedParser().ParseUserAgent(ua)
	return UserAgent{
		Family: parsed.Family,
		Major:  parsed.Major,
		Minor:  parsed.Minor,
		Patch:  parsed.Patch,
	}
}

func (s *Server) diagnostics(w http.ResponseWriter, r *http.Request) {
	var report gate.Report
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReportBytes))
	if err := dec.Decode(&report); err != nil {
		http.Error(w, "invalid report", http.StatusBadRequest)
		return
	}

	ua := s.uaparser(r.UserAgent())
	s.log.Warn("client capability report",
		zap.String("capability", report.Capability),
		zap.String("attempt", report.Attempt),
		zap.String("detail", report.Detail),
		zap.String("browser", ua.Family),
		zap.String("browser_version", ua.Major),
		zap.String("remote", r.RemoteAddr))

	w.WriteHeader(http.StatusNoContent)
}
