package gate

import (
	"context"

	"go.uber.org/zap"

	wasmshell "github.com/wippyai/wasm-shell"
	"github.com/wippyai/wasm-shell/errors"
)

// UserMessage is the only text an end user sees when the environment cannot
// run the module. Diagnostic detail goes to the log and the Reporter.
const UserMessage = "Cannot start the application. Try a current version of your web browser in a non-private session."

// Alerter shows a blocking notification to the user.
type Alerter interface {
	Alert(msg string)
}

// Handle is the instantiated module's exported surface.
type Handle interface {
	Exports() []string
}

// Loader instantiates the binary module found at path.
type Loader interface {
	Load(ctx context.Context, path string) (Handle, error)
}

// Report carries diagnostic detail about an alerted failure.
type Report struct {
	Capability string `json:"capability"`
	Attempt    string `json:"attempt"`
	Detail     string `json:"detail"`
}

// Reporter receives diagnostic detail about alerted failures.
type Reporter interface {
	Report(ctx context.Context, r Report)
}

// Outcome is the result of one gate evaluation.
type Outcome int

const (
	// OutcomeLoading means every check passed and instantiation was requested.
	OutcomeLoading Outcome = iota
	// OutcomeDeferred means a capability is missing but a corrective reload
	// may still fix it, so nothing was reported.
	OutcomeDeferred
	// OutcomeFailed means the user was alerted.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLoading:
		return "loading"
	case OutcomeDeferred:
		return "deferred"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Decision describes what Evaluate did.
type Decision struct {
	Load    *Load
	Outcome Outcome
	Attempt Attempt
	Missing Capability
}

// Option configures a Gate.
type Option func(*Gate)

// WithModulePath overrides the module path handed to the Loader.
func WithModulePath(path string) Option {
	return func(g *Gate) {
		g.modulePath = path
	}
}

// WithReporter forwards diagnostic detail of alerted failures.
func WithReporter(r Reporter) Option {
	return func(g *Gate) {
		g.reporter = r
	}
}

// WithLogger sets the logger used for diagnostics and load defects.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gate) {
		g.log = l
	}
}

// WithOnReady registers a callback run once the module is instantiated. The
// Load is already settled when it runs.
func WithOnReady(fn func(Handle)) Option {
	return func(g *Gate) {
		g.onReady = fn
	}
}

// Gate decides whether the binary module may be instantiated.
// It holds no state between evaluations.
type Gate struct {
	env        Environment
	markers    MarkerStore
	alerter    Alerter
	loader     Loader
	reporter   Reporter
	log        *zap.Logger
	onReady    func(Handle)
	probe      func() []byte
	modulePath string
}

// New creates a Gate.
func New(env Environment, markers MarkerStore, alerter Alerter, loader Loader, opts ...Option) *Gate {
	g := &Gate{
		env:        env,
		markers:    markers,
		alerter:    alerter,
		loader:     loader,
		modulePath: wasmshell.ModulePath,
		probe:      wasmshell.PassiveDataProbe,
	}
	for _, o := range opts {
		o(g)
	}
	if g.log == nil {
		g.log = Logger()
	}
	return g
}

// Evaluate runs the capability checks and either alerts, defers, or starts
// loading the module. Module instantiation is never requested unless every
// check passed.
func (g *Gate) Evaluate(ctx context.Context) Decision {
	attempt := ReadAttempt(g.markers)
	missing := FirstMissing(g.env, g.probe)

	if missing == CapabilityNone {
		return Decision{
			Outcome: OutcomeLoading,
			Attempt: attempt,
			Missing: CapabilityNone,
			Load:    g.loadModule(ctx),
		}
	}

	if !attempt.Reports(missing.Policy()) {
		g.log.Info("capability missing, awaiting corrective reload",
			zap.Stringer("capability", missing),
			zap.Stringer("attempt", attempt))
		return Decision{Outcome: OutcomeDeferred, Attempt: attempt, Missing: missing}
	}

	g.log.Warn("capability missing",
		zap.Stringer("capability", missing),
		zap.Stringer("attempt", attempt),
		zap.String("detail", missing.Detail()))
	if g.alerter != nil {
		g.alerter.Alert(UserMessage)
	}
	if g.reporter != nil {
		g.reporter.Report(ctx, Report{
			Capability: missing.String(),
			Attempt:    attempt.String(),
			Detail:     missing.Detail(),
		})
	}
	return Decision{Outcome: OutcomeFailed, Attempt: attempt, Missing: missing}
}

// loadModule requests instantiation without blocking the caller. A rejection
// is a build or transport defect: it is logged, never alerted.
func (g *Gate) loadModule(ctx context.Context) *Load {
	l := newLoad(g.modulePath)
	ctx = context.WithoutCancel(ctx)

	go func() {
		var (
			h   Handle
			err error
		)
		if g.loader == nil {
			err = errors.InvalidInput(errors.PhaseLoad, "no module loader configured")
		} else {
			h, err = g.loader.Load(ctx, g.modulePath)
		}

		if err != nil {
			g.log.Error("module load failed",
				zap.String("path", g.modulePath),
				zap.Error(err))
		} else {
			g.log.Debug("module ready", zap.String("path", g.modulePath))
		}
		l.finish(h, err)
		if err == nil && g.onReady != nil {
			g.onReady(h)
		}
	}()

	return l
}
