package gate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	wasmshell "github.com/wippyai/wasm-shell"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeEnv reports whatever capabilities it is told to.
type fakeEnv struct {
	sw, shared, bulk bool
	validated        [][]byte
}

func (e *fakeEnv) ServiceWorkers() bool { return e.sw }
func (e *fakeEnv) SharedMemory() bool   { return e.shared }
func (e *fakeEnv) ValidateModule(bin []byte) bool {
	e.validated = append(e.validated, bin)
	return e.bulk
}

type recordingAlerter struct {
	mu   sync.Mutex
	msgs []string
}

func (a *recordingAlerter) Alert(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgs = append(a.msgs, msg)
}

func (a *recordingAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.msgs)
}

type fakeHandle []string

func (h fakeHandle) Exports() []string { return h }

type recordingLoader struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (l *recordingLoader) Load(_ context.Context, path string) (Handle, error) {
	l.mu.Lock()
	l.paths = append(l.paths, path)
	l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	return fakeHandle{"main"}, nil
}

func (l *recordingLoader) calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.paths...)
}

type recordingReporter struct {
	reports []Report
}

func (r *recordingReporter) Report(_ context.Context, rep Report) {
	r.reports = append(r.reports, rep)
}

func markers(reloaded bool) MarkerStore {
	if reloaded {
		return StaticMarkers{wasmshell.ReloadMarkerKey: "true"}
	}
	return StaticMarkers{}
}

func waitLoad(t *testing.T, l *Load) (Handle, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h, err := l.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("load did not resolve")
	}
	return h, err
}

// Every subset missing service worker support alerts, whatever the marker.
func TestEvaluate_ServiceWorkerMissingAlwaysAlerts(t *testing.T) {
	for _, shared := range []bool{false, true} {
		for _, bulk := range []bool{false, true} {
			for _, reloaded := range []bool{false, true} {
				env := &fakeEnv{sw: false, shared: shared, bulk: bulk}
				alerter := &recordingAlerter{}
				loader := &recordingLoader{}

				d := New(env, markers(reloaded), alerter, loader).Evaluate(context.Background())

				if d.Outcome != OutcomeFailed {
					t.Errorf("shared=%v bulk=%v reloaded=%v: outcome = %v, want failed", shared, bulk, reloaded, d.Outcome)
				}
				if d.Missing != CapabilityServiceWorker {
					t.Errorf("missing = %v, want service-worker", d.Missing)
				}
				if alerter.count() != 1 {
					t.Errorf("alerts = %d, want 1", alerter.count())
				}
				if len(loader.calls()) != 0 {
					t.Errorf("loader called without all capabilities")
				}
				if len(env.validated) != 0 {
					t.Errorf("later checks ran after the first failure")
				}
			}
		}
	}
}

func TestEvaluate_DeferredCapabilities(t *testing.T) {
	tests := []struct {
		name    string
		env     *fakeEnv
		missing Capability
	}{
		{"shared memory", &fakeEnv{sw: true, shared: false, bulk: true}, CapabilitySharedMemory},
		{"bulk memory", &fakeEnv{sw: true, shared: true, bulk: false}, CapabilityBulkMemory},
		{"both, first wins", &fakeEnv{sw: true, shared: false, bulk: false}, CapabilitySharedMemory},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/first attempt", func(t *testing.T) {
			alerter := &recordingAlerter{}
			loader := &recordingLoader{}

			d := New(tt.env, markers(false), alerter, loader).Evaluate(context.Background())

			if d.Outcome != OutcomeDeferred {
				t.Errorf("outcome = %v, want deferred", d.Outcome)
			}
			if d.Missing != tt.missing {
				t.Errorf("missing = %v, want %v", d.Missing, tt.missing)
			}
			if alerter.count() != 0 {
				t.Errorf("alerted on first attempt")
			}
			if len(loader.calls()) != 0 || d.Load != nil {
				t.Errorf("load attempted with a missing capability")
			}
		})

		t.Run(tt.name+"/corrective reload", func(t *testing.T) {
			alerter := &recordingAlerter{}
			loader := &recordingLoader{}
			reporter := &recordingReporter{}

			d := New(tt.env, markers(true), alerter, loader, WithReporter(reporter)).Evaluate(context.Background())

			if d.Outcome != OutcomeFailed {
				t.Errorf("outcome = %v, want failed", d.Outcome)
			}
			if d.Attempt != AttemptCorrective {
				t.Errorf("attempt = %v, want corrective", d.Attempt)
			}
			if alerter.count() != 1 {
				t.Errorf("alerts = %d, want exactly 1", alerter.count())
			}
			if len(loader.calls()) != 0 {
				t.Errorf("load attempted with a missing capability")
			}
			if len(reporter.reports) != 1 || reporter.reports[0].Capability != tt.missing.String() {
				t.Errorf("reports = %+v", reporter.reports)
			}
		})
	}
}

func TestEvaluate_AlertHidesDetail(t *testing.T) {
	alerter := &recordingAlerter{}
	env := &fakeEnv{sw: true, shared: false}

	New(env, markers(true), alerter, &recordingLoader{}).Evaluate(context.Background())

	if alerter.count() != 1 {
		t.Fatalf("alerts = %d", alerter.count())
	}
	if alerter.msgs[0] != UserMessage {
		t.Errorf("alert = %q, want the umbrella message", alerter.msgs[0])
	}
	if strings.Contains(alerter.msgs[0], "SharedArrayBuffer") {
		t.Errorf("alert leaks diagnostic detail")
	}
}

func TestEvaluate_ProbesPassiveDataModule(t *testing.T) {
	env := &fakeEnv{sw: true, shared: true, bulk: false}
	New(env, markers(false), &recordingAlerter{}, &recordingLoader{}).Evaluate(context.Background())

	if len(env.validated) != 1 {
		t.Fatalf("validate calls = %d, want 1", len(env.validated))
	}
	want := wasmshell.PassiveDataProbe()
	if string(env.validated[0]) != string(want) {
		t.Errorf("probed %x, want %x", env.validated[0], want)
	}
}

func TestEvaluate_AllPresentLoadsOnce(t *testing.T) {
	for _, reloaded := range []bool{false, true} {
		alerter := &recordingAlerter{}
		loader := &recordingLoader{}
		ready := make(chan Handle, 1)
		env := &fakeEnv{sw: true, shared: true, bulk: true}

		g := New(env, markers(reloaded), alerter, loader, WithOnReady(func(h Handle) { ready <- h }))
		d := g.Evaluate(context.Background())

		if d.Outcome != OutcomeLoading {
			t.Fatalf("outcome = %v, want loading", d.Outcome)
		}
		h, err := waitLoad(t, d.Load)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if got := h.Exports(); len(got) != 1 || got[0] != "main" {
			t.Errorf("exports = %v", got)
		}
		select {
		case got := <-ready:
			if got == nil {
				t.Errorf("ready callback got a nil handle")
			}
		case <-time.After(5 * time.Second):
			t.Errorf("ready callback not run")
		}
		if calls := loader.calls(); len(calls) != 1 || calls[0] != wasmshell.ModulePath {
			t.Errorf("loader calls = %v, want [%s]", calls, wasmshell.ModulePath)
		}
		if alerter.count() != 0 {
			t.Errorf("alerted with every capability present")
		}
	}
}

func TestEvaluate_OnReadySeesSettledLoad(t *testing.T) {
	env := &fakeEnv{sw: true, shared: true, bulk: true}
	loads := make(chan *Load, 1)
	type seen struct {
		handle Handle
		err    error
	}
	result := make(chan seen, 1)

	g := New(env, markers(false), &recordingAlerter{}, &recordingLoader{}, WithOnReady(func(Handle) {
		l := <-loads
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, err := l.Wait(ctx)
		result <- seen{handle: l.Handle(), err: err}
	}))
	d := g.Evaluate(context.Background())
	loads <- d.Load

	select {
	case r := <-result:
		if r.err != nil {
			t.Errorf("Wait inside the ready callback: %v", r.err)
		}
		if r.handle == nil {
			t.Errorf("Handle inside the ready callback is nil")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ready callback not run")
	}
}

func TestEvaluate_LoadRejectionLoggedNotAlerted(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	alerter := &recordingAlerter{}
	loadErr := errors.New("compile: bad magic")
	loader := &recordingLoader{err: loadErr}
	env := &fakeEnv{sw: true, shared: true, bulk: true}

	d := New(env, markers(false), alerter, loader, WithLogger(zap.New(core))).Evaluate(context.Background())

	_, err := waitLoad(t, d.Load)
	if !errors.Is(err, loadErr) {
		t.Fatalf("err = %v, want %v", err, loadErr)
	}
	if d.Load.Err() == nil || d.Load.Handle() != nil {
		t.Errorf("Load accessors disagree with Wait")
	}
	if alerter.count() != 0 {
		t.Errorf("rejection was alerted")
	}

	failures := logs.FilterMessage("module load failed").All()
	if len(failures) != 1 {
		t.Fatalf("failure logs = %d, want exactly 1", len(failures))
	}
	if failures[0].Level != zapcore.ErrorLevel {
		t.Errorf("level = %v, want error", failures[0].Level)
	}
}

func TestEvaluate_NilLoader(t *testing.T) {
	env := &fakeEnv{sw: true, shared: true, bulk: true}
	d := New(env, markers(false), &recordingAlerter{}, nil).Evaluate(context.Background())
	if _, err := waitLoad(t, d.Load); err == nil {
		t.Error("expected error without a loader")
	}
}

func TestEvaluate_Idempotent(t *testing.T) {
	envs := []*fakeEnv{
		{sw: false},
		{sw: true, shared: false},
		{sw: true, shared: true, bulk: false},
	}
	for _, env := range envs {
		for _, reloaded := range []bool{false, true} {
			alerter := &recordingAlerter{}
			g := New(env, markers(reloaded), alerter, &recordingLoader{})

			first := g.Evaluate(context.Background())
			for i := 0; i < 3; i++ {
				before := alerter.count()
				d := g.Evaluate(context.Background())
				if d.Outcome != first.Outcome || d.Missing != first.Missing {
					t.Fatalf("run %d: got %v/%v, want %v/%v", i, d.Outcome, d.Missing, first.Outcome, first.Missing)
				}
				alerted := alerter.count() > before
				if alerted != (first.Outcome == OutcomeFailed) {
					t.Fatalf("run %d: alerted=%v for outcome %v", i, alerted, d.Outcome)
				}
			}
		}
	}
}

func TestEvaluate_WithModulePath(t *testing.T) {
	loader := &recordingLoader{}
	env := &fakeEnv{sw: true, shared: true, bulk: true}
	d := New(env, nil, nil, loader, WithModulePath("./other.wasm")).Evaluate(context.Background())
	if _, err := waitLoad(t, d.Load); err != nil {
		t.Fatal(err)
	}
	if d.Load.Path() != "./other.wasm" || loader.calls()[0] != "./other.wasm" {
		t.Errorf("path not honored: %v", loader.calls())
	}
}

func TestReadAttempt(t *testing.T) {
	tests := []struct {
		name  string
		store MarkerStore
		want  Attempt
	}{
		{"nil store", nil, AttemptFirst},
		{"absent", StaticMarkers{}, AttemptFirst},
		{"empty", StaticMarkers{wasmshell.ReloadMarkerKey: ""}, AttemptFirst},
		{"set", StaticMarkers{wasmshell.ReloadMarkerKey: "true"}, AttemptCorrective},
		{"other key", StaticMarkers{"something": "true"}, AttemptFirst},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReadAttempt(tt.store); got != tt.want {
				t.Errorf("ReadAttempt = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAttempt_Reports(t *testing.T) {
	if !AttemptFirst.Reports(PolicyImmediate) || !AttemptCorrective.Reports(PolicyImmediate) {
		t.Error("immediate policy must always report")
	}
	if AttemptFirst.Reports(PolicyDeferred) {
		t.Error("deferred policy must stay silent on the first attempt")
	}
	if !AttemptCorrective.Reports(PolicyDeferred) {
		t.Error("deferred policy must report after the corrective reload")
	}
}

func TestCapabilitySet_Order(t *testing.T) {
	want := []Capability{CapabilityServiceWorker, CapabilitySharedMemory, CapabilityBulkMemory}
	for i, c := range CapabilitySet {
		if c != want[i] {
			t.Errorf("CapabilitySet[%d] = %v, want %v", i, c, want[i])
		}
	}
	if CapabilityServiceWorker.Policy() != PolicyImmediate {
		t.Error("service worker must be immediate")
	}
	if CapabilitySharedMemory.Policy() != PolicyDeferred || CapabilityBulkMemory.Policy() != PolicyDeferred {
		t.Error("shared and bulk memory must be deferred")
	}
}

func TestWriterAlerter(t *testing.T) {
	var b strings.Builder
	a := &WriterAlerter{W: &b}
	a.Alert("hello")
	if b.String() != "hello\n" {
		t.Errorf("got %q", b.String())
	}
}
