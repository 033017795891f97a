package engine

import (
	"context"
	"testing"

	wasmshell "github.com/wippyai/wasm-shell"
)

// (module (func (export "add") (param i32 i32) (result i32)
//
//	local.get 0 local.get 1 i32.add))
var addModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x07, 0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x07, 0x01, 0x03, 0x61, 0x64, 0x64, 0x00, 0x00,
	0x0a, 0x09, 0x01, 0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b,
}

// (module (import "wbg" "f" (func)))
var importModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
	0x02, 0x09, 0x01, 0x03, 0x77, 0x62, 0x67, 0x01, 0x66, 0x00, 0x00,
}

func newEngine(t *testing.T, f Features) *WazeroEngine {
	t.Helper()
	ctx := context.Background()
	e, err := NewWazeroEngineWithConfig(ctx, &Config{Features: f})
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	t.Cleanup(func() { e.Close(ctx) })
	return e
}

func TestEnvironment_Probes(t *testing.T) {
	tests := []struct {
		features   Features
		wantShared bool
		wantBulk   bool
	}{
		{FeaturesNone, false, false},
		{FeatureBulkMemory, false, true},
		{FeatureThreads, true, false},
		{FeaturesIsolated, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.features.String(), func(t *testing.T) {
			env := NewEnvironment(newEngine(t, tt.features), true)

			if got := env.SharedMemory(); got != tt.wantShared {
				t.Errorf("SharedMemory() = %v, want %v", got, tt.wantShared)
			}
			if got := env.ValidateModule(wasmshell.PassiveDataProbe()); got != tt.wantBulk {
				t.Errorf("ValidateModule(passive data) = %v, want %v", got, tt.wantBulk)
			}
			if !env.ServiceWorkers() {
				t.Errorf("ServiceWorkers() = false")
			}
		})
	}
}

func TestEnvironment_RejectsGarbage(t *testing.T) {
	env := NewEnvironment(newEngine(t, FeaturesIsolated), false)
	if env.ValidateModule([]byte("not wasm")) {
		t.Error("garbage validated")
	}
	if env.ServiceWorkers() {
		t.Error("ServiceWorkers() = true")
	}
}

func TestWazeroModule_Instantiate(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, FeaturesIsolated)

	mod, err := e.LoadModule(ctx, addModule)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer mod.Close(ctx)

	if _, ok := mod.ExportedFunctions()["add"]; !ok {
		t.Fatalf("add not exported: %v", mod.ExportedFunctions())
	}

	// Anonymous instances may coexist.
	for i := 0; i < 2; i++ {
		inst, err := mod.Instantiate(ctx, "")
		if err != nil {
			t.Fatalf("instantiate %d: %v", i, err)
		}
		res, err := inst.ExportedFunction("add").Call(ctx, 2, 3)
		if err != nil {
			t.Fatalf("call: %v", err)
		}
		if res[0] != 5 {
			t.Errorf("add(2, 3) = %d, want 5", res[0])
		}
		inst.Close(ctx)
	}
}

func TestWazeroModule_MissingImport(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, FeaturesIsolated)

	mod, err := e.LoadModule(ctx, importModule)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer mod.Close(ctx)

	if imports := mod.ImportedFunctions(); len(imports) != 1 || imports[0] != "wbg.f" {
		t.Errorf("ImportedFunctions() = %v", imports)
	}
	if _, err := mod.Instantiate(ctx, ""); err == nil {
		t.Error("expected unresolved import to fail")
	}
}

func TestParseFeatures(t *testing.T) {
	tests := []struct {
		in      string
		want    Features
		wantErr bool
	}{
		{"", FeaturesNone, false},
		{"none", FeaturesNone, false},
		{"bulk-memory", FeatureBulkMemory, false},
		{"threads, bulk-memory", FeaturesIsolated, false},
		{"simd", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseFeatures(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFeatures(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFeatures(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if FeaturesIsolated.String() != "bulk-memory,threads" {
		t.Errorf("String() = %q", FeaturesIsolated.String())
	}
}
