// Package engine wraps wazero with an explicit WebAssembly feature set.
//
// An engine built with FeaturesNone behaves like a host that lacks both
// shared memory and bulk memory; FeaturesIsolated behaves like a current
// browser running cross-origin isolated. The gate uses this through
// Environment to run its capability checks natively:
//
//	eng, _ := engine.NewWazeroEngineWithConfig(ctx, &engine.Config{
//	    Features: engine.FeatureBulkMemory,
//	})
//	env := engine.NewEnvironment(eng, true)
//	env.SharedMemory()                                // false
//	env.ValidateModule(wasmshell.PassiveDataProbe())  // true
//
// # Feature Mapping
//
//	Features            wazero core features
//	─────────────────────────────────────────────────────────────
//	FeatureBulkMemory   CoreFeatureBulkMemoryOperations, ReferenceTypes
//	FeatureThreads      experimental.CoreFeaturesThreads
//
// Everything else in CoreFeaturesV2 is always enabled.
package engine
