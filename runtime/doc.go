// Package runtime loads the binary module and hands back its handle.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx, runtime.FSSource{FS: os.DirFS("dist")}, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	inst, err := rt.Instantiate(ctx, wasmshell.ModulePath)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	res, err := inst.Call(ctx, "add", api.EncodeI32(2), api.EncodeI32(3))
//
// # Sources
//
//	FSSource    - reads from an fs.FS rooted at the shell scope
//	HTTPSource  - fetches relative to a base URL through an http.Client
//
// An HTTPSource whose client transport is an offline.Controller reads the
// module from the offline cache when it is there.
//
// Runtime implements gate.Loader, so it can be handed straight to gate.New.
package runtime
