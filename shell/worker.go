package shell

import (
	"bytes"
	"embed"
	"encoding/json"
	"text/template"

	wasmshell "github.com/wippyai/wasm-shell"
)

//go:embed templates/sw.js.tmpl
var templateFS embed.FS

var workerTemplate = template.Must(
	template.New("sw.js.tmpl").
		Funcs(template.FuncMap{"json": toJSON}).
		ParseFS(templateFS, "templates/sw.js.tmpl"),
)

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// RenderWorker renders the offline worker script for m. The script caches
// the same assets under the same cache name as the native controller.
func RenderWorker(m wasmshell.Manifest) ([]byte, error) {
	var buf bytes.Buffer
	err := workerTemplate.Execute(&buf, struct {
		CacheName   string
		CachePrefix string
		Assets      []string
	}{
		CacheName:   m.CacheName(),
		CachePrefix: m.CachePrefix(),
		Assets:      m.Assets,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
