package runtime

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/wippyai/wasm-shell/errors"
)

// Source reads binary modules by their scope-relative path.
type Source interface {
	ReadModule(ctx context.Context, path string) ([]byte, error)
}

// FSSource reads modules from a file system rooted at the shell scope.
type FSSource struct {
	FS fs.FS
}

func (s FSSource) ReadModule(_ context.Context, p string) ([]byte, error) {
	name := path.Clean(strings.TrimPrefix(p, "./"))
	if !fs.ValidPath(name) {
		return nil, errors.InvalidInput(errors.PhaseLoad, fmt.Sprintf("invalid module path %q", p))
	}
	data, err := fs.ReadFile(s.FS, name)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.NotFound(errors.PhaseLoad, "module", p)
		}
		return nil, errors.Load("read module", err)
	}
	return data, nil
}

// HTTPSource fetches modules relative to Base. Pointing Client's transport
// at an offline controller serves the module from the offline cache.
type HTTPSource struct {
	Client *http.Client
	Base   *url.URL
}

func (s HTTPSource) ReadModule(ctx context.Context, p string) ([]byte, error) {
	ref, err := url.Parse(p)
	if err != nil {
		return nil, errors.InvalidInput(errors.PhaseLoad, fmt.Sprintf("invalid module path %q", p))
	}
	target := s.Base.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, errors.Load("build request", err)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Network(errors.PhaseLoad, p, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.BadStatus(errors.PhaseLoad, p, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Network(errors.PhaseLoad, p, err)
	}
	return data, nil
}
