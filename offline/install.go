package offline

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/wasm-shell/errors"
)

// Install fetches every manifest asset and commits them to the named cache
// in one batch. Any failure commits nothing. The batch is not cancelled with
// ctx.
func (c *Controller) Install(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	name := c.manifest.CacheName()

	ctx, span := c.tracer.Start(ctx, "offline.install", trace.WithAttributes(
		attribute.String("cache.name", name),
		attribute.Int("cache.assets", len(c.manifest.Assets)),
	))
	defer span.End()

	fail := func(err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	cache, err := c.storage.Open(ctx, name)
	if err != nil {
		return fail(errors.Install(name, errors.Storage("open", err)))
	}

	entries := make([]Entry, len(c.manifest.Assets))
	g, gctx := errgroup.WithContext(ctx)
	for i, asset := range c.manifest.Assets {
		g.Go(func() error {
			e, err := c.fetchAsset(gctx, asset)
			if err != nil {
				return err
			}
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fail(errors.Install(name, err))
	}

	if err := cache.PutAll(ctx, entries); err != nil {
		return fail(errors.Install(name, errors.Storage("put", err)))
	}

	c.log.Info("cache installed", zap.String("cache", name), zap.Int("entries", len(entries)))
	return nil
}

func (c *Controller) fetchAsset(ctx context.Context, asset string) (Entry, error) {
	u, err := c.assetURL(asset)
	if err != nil {
		return Entry{}, errors.Wrap(errors.PhaseInstall, errors.KindInvalidInput, err, asset)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Entry{}, errors.Wrap(errors.PhaseInstall, errors.KindInvalidInput, err, asset)
	}

	resp, err := c.installClient().Do(req)
	if err != nil {
		return Entry{}, errors.Network(errors.PhaseInstall, asset, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Entry{}, errors.BadStatus(errors.PhaseInstall, asset, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Entry{}, errors.Network(errors.PhaseInstall, asset, err)
	}

	c.log.Debug("asset fetched", zap.String("asset", asset), zap.Int("bytes", len(body)))
	return Entry{
		Key:      requestKey(u),
		Status:   resp.StatusCode,
		Header:   cacheableHeader(resp.Header),
		Body:     body,
		StoredAt: time.Now().UTC(),
	}, nil
}

// maxInstallRedirects bounds the redirect chain followed for one asset.
const maxInstallRedirects = 10

// installClient follows redirects like a cache.addAll fetch. Only the final
// response is checked and it is stored under the requested asset key.
func (c *Controller) installClient() *http.Client {
	return &http.Client{
		Transport: c.network,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxInstallRedirects {
				return errors.New(errors.PhaseInstall, errors.KindNetwork).
					Target(via[0].URL.String()).
					Detail("stopped after %d redirects", len(via)).
					Build()
			}
			return nil
		},
	}
}

// Activate makes the current cache live and deletes every other cache that
// carries the manifest's name prefix. Purge failures are logged and do not
// block activation.
func (c *Controller) Activate(ctx context.Context) error {
	name := c.manifest.CacheName()
	ctx, span := c.tracer.Start(ctx, "offline.activate", trace.WithAttributes(
		attribute.String("cache.name", name),
	))
	defer span.End()

	cache, err := c.storage.Open(ctx, name)
	if err != nil {
		err = errors.Wrap(errors.PhaseActivate, errors.KindStorage, err, "open "+name)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	purged := 0
	names, err := c.storage.Keys(ctx)
	if err != nil {
		c.log.Warn("list caches failed", zap.Error(err))
	}
	prefix := c.manifest.CachePrefix()
	for _, n := range names {
		if n == name || !strings.HasPrefix(n, prefix) {
			continue
		}
		if _, err := c.storage.Delete(ctx, n); err != nil {
			c.log.Warn("delete stale cache failed", zap.String("cache", n), zap.Error(err))
			continue
		}
		purged++
		c.log.Info("stale cache deleted", zap.String("cache", n))
	}
	span.SetAttributes(attribute.Int("cache.purged", purged))

	c.mu.Lock()
	c.cache = cache
	c.state = StateActivated
	c.mu.Unlock()

	c.log.Info("cache activated", zap.String("cache", name))
	return nil
}
