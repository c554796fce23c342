package core

import (
	"context"
	"net/http"

	"github.com/always-cache/media-edge/cache"
	"github.com/always-cache/media-edge/metrics"
	cachekey "github.com/always-cache/media-edge/pkg/cache-key"
	cachestatus "github.com/always-cache/media-edge/pkg/cache-status"
	serializer "github.com/always-cache/media-edge/pkg/response-serializer"

	"github.com/rs/zerolog"
)

// handleFetch classifies the request and runs the matching strategy.
func (m *Manager) handleFetch(ctx context.Context, ev Event) (*http.Response, error) {
	req := ev.Request
	class := Classify(req, m.media)
	log := zerolog.Ctx(ctx).With().Str("class", class.String()).Str("url", req.URL.String()).Logger()
	ctx = log.WithContext(ctx)
	log.Trace().Msg("Intercepted fetch")

	switch class {
	case ClassMedia:
		return m.handleMedia(ctx, req)
	case ClassStatic:
		return m.handleStatic(ctx, req)
	case ClassNavigation:
		return m.handleNavigation(ctx, req)
	}
	metrics.RecordFetch(class.String(), "network")
	return m.network.RoundTrip(req)
}

// handleMedia is cache-first. Every network failure degrades to a placeholder image.
func (m *Manager) handleMedia(ctx context.Context, req *http.Request) (*http.Response, error) {
	log := zerolog.Ctx(ctx)
	var status cachestatus.CacheStatus
	key := cachekey.ForRequest(req)

	media, err := m.storage.Open(ctx, m.names.Media)
	if err != nil {
		log.Warn().Err(err).Msg("Could not open media cache")
	} else if res := m.match(ctx, media, key, req); res != nil {
		status.Hit()
		status.Set(res.Header)
		metrics.RecordFetch(ClassMedia.String(), "hit")
		log.Debug().Msg("Serving media from cache")
		return res, nil
	}

	status.Forward(cachestatus.FwdUriMiss)
	res, err := m.network.RoundTrip(req)
	if err != nil || !isOK(res) {
		if err == nil {
			res.Body.Close()
		}
		log.Warn().Err(err).Msg("Media fetch failed, serving placeholder")
		res = placeholderResponse(req)
		status.Detail = cachestatus.DetailPlaceholder
		status.Set(res.Header)
		metrics.RecordFetch(ClassMedia.String(), "placeholder")
		return res, nil
	}

	if media != nil && m.put(ctx, media, key, res) {
		status.Stored = true
		m.evict(ctx, media)
	}
	status.Set(res.Header)
	metrics.RecordFetch(ClassMedia.String(), "network")
	return res, nil
}

// handleStatic is cache-first with write-through and no eviction.
func (m *Manager) handleStatic(ctx context.Context, req *http.Request) (*http.Response, error) {
	log := zerolog.Ctx(ctx)
	var status cachestatus.CacheStatus
	key := cachekey.ForRequest(req)

	static, err := m.storage.Open(ctx, m.names.Static)
	if err != nil {
		log.Warn().Err(err).Msg("Could not open static cache")
	} else if res := m.match(ctx, static, key, req); res != nil {
		status.Hit()
		status.Set(res.Header)
		metrics.RecordFetch(ClassStatic.String(), "hit")
		return res, nil
	}

	status.Forward(cachestatus.FwdUriMiss)
	res, err := m.network.RoundTrip(req)
	if err != nil {
		// the entry may have been written by a concurrent fetch in the meantime
		if static != nil {
			if cached := m.match(ctx, static, key, req); cached != nil {
				status.Hit()
				status.Detail = cachestatus.DetailStale
				status.Set(cached.Header)
				metrics.RecordFetch(ClassStatic.String(), "hit")
				return cached, nil
			}
		}
		log.Warn().Err(err).Msg("Static asset fetch failed")
		metrics.RecordFetch(ClassStatic.String(), "error")
		return nil, err
	}

	if isOK(res) && static != nil && m.put(ctx, static, key, res) {
		status.Stored = true
	}
	status.Set(res.Header)
	metrics.RecordFetch(ClassStatic.String(), "network")
	return res, nil
}

// handleNavigation is network-first, then the cached document root, then the offline document.
func (m *Manager) handleNavigation(ctx context.Context, req *http.Request) (*http.Response, error) {
	log := zerolog.Ctx(ctx)
	var status cachestatus.CacheStatus
	status.Forward(cachestatus.FwdRequest)

	static, openErr := m.storage.Open(ctx, m.names.Static)
	if openErr != nil {
		log.Warn().Err(openErr).Msg("Could not open static cache")
	}

	res, err := m.network.RoundTrip(req)
	if err == nil && isOK(res) {
		if static != nil && m.put(ctx, static, cachekey.ForRequest(req), res) {
			status.Stored = true
		}
		status.Set(res.Header)
		metrics.RecordFetch(ClassNavigation.String(), "network")
		return res, nil
	}
	if err == nil {
		res.Body.Close()
	}
	log.Warn().Err(err).Msg("Navigation failed, falling back to shell")

	if static != nil {
		if cached := m.match(ctx, static, cachekey.Resolve(req, "/"), req); cached != nil {
			status.Hit()
			status.Detail = cachestatus.DetailShell
			status.Set(cached.Header)
			metrics.RecordFetch(ClassNavigation.String(), "shell")
			return cached, nil
		}
	}

	res = offlineResponse(req)
	status.Detail = cachestatus.DetailOffline
	status.Set(res.Header)
	metrics.RecordFetch(ClassNavigation.String(), "offline")
	return res, nil
}

// match returns the stored response for key, or nil.
// Entries that cannot be read back are removed.
func (m *Manager) match(ctx context.Context, c cache.Cache, key string, req *http.Request) *http.Response {
	log := zerolog.Ctx(ctx)
	entry, ok, err := c.Match(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cache lookup failed")
		return nil
	}
	if !ok {
		return nil
	}
	res, err := serializer.BytesToResponse(entry.Bytes, req)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Corrupted cache entry, deleting")
		if _, err := c.Delete(ctx, key); err != nil {
			log.Error().Err(err).Str("key", key).Msg("Could not delete corrupted entry")
		}
		return nil
	}
	return res
}

// put stores a copy of res under key and reports whether it was stored.
// res stays readable by the caller either way.
func (m *Manager) put(ctx context.Context, c cache.Cache, key string, res *http.Response) bool {
	log := zerolog.Ctx(ctx)
	b, err := serializer.ResponseToBytes(res)
	if err == nil {
		err = c.Put(ctx, key, b)
	}
	if err != nil {
		log.Error().Err(err).Str("key", key).Str("namespace", c.Name()).Msg("Could not store response")
		metrics.RecordCacheWriteError(c.Name())
		return false
	}
	log.Trace().Str("key", key).Str("namespace", c.Name()).Msg("Stored response")
	return true
}

// evict deletes the oldest media entries, by insertion order, above the bound.
// Concurrent passes may remove one entry too many.
func (m *Manager) evict(ctx context.Context, media cache.Cache) int {
	log := zerolog.Ctx(ctx)
	keys, err := media.Keys(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Could not list media cache keys")
		return 0
	}
	if len(keys) <= m.maxMedia {
		return 0
	}
	evicted := 0
	for _, key := range keys[:len(keys)-m.maxMedia] {
		if ok, err := media.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Could not evict media entry")
		} else if ok {
			evicted++
		}
	}
	log.Debug().Int("evicted", evicted).Msg("Evicted media entries")
	metrics.RecordEvictions(evicted)
	return evicted
}
