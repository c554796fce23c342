package core

import (
	"context"
	"fmt"
	"net/http"

	cachekey "github.com/always-cache/media-edge/pkg/cache-key"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// handleInstall stores the shell URLs in the static namespace.
// A failing pre-warm is logged but does not fail the install.
func (m *Manager) handleInstall(ctx context.Context, ev Event) (*http.Response, error) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if s := m.State(); s != StateParsed {
		return nil, fmt.Errorf("%w: cannot install from %s", ErrInvalidState, s)
	}
	m.setState(StateInstalling)

	log := zerolog.Ctx(ctx)
	if err := m.prewarm(ctx); err != nil {
		log.Warn().Err(err).Msg("Could not pre-cache shell, continuing install")
	}

	m.setState(StateInstalled)
	return nil, nil
}

func (m *Manager) prewarm(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.installTimeout)
	defer cancel()

	static, err := m.storage.Open(ctx, m.names.Static)
	if err != nil {
		return err
	}
	log := zerolog.Ctx(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for _, u := range m.shellURLs {
		u := u
		g.Go(func() error {
			req, err := http.NewRequestWithContext(gctx, http.MethodGet, u, nil)
			if err != nil {
				return err
			}
			res, err := m.network.RoundTrip(req)
			if err != nil {
				return err
			}
			if !isOK(res) {
				res.Body.Close()
				return fmt.Errorf("pre-cache %s: status %d", u, res.StatusCode)
			}
			if !m.put(gctx, static, cachekey.ForRequest(req), res) {
				res.Body.Close()
				return fmt.Errorf("pre-cache %s: could not store", u)
			}
			res.Body.Close()
			log.Debug().Str("url", u).Msg("Pre-cached shell asset")
			return nil
		})
	}
	return g.Wait()
}

// handleActivate deletes every namespace that does not belong to this version,
// then claims clients by starting to intercept fetches.
func (m *Manager) handleActivate(ctx context.Context, ev Event) (*http.Response, error) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if s := m.State(); s != StateInstalled {
		return nil, fmt.Errorf("%w: cannot activate from %s", ErrInvalidState, s)
	}
	m.setState(StateActivating)

	log := zerolog.Ctx(ctx)
	names, err := m.storage.Names(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Could not list caches")
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		if m.names.Has(name) {
			continue
		}
		g.Go(func() error {
			log.Info().Str("namespace", name).Msg("Deleting old cache")
			_, err := m.storage.Delete(gctx, name)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Could not delete old cache")
	}

	m.setState(StateActive)
	return nil, nil
}
