package core

import (
	"context"
	"errors"
	"net/http"
	"sync"
)

// Runtime holds the active manager version.
// Registering a new version installs and activates it and retires the previous one.
type Runtime struct {
	// Network is used for every request while no manager is active.
	Network http.RoundTripper

	mu     sync.RWMutex
	active *Manager
}

// Register installs and activates m, then marks the previously active manager redundant.
// If installation or activation fails, m is closed and the previous manager stays active.
func (r *Runtime) Register(ctx context.Context, m *Manager) error {
	if m == nil {
		return errors.New("manager is nil")
	}
	if err := m.Install(ctx); err != nil {
		m.Close()
		return err
	}
	if err := m.Activate(ctx); err != nil {
		m.Close()
		return err
	}

	r.mu.Lock()
	old := r.active
	r.active = m
	r.mu.Unlock()

	if old != nil && old != m {
		m.log.Info().Str("previous", old.names.Generic).Msg("Superseding previous cache version")
		return old.Close()
	}
	return nil
}

// Active returns the active manager, or nil.
func (r *Runtime) Active() *Manager {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// RoundTrip hands the request to the active manager.
func (r *Runtime) RoundTrip(req *http.Request) (*http.Response, error) {
	if m := r.Active(); m != nil {
		return m.RoundTrip(req)
	}
	if r.Network != nil {
		return r.Network.RoundTrip(req)
	}
	return http.DefaultTransport.RoundTrip(req)
}

// Close retires the active manager.
func (r *Runtime) Close() error {
	r.mu.Lock()
	m := r.active
	r.active = nil
	r.mu.Unlock()
	if m != nil {
		return m.Close()
	}
	return nil
}

// PostMessage hands msg to the active manager. It is dropped if there is none.
func (r *Runtime) PostMessage(msg Message) bool {
	if m := r.Active(); m != nil {
		return m.PostMessage(msg)
	}
	return false
}

// PostMessageContext hands msg to the active manager, waiting for room in its queue.
func (r *Runtime) PostMessageContext(ctx context.Context, msg Message) bool {
	if m := r.Active(); m != nil {
		return m.PostMessageContext(ctx, msg)
	}
	return false
}
