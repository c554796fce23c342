package core

import (
	"context"
	"fmt"
)

type NamespaceStatus struct {
	Name    string `json:"name"`
	Entries int    `json:"entries"`
	Current bool   `json:"current"`
}

// Status describes every namespace in storage.
type Status struct {
	State        string            `json:"state"`
	Namespaces   []NamespaceStatus `json:"namespaces"`
	MediaEntries int               `json:"mediaEntries"`
	MaxMedia     int               `json:"maxMediaEntries"`
}

// Status lists the namespaces with their entry counts.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	st := Status{State: m.State().String(), MaxMedia: m.maxMedia}
	names, err := m.storage.Names(ctx)
	if err != nil {
		return st, fmt.Errorf("list caches: %w", err)
	}
	for _, name := range names {
		c, err := m.storage.Open(ctx, name)
		if err != nil {
			return st, fmt.Errorf("open cache %s: %w", name, err)
		}
		keys, err := c.Keys(ctx)
		if err != nil {
			return st, fmt.Errorf("list keys of %s: %w", name, err)
		}
		st.Namespaces = append(st.Namespaces, NamespaceStatus{
			Name:    name,
			Entries: len(keys),
			Current: m.names.Has(name),
		})
		if name == m.names.Media {
			st.MediaEntries = len(keys)
		}
	}
	return st, nil
}

// ClearAll deletes every namespace in storage, current ones included.
func (m *Manager) ClearAll(ctx context.Context) (int, error) {
	names, err := m.storage.Names(ctx)
	if err != nil {
		return 0, fmt.Errorf("list caches: %w", err)
	}
	deleted := 0
	for _, name := range names {
		ok, err := m.storage.Delete(ctx, name)
		if err != nil {
			return deleted, fmt.Errorf("delete cache %s: %w", name, err)
		}
		if ok {
			deleted++
		}
	}
	m.log.Info().Int("deleted", deleted).Msg("Cleared all caches")
	return deleted, nil
}
