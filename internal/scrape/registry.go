package scrape

import (
	"sort"
	"strings"
)

// Registry resolves server identifiers to adapters. It never performs I/O.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry indexes adapters by their lowercase ID. A later adapter with
// the same ID replaces an earlier one.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[strings.ToLower(a.ID())] = a
	}
	return r
}

// Get returns the adapter for server or an InvalidServer error.
func (r *Registry) Get(server string) (Adapter, error) {
	a, ok := r.adapters[strings.ToLower(strings.TrimSpace(server))]
	if !ok {
		return nil, Errorf(KindInvalidServer, "unknown server %q", server)
	}
	return a, nil
}

// IDs lists the registered servers in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Worlds(server string) ([]string, error) {
	a, err := r.Get(server)
	if err != nil {
		return nil, err
	}
	return a.Worlds(), nil
}

func (r *Registry) Pacing(server string) (Pacing, error) {
	a, err := r.Get(server)
	if err != nil {
		return Pacing{}, err
	}
	return a.Pacing(), nil
}

// Resolve validates a (server, world) pair and returns the adapter with the
// world's canonical spelling.
func (r *Registry) Resolve(server, world string) (Adapter, string, error) {
	a, err := r.Get(server)
	if err != nil {
		return nil, "", err
	}
	canonical, err := CanonicalWorld(a, world)
	if err != nil {
		return nil, "", err
	}
	return a, canonical, nil
}

// CanonicalWorld matches world case-insensitively against the adapter's
// supported worlds.
func CanonicalWorld(a Adapter, world string) (string, error) {
	w := strings.TrimSpace(world)
	for _, known := range a.Worlds() {
		if strings.EqualFold(known, w) {
			return known, nil
		}
	}
	return "", Errorf(KindInvalidWorld, "world %q is not supported by %s", world, a.ID())
}
