package persona

import (
	"errors"
	"fmt"
)

// ErrUnknownPersona is returned when a key matches no registered persona.
var ErrUnknownPersona = errors.New("unknown persona")

// Store exposes persona retrieval for services and HTTP handlers.
type Store interface {
	Get(name string) (Definition, error)
	Find(key string) (Definition, bool)
	List() []string
	Definitions() []Definition
}

// Registry implements Store with an in-memory slice. It is filled once at
// start-up and never mutated afterwards, so it is safe for concurrent reads.
type Registry struct {
	items  []Definition
	byName map[string]int
	byID   map[string]int
}

// NewRegistry returns a Registry preloaded with the supplied personas.
// Later duplicates of a name or id are ignored; use Parse to reject them.
func NewRegistry(items []Definition) *Registry {
	r := &Registry{
		items:  make([]Definition, 0, len(items)),
		byName: make(map[string]int, len(items)),
		byID:   make(map[string]int, len(items)),
	}
	for _, item := range items {
		if item.ID == "" {
			item.ID = Slug(item.Name)
		}
		if _, ok := r.byName[item.Name]; ok {
			continue
		}
		if _, ok := r.byID[item.ID]; ok {
			continue
		}
		r.byName[item.Name] = len(r.items)
		r.byID[item.ID] = len(r.items)
		r.items = append(r.items, item)
	}
	return r
}

// Get looks up a persona by its display name.
func (r *Registry) Get(name string) (Definition, error) {
	idx, ok := r.byName[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownPersona, name)
	}
	return r.items[idx], nil
}

// Find accepts either a display name or an id.
func (r *Registry) Find(key string) (Definition, bool) {
	if idx, ok := r.byName[key]; ok {
		return r.items[idx], true
	}
	if idx, ok := r.byID[key]; ok {
		return r.items[idx], true
	}
	return Definition{}, false
}

// List returns persona names in registration order.
func (r *Registry) List() []string {
	names := make([]string, len(r.items))
	for i, item := range r.items {
		names[i] = item.Name
	}
	return names
}

// Definitions returns a copy of the registered personas.
func (r *Registry) Definitions() []Definition {
	return append([]Definition(nil), r.items...)
}
