package server

import (
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownCollection is returned for lookups of unregistered ids.
var ErrUnknownCollection = errors.New("unknown collection")

// Collection is one registered collection root.
type Collection struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// CollectionRegistry is the in-memory registration table. Registrations
// live for the server process; the collections themselves are on disk.
type CollectionRegistry struct {
	mu   sync.RWMutex
	byID map[string]Collection
}

// NewCollectionRegistry returns an empty registry.
func NewCollectionRegistry() *CollectionRegistry {
	return &CollectionRegistry{byID: make(map[string]Collection)}
}

// Add registers a collection root. Path must be absolute.
func (r *CollectionRegistry) Add(name, path string) (Collection, error) {
	if !filepath.IsAbs(path) {
		return Collection{}, errors.New("path must be absolute")
	}
	if name == "" {
		name = filepath.Base(path)
	}
	c := Collection{
		ID:        uuid.NewString(),
		Name:      name,
		Path:      filepath.Clean(path),
		CreatedAt: time.Now().UTC(),
	}
	r.mu.Lock()
	r.byID[c.ID] = c
	r.mu.Unlock()
	return c, nil
}

// Get looks up a registration by id.
func (r *CollectionRegistry) Get(id string) (Collection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return Collection{}, ErrUnknownCollection
	}
	return c, nil
}

// Update replaces the name and path of a registration.
func (r *CollectionRegistry) Update(id, name, path string) (Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return Collection{}, ErrUnknownCollection
	}
	if name != "" {
		c.Name = name
	}
	if path != "" {
		if !filepath.IsAbs(path) {
			return Collection{}, errors.New("path must be absolute")
		}
		c.Path = filepath.Clean(path)
	}
	r.byID[id] = c
	return c, nil
}

// Remove unregisters a collection.
func (r *CollectionRegistry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return ErrUnknownCollection
	}
	delete(r.byID, id)
	return nil
}

// List returns all registrations, newest first.
func (r *CollectionRegistry) List() []Collection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Collection, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
