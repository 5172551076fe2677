package codecs

import (
	"sync"

	"github.com/google/uuid"
)

// Registry is a process-wide, concurrency-safe id -> Codec map. Scalars
// are pre-registered at construction; composite codecs are added lazily
// the first time a descriptor materializes them. Reads (the common
// case — every Execute looks codecs up) take the RWMutex's read lock,
// mirroring the teacher's global msgpack ext-type table which is read
// far more often than it is written.
type Registry struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]Codec
}

// NewRegistry returns a registry with every built-in scalar codec
// pre-registered.
func NewRegistry() *Registry {
	r := &Registry{byID: make(map[uuid.UUID]Codec, len(scalarCodecs)+8)}
	for _, c := range scalarCodecs {
		r.byID[c.ID()] = c
	}
	return r
}

// Lookup returns the codec for id, if known.
func (r *Registry) Lookup(id uuid.UUID) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

// Register adds or replaces a codec, used once a descriptor has been
// fully materialized into a composite Codec.
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[c.ID()] = c
}

// LookupOrBuild returns the cached codec for id, or calls build and
// caches its result if id is not yet known. build is called without
// holding any lock, so it may itself call LookupOrBuild for child ids.
func (r *Registry) LookupOrBuild(id uuid.UUID, build func() (Codec, error)) (Codec, error) {
	if c, ok := r.Lookup(id); ok {
		return c, nil
	}
	c, err := build()
	if err != nil {
		return nil, err
	}
	r.Register(c)
	return c, nil
}
