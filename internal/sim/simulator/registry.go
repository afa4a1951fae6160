package simulator

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Registry tracks the simulators a client has heard from.
type Registry struct {
	mu   sync.RWMutex
	sims map[uuid.UUID]*Simulator
	edge int
}

func NewRegistry(patchesPerEdge int) *Registry {
	return &Registry{
		sims: map[uuid.UUID]*Simulator{},
		edge: patchesPerEdge,
	}
}

func (r *Registry) Get(id uuid.UUID) *Simulator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sims[id]
}

// GetOrCreate returns the simulator for id, creating it on first sight.
func (r *Registry) GetOrCreate(id uuid.UUID, name string) *Simulator {
	r.mu.RLock()
	s := r.sims[id]
	r.mu.RUnlock()
	if s != nil {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.sims[id]; s != nil {
		return s
	}
	s = New(id, name, r.edge)
	r.sims[id] = s
	return s
}

// Put adds or replaces a simulator, e.g. one restored from a snapshot.
func (r *Registry) Put(s *Simulator) {
	if s == nil {
		return
	}
	r.mu.Lock()
	r.sims[s.ID] = s
	r.mu.Unlock()
}

// All returns simulators ordered by id.
func (r *Registry) All() []*Simulator {
	r.mu.RLock()
	out := make([]*Simulator, 0, len(r.sims))
	for _, s := range r.sims {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sims)
}
