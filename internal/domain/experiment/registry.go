package experiment

import (
	"sort"
	"sync"
	"time"

	"github.com/Victor-armando18/offer-engine/internal/domain"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultMaxVisitors = 50000
	DefaultIdleTTL     = 30 * time.Minute
)

// RegistryConfig bounds the registry. A visitor idle for IdleTTL, or the least
// recently seen one once MaxVisitors is reached, is forgotten like an ended
// session.
type RegistryConfig struct {
	MaxVisitors int
	IdleTTL     time.Duration
}

func (c RegistryConfig) withDefaults() RegistryConfig {
	if c.MaxVisitors <= 0 {
		c.MaxVisitors = DefaultMaxVisitors
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = DefaultIdleTTL
	}
	return c
}

// Registry remembers the assignments each visitor currently holds so a
// conversion can be attributed to every experiment the visitor is in. It is
// process-local, like the client session it stands in for.
type Registry struct {
	mu        sync.Mutex
	byVisitor *expirable.LRU[string, map[string]domain.Assignment]
}

func NewRegistry() *Registry {
	return NewRegistryWithConfig(RegistryConfig{})
}

func NewRegistryWithConfig(cfg RegistryConfig) *Registry {
	cfg = cfg.withDefaults()
	return &Registry{byVisitor: expirable.NewLRU[string, map[string]domain.Assignment](cfg.MaxVisitors, nil, cfg.IdleTTL)}
}

// Record stores assignments. An existing assignment for the same visitor and
// experiment is kept: once assigned, a visitor stays in that variant.
func (r *Registry) Record(assignments []domain.Assignment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, as := range assignments {
		key := as.Visitor.String()
		m, ok := r.byVisitor.Get(key)
		if !ok {
			m = map[string]domain.Assignment{}
		}
		if _, exists := m[as.ExperimentID]; !exists {
			m[as.ExperimentID] = as
		}
		r.byVisitor.Add(key, m)
	}
}

// Assignments returns the visitor's assignments ordered by experiment id. A
// lookup counts as activity and pushes the visitor's expiry back.
func (r *Registry) Assignments(v domain.Visitor) []domain.Assignment {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byVisitor.Get(v.String())
	if !ok {
		return []domain.Assignment{}
	}
	r.byVisitor.Add(v.String(), m)
	out := make([]domain.Assignment, 0, len(m))
	for _, as := range m {
		out = append(out, as)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExperimentID < out[j].ExperimentID })
	return out
}

// Merge folds the assignments held under from into to, for example a session
// that just signed in. Conflicts are settled last-write-wins: the merged
// assignment overwrites whatever to held. No reconciliation of past exposures
// is attempted.
func (r *Registry) Merge(from, to domain.Visitor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.byVisitor.Get(from.String())
	if !ok || len(src) == 0 {
		return
	}
	dst, ok := r.byVisitor.Get(to.String())
	if !ok {
		dst = map[string]domain.Assignment{}
	}
	for id, as := range src {
		as.Visitor = to
		dst[id] = as
	}
	r.byVisitor.Add(to.String(), dst)
}

// Forget drops everything held for a visitor, e.g. when its session ends.
func (r *Registry) Forget(v domain.Visitor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byVisitor.Remove(v.String())
}

// Len reports how many visitors are currently held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byVisitor.Len()
}
