package specialist

import (
	"sort"
	"sync"

	"concierge/internal/domain"
)

// Registry maps classifier keywords to specialists. Keywords with no entry
// are valid classifier output; lookups for them simply miss.
type Registry struct {
	mu        sync.RWMutex
	byKeyword map[string]domain.Specialist
}

func NewRegistry() *Registry {
	return &Registry{byKeyword: make(map[string]domain.Specialist)}
}

func (r *Registry) Register(keyword string, s domain.Specialist) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKeyword[keyword] = s
}

func (r *Registry) Lookup(keyword string) (domain.Specialist, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byKeyword[keyword]
	return s, ok
}

// Keywords returns the registered keywords in sorted order.
func (r *Registry) Keywords() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byKeyword))
	for k := range r.byKeyword {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
