package stats

import (
	"slices"
	"strings"
	"sync"
)

// Registry holds one Group per name, created lazily
type Registry struct {
	groups sync.Map // string -> *Group
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// GetOrCreate returns the group for name. created reports whether this call
// created it, which happens exactly once per name between resets.
func (r *Registry) GetOrCreate(name string) (g *Group, created bool) {
	if v, ok := r.groups.Load(name); ok {
		return v.(*Group), false
	}
	v, loaded := r.groups.LoadOrStore(name, NewGroup(name))
	return v.(*Group), !loaded
}

// Snapshot returns the stats of every group with at least one hit, ordered
// by name
func (r *Registry) Snapshot() []GroupStats {
	var out []GroupStats
	r.groups.Range(func(_, v any) bool {
		s := v.(*Group).Stats()
		if s.Hits > 0 {
			out = append(out, s)
		}
		return true
	})
	slices.SortFunc(out, func(a, b GroupStats) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// Reset drops every group
func (r *Registry) Reset() {
	r.groups.Clear()
}
