package extract

import (
	"fmt"

	"github.com/aluiziolira/go-scrape-play/parser"
)

// FieldSpec describes where a field lives in a dataset map and how to
// post-process it. When the transform fails, Fallback is used instead.
type FieldSpec struct {
	Dataset   int
	Path      []int
	Transform Transform
	Fallback  any
}

// Extract resolves the spec against m. ok is false when the path does not
// resolve and no fallback applies.
func (s FieldSpec) Extract(m parser.DatasetMap) (value any, ok bool) {
	raw, found := m.Lookup(s.Dataset, s.Path...)
	if !found {
		return nil, false
	}

	defer func() {
		if r := recover(); r != nil {
			value, ok = s.Fallback, s.Fallback != nil
		}
	}()

	out, err := s.Transform.Apply(raw)
	if err != nil {
		return s.Fallback, s.Fallback != nil
	}
	return out, true
}

func (s FieldSpec) String() string {
	if s.Transform.Name == "" {
		return fmt.Sprintf("ds:%d%v", s.Dataset, s.Path)
	}
	return fmt.Sprintf("ds:%d%v|%s", s.Dataset, s.Path, s.Transform.Name)
}

// Entry pairs a field name with its spec.
type Entry struct {
	Name string
	Spec FieldSpec
}

// Registry is an ordered, read-only set of named field specs.
type Registry struct {
	entries []Entry
	index   map[string]int
}

// NewRegistry builds a registry. Duplicate names panic since registries are
// static tables defined at init time.
func NewRegistry(entries ...Entry) *Registry {
	r := &Registry{
		entries: entries,
		index:   make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		if _, dup := r.index[e.Name]; dup {
			panic(fmt.Sprintf("extract: duplicate field %q", e.Name))
		}
		r.index[e.Name] = i
	}
	return r
}

// Spec returns the spec registered under name.
func (r *Registry) Spec(name string) (FieldSpec, bool) {
	i, ok := r.index[name]
	if !ok {
		return FieldSpec{}, false
	}
	return r.entries[i].Spec, true
}

// Names lists field names in declaration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Name
	}
	return names
}

// Extract resolves the named field. Unknown names are absent.
func (r *Registry) Extract(m parser.DatasetMap, name string) (any, bool) {
	spec, ok := r.Spec(name)
	if !ok {
		return nil, false
	}
	return spec.Extract(m)
}

// ExtractString resolves the named field as a string.
func (r *Registry) ExtractString(m parser.DatasetMap, name string) (string, bool) {
	v, ok := r.Extract(m, name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
