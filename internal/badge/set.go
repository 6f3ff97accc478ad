package badge

import (
	"fmt"

	"github.com/dukerupert/freelancequest/internal/model"
)

// Set holds the compiled predicate for every badge in the catalog, keyed by
// badge id. It is built once at startup and shared read-only.
type Set struct {
	predicates map[int64]Predicate
}

// NewSet compiles the stored rule of each badge.
func NewSet(badges []model.Badge) (*Set, error) {
	s := &Set{predicates: make(map[int64]Predicate, len(badges))}
	for _, b := range badges {
		r, err := Decode(b.Rule)
		if err != nil {
			return nil, fmt.Errorf("badge %s: %w", b.Code, err)
		}
		p, err := r.Compile()
		if err != nil {
			return nil, fmt.Errorf("badge %s: %w", b.Code, err)
		}
		s.predicates[b.ID] = p
	}
	return s, nil
}

// Satisfied returns the candidates whose predicate holds for stats. Badges
// without a compiled predicate never unlock.
func (s *Set) Satisfied(stats model.Stats, candidates []model.Badge) []model.Badge {
	var out []model.Badge
	for _, b := range candidates {
		p, ok := s.predicates[b.ID]
		if !ok || !p(stats) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Len returns the number of compiled predicates.
func (s *Set) Len() int {
	return len(s.predicates)
}
