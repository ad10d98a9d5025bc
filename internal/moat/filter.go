package moat

import "context"

// Candidate is one schema search result, in the shape the search collaborator
// returns and downstream SQL generation consumes. Classification is optional;
// absent values are resolved against the registry.
type Candidate struct {
	Name           string  `json:"name"`
	Owner          string  `json:"owner"`
	Comments       string  `json:"comments,omitempty"`
	Classification string  `json:"classification,omitempty"`
	Score          float64 `json:"score"`
}

// Searcher is the semantic schema search collaborator. Results are ordered by
// relevance descending.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Candidate, error)
}

// Filter keeps only the candidates a role is cleared to see.
type Filter struct {
	registry *Registry
}

// NewFilter builds a filter over the given registry. A nil registry behaves
// like an empty one.
func NewFilter(registry *Registry) *Filter {
	if registry == nil {
		registry = NewRegistry(nil)
	}
	return &Filter{registry: registry}
}

// Apply returns the subset of candidates whose classification is at or below
// the role's clearance, preserving input order. Unknown roles resolve to
// NoClearance and therefore see nothing; this runs before candidates reach
// any SQL-generation context, so a restricted object's existence is never
// leaked downstream.
func (f *Filter) Apply(candidates []Candidate, role string) []Candidate {
	clearance := ClearanceFor(role)
	filtered := make([]Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		if f.Classify(candidate) <= clearance {
			filtered = append(filtered, candidate)
		}
	}
	return filtered
}

// Classify resolves a candidate's classification in priority order: the value
// embedded on the candidate, then the registry entry for its name, then the
// INTERNAL default.
func (f *Filter) Classify(candidate Candidate) Classification {
	if level, ok := ParseClassification(candidate.Classification); ok {
		return level
	}
	if level, ok := f.registry.Classification(candidate.Name); ok {
		return level
	}
	return Internal
}
