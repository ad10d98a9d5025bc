package moat

import (
	"context"
	"sort"
	"strings"
)

// RegistrySearcher is a Searcher over the local registry: case-insensitive
// substring matching on object names, namespaces, and column names. It stands
// in wherever no external semantic search collaborator is configured.
type RegistrySearcher struct {
	registry *Registry
}

var _ Searcher = (*RegistrySearcher)(nil)

func NewRegistrySearcher(registry *Registry) *RegistrySearcher {
	if registry == nil {
		registry = NewRegistry(nil)
	}
	return &RegistrySearcher{registry: registry}
}

func (s *RegistrySearcher) Search(_ context.Context, query string, limit int) ([]Candidate, error) {
	query = strings.ToUpper(strings.TrimSpace(query))
	if query == "" {
		return nil, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var candidates []Candidate
	for _, obj := range s.registry.objects {
		score := matchScore(obj, query)
		if score <= 0 {
			continue
		}
		candidates = append(candidates, Candidate{
			Name:           obj.Name,
			Owner:          obj.Namespace,
			Classification: obj.Classification,
			Score:          score,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Name < candidates[j].Name
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func matchScore(obj SchemaObject, query string) float64 {
	name := strings.ToUpper(obj.Name)
	switch {
	case name == query:
		return 1.0
	case strings.Contains(name, query):
		return 0.8
	}
	if strings.Contains(strings.ToUpper(obj.Namespace), query) {
		return 0.5
	}
	for _, col := range obj.Columns {
		if strings.Contains(strings.ToUpper(col), query) {
			return 0.4
		}
	}
	return 0
}
