package moat

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// SchemaObject is immutable reference data describing one schema object.
// The registry is loaded once per process and refreshed out-of-band.
type SchemaObject struct {
	Name           string   `json:"name"`
	Namespace      string   `json:"namespace"`
	Kind           string   `json:"kind"`
	Classification string   `json:"classification"`
	Columns        []string `json:"columns,omitempty"`
}

// Registry resolves schema object classifications by name.
type Registry struct {
	objects map[string]SchemaObject
}

// NewRegistry builds a registry from in-memory objects. Names are matched
// case-insensitively.
func NewRegistry(objects []SchemaObject) *Registry {
	r := &Registry{objects: make(map[string]SchemaObject, len(objects))}
	for _, obj := range objects {
		if obj.Name == "" {
			continue
		}
		r.objects[strings.ToUpper(obj.Name)] = obj
	}
	return r
}

// LoadRegistry reads schema metadata from a JSON file. An empty path yields
// an empty registry so deployments without curated metadata still get the
// INTERNAL default for every object.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return NewRegistry(nil), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema registry: %w", err)
	}
	var objects []SchemaObject
	if err := json.Unmarshal(raw, &objects); err != nil {
		return nil, fmt.Errorf("parse schema registry: %w", err)
	}
	return NewRegistry(objects), nil
}

// Lookup returns the object registered under name.
func (r *Registry) Lookup(name string) (SchemaObject, bool) {
	obj, ok := r.objects[strings.ToUpper(strings.TrimSpace(name))]
	return obj, ok
}

// Classification resolves a registered object's classification level.
func (r *Registry) Classification(name string) (Classification, bool) {
	obj, ok := r.Lookup(name)
	if !ok {
		return NoClearance, false
	}
	level, ok := ParseClassification(obj.Classification)
	if !ok {
		return NoClearance, false
	}
	return level, true
}

// Len reports how many objects are registered.
func (r *Registry) Len() int { return len(r.objects) }
