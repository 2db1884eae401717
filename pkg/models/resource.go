// Package models contains shared data models used across the FHIRSpective codebase.
package models

import "strings"

// Resource is a decoded FHIR resource. Validation rules address fields by
// dotted path, so the raw JSON structure is kept as-is rather than mapped
// onto per-type structs.
type Resource map[string]any

// ResourceType returns the resourceType element, or "" if absent.
func (r Resource) ResourceType() string {
	t, _ := r["resourceType"].(string)
	return t
}

// ID returns the logical id element, or "" if absent.
func (r Resource) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Field resolves a dotted path like "name.family" or "valueQuantity.value".
// Arrays are traversed through their first element, matching how FHIR
// repeating elements are sampled for quality checks. The second return is
// false when any path segment is missing.
func (r Resource) Field(path string) (any, bool) {
	var cur any = map[string]any(r)
	for _, seg := range strings.Split(path, ".") {
		if arr, ok := cur.([]any); ok {
			if len(arr) == 0 {
				return nil, false
			}
			cur = arr[0]
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// FieldString resolves a dotted path and asserts the value is a non-empty string.
func (r Resource) FieldString(path string) (string, bool) {
	v, ok := r.Field(path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// FieldNumber resolves a dotted path and asserts the value is numeric.
func (r Resource) FieldNumber(path string) (float64, bool) {
	v, ok := r.Field(path)
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}
