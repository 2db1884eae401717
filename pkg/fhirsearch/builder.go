// Package fhirsearch constructs FHIR search parameter strings.
package fhirsearch

import (
	"net/url"
	"strconv"
	"time"
)

// Builder constructs encoded FHIR search parameter strings.
// All methods are pure functions with no side effects.
// Zero value is ready to use.
type Builder struct{}

// SampleParams defines inputs for a quality-assessment sample query.
type SampleParams struct {
	// Count is the per-page _count hint sent to the server.
	Count int
	// UpdatedSince restricts the sample to recently touched resources.
	// Zero means no _lastUpdated bound.
	UpdatedSince time.Time
}

// BuildSampleQuery returns the encoded parameter string for sampling a
// resource type, newest first so the sample reflects current data quality.
func (b Builder) BuildSampleQuery(p SampleParams) string {
	v := url.Values{}
	if p.Count > 0 {
		v.Set("_count", strconv.Itoa(p.Count))
	}
	v.Set("_sort", "-_lastUpdated")
	if !p.UpdatedSince.IsZero() {
		v.Set("_lastUpdated", "ge"+p.UpdatedSince.UTC().Format("2006-01-02"))
	}
	return v.Encode()
}
