package store

import "github.com/Strob0t/CodeForge/internal/edge"

// Filters narrows a range scan or analytics query to edges matching the
// given dimension values (spec §4.C, §4.D). Zero-value fields are
// wildcards.
type Filters struct {
	ProjectID *uint16
	AgentID   *uint64
	SessionID *uint64
	SpanType  *edge.SpanType
	ErrorOnly bool
}

// HasAny reports whether any dimension filter is set (spec §4.G step 3:
// "filters.has_any()").
func (f Filters) HasAny() bool {
	return f.ProjectID != nil || f.AgentID != nil || f.SessionID != nil || f.SpanType != nil || f.ErrorOnly
}

// Match reports whether e satisfies every set dimension in f.
func (f Filters) Match(e edge.Edge) bool {
	if f.ProjectID != nil && e.ProjectID != *f.ProjectID {
		return false
	}
	if f.AgentID != nil && e.AgentID != *f.AgentID {
		return false
	}
	if f.SessionID != nil && e.SessionID != *f.SessionID {
		return false
	}
	if f.SpanType != nil && e.SpanType != *f.SpanType {
		return false
	}
	if f.ErrorOnly && !e.IsError() {
		return false
	}
	return true
}
