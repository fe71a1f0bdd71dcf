package answer

// MaxSources is the maximum number of source locators kept in a Record.
const MaxSources = 3

// Record is the validated answer returned to clients and stored in the cache.
type Record struct {
	// Answer is the selected option number, only set for multiple-choice queries.
	Answer *int `json:"answer"`

	// Reasoning is the explanation or the free-form answer. Never empty.
	Reasoning string `json:"reasoning"`

	// Sources lists up to MaxSources locators in relevance order.
	Sources []string `json:"sources"`

	// Model identifies the model that produced the record.
	Model string `json:"model"`
}

// Degraded reports whether r is the fallback produced for unusable model output.
func (r *Record) Degraded() bool {
	return r.Answer == nil && len(r.Sources) == 0 && r.Reasoning == DegradedReasoning
}

// normalize enforces the record invariants that do not depend on the query.
func (r *Record) normalize() {
	if r.Sources == nil {
		r.Sources = []string{}
	}
	if len(r.Sources) > MaxSources {
		r.Sources = r.Sources[:MaxSources]
	}
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
