// Package match implements the two detection strategies (exact/fuzzy phrase
// matching and embedding-similarity matching) and the hybrid policy that
// combines them.
package match

// Type records which strategy produced a detection.
type Type string

const (
	TypeExact    Type = "exact"
	TypeSemantic Type = "semantic"
	TypeNone     Type = "none"
)

// Result is a single strategy's best match for one behavior.
type Result struct {
	// Phrase is the configured phrase that matched (exact strategy) or the
	// composed behavior query (semantic strategy).
	Phrase string
	// MatchedText is the evidence in its original casing.
	MatchedText string
	// Score is 1.0 for a literal hit, 1-(distance/len) for a fuzzy hit, and
	// the raw similarity for a semantic hit.
	Score float64
	// Fuzzy marks an exact-strategy hit that needed edit distance.
	Fuzzy bool

	StartTime      float64
	EndTime        float64
	SegmentIndexes []int
}

// Decision is the combined outcome for one behavior after the hybrid policy
// has chosen a strategy. Combine never blends the two strategies' scores:
// each detection is explainable as exactly one of them.
type Decision struct {
	Detected bool
	Type     Type
	Result   *Result
}
