package match

import "github.com/MikeSquared-Agency/arbiter/internal/rubric"

// Combine merges the exact and semantic results for one behavior under the
// hybrid precedence policy:
//
//   - exact mode uses the exact result only, even if semantic was computed
//   - semantic mode uses the semantic result only
//   - hybrid prefers exact when present, else semantic, else no detection
//
// The exact-first bias trades recall for precision: exact matches are cheap
// and unambiguous, and companies with scripted language (legal disclosures)
// want them to win. Scores are never averaged across strategies so every
// detection stays explainable as one strategy's output.
func Combine(exact, semantic *Result, mode rubric.DetectionMode) Decision {
	switch mode {
	case rubric.ModeExact:
		semantic = nil
	case rubric.ModeSemantic:
		exact = nil
	}

	if exact != nil {
		return Decision{Detected: true, Type: TypeExact, Result: exact}
	}
	if semantic != nil {
		return Decision{Detected: true, Type: TypeSemantic, Result: semantic}
	}
	return Decision{Detected: false, Type: TypeNone}
}
