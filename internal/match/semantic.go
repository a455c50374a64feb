package match

import (
	"context"
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/arbiter/internal/embedding"
	"github.com/MikeSquared-Agency/arbiter/internal/rubric"
	"github.com/MikeSquared-Agency/arbiter/internal/transcript"
)

// SemanticConfig carries the policy knobs for embedding-similarity matching.
type SemanticConfig struct {
	// Threshold is the minimum similarity for an accepted match.
	Threshold float64
	// MergeGapSeconds bounds the adjacent-utterance merge window.
	MergeGapSeconds float64
	// MinTokens disables semantic matching for utterances shorter than this,
	// forcing exact-only evaluation. Short-utterance embeddings are noisy.
	MinTokens int
	// NegationCues and ClauseBoundaries drive the polarity check for
	// forbidden behaviors.
	NegationCues     []string
	ClauseBoundaries []string
}

// SemanticConfigFromRubric extracts the semantic policy from rubric config.
func SemanticConfigFromRubric(c rubric.Config) SemanticConfig {
	return SemanticConfig{
		Threshold:        c.SemanticThreshold,
		MergeGapSeconds:  c.MergeGapSeconds,
		MinTokens:        c.MinSemanticTokens,
		NegationCues:     c.NegationCues,
		ClauseBoundaries: c.ClauseBoundaries,
	}
}

// Semantic matches behaviors against utterances by embedding similarity.
// Embedding computation is delegated to the provider; this type owns
// thresholding, multi-utterance merging, and negation handling.
type Semantic struct {
	embedder embedding.Provider
	cfg      SemanticConfig
}

func NewSemantic(embedder embedding.Provider, cfg SemanticConfig) *Semantic {
	return &Semantic{embedder: embedder, cfg: cfg}
}

// Query composes the behavior query embedded for similarity comparison.
func Query(b rubric.Behavior) string {
	if len(b.Phrases) == 0 {
		return b.Description
	}
	return b.Description + ", " + strings.Join(b.Phrases, ",")
}

type scored struct {
	index int
	score float64
}

// Match returns the highest-scoring utterance at or above the threshold, or
// nil if none qualifies. When the best single utterance falls short, the
// concatenation of an utterance with its immediate same-speaker successor
// (within the merge gap) is tried, with evidence spanning both.
//
// For forbidden behaviors a candidate is rejected when a negation cue
// precedes the matched content within the same clause: "we will not replace
// it" must not match an affirmative replacement promise.
func (s *Semantic) Match(ctx context.Context, b rubric.Behavior, segments []transcript.Segment) (*Result, error) {
	query := Query(b)
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed behavior query: %w", err)
	}

	var best *scored
	for i, seg := range segments {
		if !speakerMatches(b, seg) {
			continue
		}
		if len(strings.Fields(seg.MatchText)) < s.cfg.MinTokens {
			continue
		}
		vec, err := s.embedder.Embed(ctx, seg.MatchText)
		if err != nil {
			return nil, fmt.Errorf("embed utterance: %w", err)
		}
		score := embedding.Cosine(queryVec, vec)
		if best == nil || score > best.score {
			best = &scored{index: i, score: score}
		}
	}
	if best == nil {
		return nil, nil
	}

	if best.score >= s.cfg.Threshold {
		seg := segments[best.index]
		if s.rejectNegated(b, seg.MatchText) {
			return nil, nil
		}
		return &Result{
			Phrase:         query,
			MatchedText:    seg.Text,
			Score:          best.score,
			StartTime:      seg.StartTime,
			EndTime:        seg.EndTime,
			SegmentIndexes: []int{best.index},
		}, nil
	}

	return s.tryMerged(ctx, b, queryVec, segments, best.index)
}

// tryMerged retries the top utterance concatenated with its immediately
// following same-speaker utterance when the single utterance fell below
// threshold.
func (s *Semantic) tryMerged(ctx context.Context, b rubric.Behavior, queryVec []float64, segments []transcript.Segment, top int) (*Result, error) {
	next := top + 1
	if next >= len(segments) {
		return nil, nil
	}
	a, n := segments[top], segments[next]
	if a.Speaker != n.Speaker || n.StartTime-a.EndTime >= s.cfg.MergeGapSeconds {
		return nil, nil
	}

	mergedMatch := a.MatchText + " " + n.MatchText
	vec, err := s.embedder.Embed(ctx, mergedMatch)
	if err != nil {
		return nil, fmt.Errorf("embed merged utterances: %w", err)
	}
	score := embedding.Cosine(queryVec, vec)
	if score < s.cfg.Threshold {
		return nil, nil
	}
	if s.rejectNegated(b, mergedMatch) {
		return nil, nil
	}
	return &Result{
		Phrase:         Query(b),
		MatchedText:    a.Text + " " + n.Text,
		Score:          score,
		StartTime:      a.StartTime,
		EndTime:        n.EndTime,
		SegmentIndexes: []int{top, next},
	}, nil
}

// rejectNegated applies the polarity check. It only guards forbidden
// behaviors: for those, a semantically similar utterance that negates the
// target content is not a violation.
func (s *Semantic) rejectNegated(b rubric.Behavior, utterance string) bool {
	forbidden := b.Type == rubric.TypeForbidden ||
		(b.Type == rubric.TypeCritical && b.ForbiddenContent)
	if !forbidden {
		return false
	}
	return Negated(utterance, contentTokens(b), s.cfg.NegationCues, s.cfg.ClauseBoundaries)
}

// contentTokens extracts the distinctive words of the behavior's phrases and
// description, used to locate the matched span for the negation scope check.
func contentTokens(b rubric.Behavior) map[string]bool {
	out := make(map[string]bool)
	add := func(text string) {
		for _, w := range strings.Fields(strings.ToLower(text)) {
			w = strings.Trim(w, ".,!?;:\"'")
			if len(w) >= 3 && !stopword[w] {
				out[w] = true
			}
		}
	}
	for _, p := range b.Phrases {
		add(p)
	}
	add(b.Description)
	return out
}

var stopword = map[string]bool{
	"the": true, "and": true, "for": true, "you": true, "your": true,
	"with": true, "that": true, "this": true, "are": true, "was": true,
	"will": true, "have": true, "has": true, "our": true,
}

// Negated reports whether a negation cue appears before the first content
// token of the utterance with no clause boundary in between. The matched
// span is approximated by the first token overlapping the behavior's content
// tokens; if none overlaps, the scope is the whole first clause.
func Negated(utterance string, content map[string]bool, cues, boundaries []string) bool {
	cueSet := make(map[string]bool, len(cues))
	for _, c := range cues {
		cueSet[strings.ToLower(c)] = true
	}
	boundarySet := make(map[string]bool, len(boundaries))
	var punctBoundaries []string
	for _, b := range boundaries {
		if len(b) == 1 && strings.ContainsAny(b, ",;.!?") {
			punctBoundaries = append(punctBoundaries, b)
		} else {
			boundarySet[strings.ToLower(b)] = true
		}
	}

	tokens := strings.Fields(strings.ToLower(utterance))
	matchIdx := len(tokens)
	for i, tok := range tokens {
		if overlaps(strings.Trim(tok, ".,!?;:\"'"), content) {
			matchIdx = i
			break
		}
	}

	cueSeen := false
	for i := 0; i < matchIdx && i < len(tokens); i++ {
		tok := tokens[i]
		trimmed := strings.Trim(tok, ".,!?;:\"'")

		if cueSeen {
			// A boundary between the cue and the matched span breaks scope.
			if boundarySet[trimmed] || hasPunct(tok, punctBoundaries) {
				cueSeen = false
			}
			continue
		}
		if cueSet[trimmed] && !hasPunct(tok, punctBoundaries) {
			cueSeen = true
		}
	}
	return cueSeen
}

// overlaps matches a token against the content set, allowing inflection
// (replace vs replacement, guarantee vs guaranteed) via prefix comparison.
func overlaps(tok string, content map[string]bool) bool {
	if len(tok) < 3 {
		return false
	}
	if content[tok] {
		return true
	}
	for c := range content {
		if len(tok) >= 4 && len(c) >= 4 &&
			(strings.HasPrefix(tok, c) || strings.HasPrefix(c, tok)) {
			return true
		}
	}
	return false
}

func hasPunct(tok string, puncts []string) bool {
	for _, p := range puncts {
		if strings.HasSuffix(tok, p) {
			return true
		}
	}
	return false
}
