package match

import (
	"strings"

	"github.com/MikeSquared-Agency/arbiter/internal/rubric"
	"github.com/MikeSquared-Agency/arbiter/internal/transcript"
)

// Exact runs literal and edit-distance-bounded phrase matching for one
// behavior over the normalized transcript. Returns nil when no phrase
// satisfies the bound.
//
// Only agent segments are considered unless the behavior targets the caller.
// The first satisfying match by segment start time wins; ties at the same
// start break toward the longer phrase (more specific match preferred), then
// lexicographic phrase order for determinism.
func Exact(b rubric.Behavior, segments []transcript.Segment, maxDistanceRatio float64) *Result {
	var best *Result
	for _, phrase := range b.Phrases {
		lower := strings.ToLower(strings.TrimSpace(phrase))
		if lower == "" {
			continue
		}
		for i, seg := range segments {
			if !speakerMatches(b, seg) {
				continue
			}
			r := matchPhrase(lower, phrase, seg, i, maxDistanceRatio)
			if r == nil {
				continue
			}
			if better(r, best) {
				best = r
			}
			break // earliest segment for this phrase found
		}
	}
	return best
}

func speakerMatches(b rubric.Behavior, seg transcript.Segment) bool {
	if b.TargetsCaller {
		return seg.Speaker == transcript.SpeakerCaller
	}
	return seg.Speaker == transcript.SpeakerAgent
}

// matchPhrase tries a literal substring hit first, then the bounded fuzzy
// match over token windows of the segment.
func matchPhrase(lower, original string, seg transcript.Segment, idx int, maxDistanceRatio float64) *Result {
	if strings.Contains(seg.MatchText, lower) {
		return &Result{
			Phrase:         original,
			MatchedText:    seg.Text,
			Score:          1.0,
			StartTime:      seg.StartTime,
			EndTime:        seg.EndTime,
			SegmentIndexes: []int{idx},
		}
	}

	phraseLen := len([]rune(lower))
	maxDist := int(float64(phraseLen) * maxDistanceRatio)
	if maxDist == 0 {
		return nil
	}

	words := strings.Fields(seg.MatchText)
	window := len(strings.Fields(lower))
	if window == 0 || len(words) < window {
		return nil
	}

	bestDist := -1
	for i := 0; i+window <= len(words); i++ {
		candidate := strings.Join(words[i:i+window], " ")
		d := levenshtein(lower, candidate)
		if d <= maxDist && (bestDist < 0 || d < bestDist) {
			bestDist = d
		}
	}
	if bestDist < 0 {
		return nil
	}

	score := 1.0 - float64(bestDist)/float64(phraseLen)
	if score < 0 {
		score = 0
	}
	return &Result{
		Phrase:         original,
		MatchedText:    seg.Text,
		Score:          score,
		Fuzzy:          true,
		StartTime:      seg.StartTime,
		EndTime:        seg.EndTime,
		SegmentIndexes: []int{idx},
	}
}

// better implements the earliest-evidence tie-break policy.
func better(r, best *Result) bool {
	if best == nil {
		return true
	}
	if r.StartTime != best.StartTime {
		return r.StartTime < best.StartTime
	}
	if len(r.Phrase) != len(best.Phrase) {
		return len(r.Phrase) > len(best.Phrase)
	}
	return r.Phrase < best.Phrase
}

// levenshtein computes edit distance with the two-row Wagner-Fischer form.
func levenshtein(a, b string) int {
	r1 := []rune(a)
	r2 := []rune(b)
	len1 := len(r1)
	len2 := len(r2)

	if len1 == 0 {
		return len2
	}
	if len2 == 0 {
		return len1
	}
	if len1 > len2 {
		r1, r2 = r2, r1
		len1, len2 = len2, len1
	}

	prev := make([]int, len1+1)
	curr := make([]int, len1+1)
	for i := 0; i <= len1; i++ {
		prev[i] = i
	}

	for j := 1; j <= len2; j++ {
		curr[0] = j
		for i := 1; i <= len1; i++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			curr[i] = min(prev[i]+1, min(curr[i-1]+1, prev[i-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len1]
}
