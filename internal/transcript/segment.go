package transcript

import "fmt"

// Speaker identifies who produced a segment.
type Speaker string

const (
	SpeakerAgent  Speaker = "agent"
	SpeakerCaller Speaker = "caller"
)

// Segment is one diarized utterance of a call transcript.
//
// Text keeps the original casing for evidence display; MatchText is the
// lowercased, cleaned form the matchers operate on. Segments are immutable
// once produced: the normalizer returns new values, never mutates in place.
type Segment struct {
	Speaker    Speaker `json:"speaker"`
	Text       string  `json:"text"`
	MatchText  string  `json:"match_text,omitempty"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	Confidence float64 `json:"confidence"`
}

// Validate checks the load-bearing invariants of a transcript: each segment
// has start <= end, a known speaker, and the sequence is ordered by start
// time non-decreasing.
func Validate(segments []Segment) error {
	for i, s := range segments {
		if s.Speaker != SpeakerAgent && s.Speaker != SpeakerCaller {
			return fmt.Errorf("segment %d: unknown speaker %q", i, s.Speaker)
		}
		if s.StartTime > s.EndTime {
			return fmt.Errorf("segment %d: start %.3f after end %.3f", i, s.StartTime, s.EndTime)
		}
		if s.Confidence < 0 || s.Confidence > 1 {
			return fmt.Errorf("segment %d: confidence %.3f out of range", i, s.Confidence)
		}
		if i > 0 && s.StartTime < segments[i-1].StartTime {
			return fmt.Errorf("segment %d: start %.3f precedes previous start %.3f", i, s.StartTime, segments[i-1].StartTime)
		}
	}
	return nil
}
