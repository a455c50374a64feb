package transcript

import (
	"reflect"
	"testing"
)

func seg(speaker Speaker, text string, start, end, conf float64) Segment {
	return Segment{Speaker: speaker, Text: text, StartTime: start, EndTime: end, Confidence: conf}
}

func TestNormalize_CleansText(t *testing.T) {
	n := NewNormalizer(DefaultNormalizerConfig())

	tests := []struct {
		name      string
		in        string
		wantText  string
		wantMatch string
	}{
		{"strips fillers", "um so, uh, your account is active", "so, , your account is active", "so, , your account is active"},
		{"strips the like discourse marker", "I was, like, checking the account", "I was, checking the account", "i was, checking the account"},
		{"keeps the like verb", "You would like to upgrade", "You would like to upgrade", "you would like to upgrade"},
		{"expands contractions", "We can't do that", "We cannot do that", "we cannot do that"},
		{"collapses whitespace", "hello    there\t world", "hello there world", "hello there world"},
		{"preserves case in text", "This Call Is Recorded", "This Call Is Recorded", "this call is recorded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Normalize([]Segment{seg(SpeakerAgent, tt.in, 0, 1, 0.9)})
			if len(got) != 1 {
				t.Fatalf("expected 1 segment, got %d", len(got))
			}
			if got[0].MatchText != tt.wantMatch {
				t.Errorf("MatchText = %q, want %q", got[0].MatchText, tt.wantMatch)
			}
		})
	}
}

func TestNormalize_MergesSameSpeakerWithinGap(t *testing.T) {
	n := NewNormalizer(DefaultNormalizerConfig())

	in := []Segment{
		seg(SpeakerAgent, "Thanks for calling.", 0.0, 2.0, 0.95),
		seg(SpeakerAgent, "How can I help?", 2.8, 4.0, 0.90),
		seg(SpeakerCaller, "My router is broken.", 4.5, 6.0, 0.88),
	}
	got := n.Normalize(in)

	if len(got) != 2 {
		t.Fatalf("expected 2 segments after merge, got %d", len(got))
	}
	if got[0].Text != "Thanks for calling. How can I help?" {
		t.Errorf("merged text = %q", got[0].Text)
	}
	if got[0].StartTime != 0.0 || got[0].EndTime != 4.0 {
		t.Errorf("merged span = [%.1f, %.1f], want [0.0, 4.0]", got[0].StartTime, got[0].EndTime)
	}
	if got[0].Confidence != 0.90 {
		t.Errorf("merged confidence = %.2f, want weaker signal 0.90", got[0].Confidence)
	}
	if got[1].Speaker != SpeakerCaller {
		t.Errorf("caller segment lost in merge")
	}
}

func TestNormalize_NoMergeAcrossGapOrSpeaker(t *testing.T) {
	n := NewNormalizer(DefaultNormalizerConfig())

	in := []Segment{
		seg(SpeakerAgent, "One moment please.", 0.0, 1.0, 0.9),
		seg(SpeakerAgent, "Thanks for holding.", 3.0, 4.0, 0.9), // 2.0s gap > 1.5s
		seg(SpeakerCaller, "Sure.", 4.2, 4.5, 0.9),
	}
	got := n.Normalize(in)
	if len(got) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(got))
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	n := NewNormalizer(DefaultNormalizerConfig())

	in := []Segment{
		seg(SpeakerAgent, "Um, I'm sorry, we   can't do that", 0.0, 2.0, 0.9),
		seg(SpeakerAgent, "but I'll check", 2.5, 3.5, 0.85),
		seg(SpeakerCaller, "you know, it's fine", 4.0, 5.0, 0.8),
	}
	once := n.Normalize(in)
	twice := n.Normalize(once)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("normalize not idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	n := NewNormalizer(DefaultNormalizerConfig())
	in := []Segment{
		seg(SpeakerAgent, "Uh, this call is recorded", 0.0, 2.0, 0.9),
		seg(SpeakerCaller, "okay", 2.1, 2.5, 0.9),
	}
	a := n.Normalize(in)
	b := n.Normalize(in)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("normalize not deterministic")
	}
}

func TestNormalize_DisabledPasses(t *testing.T) {
	n := NewNormalizer(NormalizerConfig{}) // everything off
	in := []Segment{seg(SpeakerAgent, "Um, we can't   do that", 0, 1, 0.9)}
	got := n.Normalize(in)
	if got[0].Text != "Um, we can't   do that" {
		t.Errorf("disabled passes still changed text: %q", got[0].Text)
	}
	if got[0].MatchText != "um, we can't   do that" {
		t.Errorf("MatchText should still be lowercased: %q", got[0].MatchText)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		in      []Segment
		wantErr bool
	}{
		{"valid", []Segment{seg(SpeakerAgent, "hi", 0, 1, 0.9), seg(SpeakerCaller, "hello", 1, 2, 0.8)}, false},
		{"empty is valid", nil, false},
		{"start after end", []Segment{seg(SpeakerAgent, "hi", 2, 1, 0.9)}, true},
		{"unknown speaker", []Segment{{Speaker: "supervisor", Text: "hi", StartTime: 0, EndTime: 1, Confidence: 0.9}}, true},
		{"out of order", []Segment{seg(SpeakerAgent, "hi", 5, 6, 0.9), seg(SpeakerCaller, "hello", 1, 2, 0.8)}, true},
		{"confidence out of range", []Segment{seg(SpeakerAgent, "hi", 0, 1, 1.5)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
