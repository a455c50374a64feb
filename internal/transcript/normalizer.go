package transcript

import (
	"regexp"
	"strings"
	"unicode"
)

// NormalizerConfig toggles the individual cleanup passes. The zero value
// disables everything; DefaultNormalizerConfig is what production uses.
type NormalizerConfig struct {
	StripFillers       bool
	FillerTokens       []string
	ExpandContractions bool
	CollapseWhitespace bool
	MergeSameSpeaker   bool
	MergeGapSeconds    float64
}

// DefaultNormalizerConfig returns the standard cleanup configuration.
func DefaultNormalizerConfig() NormalizerConfig {
	return NormalizerConfig{
		StripFillers:       true,
		FillerTokens:       []string{"uh", "um", "erm", "you know", "i mean", "like,"},
		ExpandContractions: true,
		CollapseWhitespace: true,
		MergeSameSpeaker:   true,
		MergeGapSeconds:    1.5,
	}
}

// contractions maps lowercase contracted forms to their expansions.
// Keyed on the apostrophe variant actually seen in transcripts.
var contractions = map[string]string{
	"can't":     "cannot",
	"won't":     "will not",
	"don't":     "do not",
	"doesn't":   "does not",
	"didn't":    "did not",
	"isn't":     "is not",
	"wasn't":    "was not",
	"aren't":    "are not",
	"weren't":   "were not",
	"couldn't":  "could not",
	"wouldn't":  "would not",
	"shouldn't": "should not",
	"haven't":   "have not",
	"hasn't":    "has not",
	"hadn't":    "had not",
	"i'm":       "i am",
	"i've":      "i have",
	"i'll":      "i will",
	"i'd":       "i would",
	"you're":    "you are",
	"you've":    "you have",
	"you'll":    "you will",
	"we're":     "we are",
	"we've":     "we have",
	"we'll":     "we will",
	"they're":   "they are",
	"they've":   "they have",
	"they'll":   "they will",
	"it's":      "it is",
	"that's":    "that is",
	"there's":   "there is",
	"what's":    "what is",
	"let's":     "let us",
}

// Normalizer cleans raw diarized transcripts into the canonical form the
// matchers consume. Normalization is deterministic and idempotent:
// Normalize(Normalize(x)) == Normalize(x).
type Normalizer struct {
	cfg      NormalizerConfig
	fillerRE []*regexp.Regexp
}

// NewNormalizer compiles the filler patterns up front so a single Normalizer
// can be reused across evaluations.
func NewNormalizer(cfg NormalizerConfig) *Normalizer {
	n := &Normalizer{cfg: cfg}
	if cfg.StripFillers {
		for _, f := range cfg.FillerTokens {
			// A token with trailing punctuation is matched literally, so
			// "like," strips the discourse marker without touching the verb
			// in "would like to". Bare tokens keep the word boundary and an
			// optional trailing comma or period.
			core := strings.TrimRight(f, ",.")
			var pattern string
			if suffix := f[len(core):]; suffix != "" {
				pattern = `(?i)\b` + regexp.QuoteMeta(core) + regexp.QuoteMeta(suffix)
			} else {
				pattern = `(?i)\b` + regexp.QuoteMeta(core) + `\b[,.]?`
			}
			n.fillerRE = append(n.fillerRE, regexp.MustCompile(pattern))
		}
	}
	return n
}

// Normalize returns a cleaned copy of the transcript. Timestamps and speaker
// attribution are always preserved; text-only passes never drop a segment,
// and merging only joins consecutive same-speaker segments separated by less
// than the configured gap.
func (n *Normalizer) Normalize(segments []Segment) []Segment {
	if len(segments) == 0 {
		return nil
	}

	out := make([]Segment, 0, len(segments))
	for _, s := range segments {
		s.Text = n.cleanText(s.Text)
		s.MatchText = strings.ToLower(s.Text)
		out = append(out, s)
	}

	if n.cfg.MergeSameSpeaker {
		out = n.merge(out)
	}
	return out
}

func (n *Normalizer) cleanText(text string) string {
	if n.cfg.StripFillers {
		for _, re := range n.fillerRE {
			text = re.ReplaceAllString(text, " ")
		}
	}
	if n.cfg.ExpandContractions {
		text = expandContractions(text)
	}
	if n.cfg.CollapseWhitespace {
		text = collapseWhitespace(text)
	}
	return strings.TrimSpace(text)
}

// merge joins consecutive segments from the same speaker separated by less
// than the merge gap, concatenating text and extending the time span.
func (n *Normalizer) merge(segments []Segment) []Segment {
	out := make([]Segment, 0, len(segments))
	for _, s := range segments {
		if len(out) > 0 {
			prev := &out[len(out)-1]
			if prev.Speaker == s.Speaker && s.StartTime-prev.EndTime < n.cfg.MergeGapSeconds {
				prev.Text = joinUtterances(prev.Text, s.Text)
				prev.MatchText = strings.ToLower(prev.Text)
				if s.EndTime > prev.EndTime {
					prev.EndTime = s.EndTime
				}
				// Merged confidence is the weaker of the two signals.
				if s.Confidence < prev.Confidence {
					prev.Confidence = s.Confidence
				}
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

func joinUtterances(a, b string) string {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}

func expandContractions(text string) string {
	words := strings.Split(text, " ")
	for i, w := range words {
		trailing := ""
		core := w
		if len(core) > 0 {
			last := rune(core[len(core)-1])
			if unicode.IsPunct(last) && last != '\'' {
				trailing = core[len(core)-1:]
				core = core[:len(core)-1]
			}
		}
		expanded, ok := contractions[strings.ToLower(core)]
		if !ok {
			continue
		}
		if isCapitalized(core) {
			expanded = capitalize(expanded)
		}
		words[i] = expanded + trailing
	}
	return strings.Join(words, " ")
}

func collapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func isCapitalized(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
