package slack

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// ReactionEvent is the structure received from slack-forwarder via NATS.
type ReactionEvent struct {
	Reaction  string `json:"reaction"`
	UserID    string `json:"user_id"`
	Channel   string `json:"channel"`
	MessageTS string `json:"message_ts"`
}

// ReviewVerdict is the reviewer's verdict on a flagged evaluation.
type ReviewVerdict string

const (
	// VerdictConfirmed means the reviewer agrees with the scored result.
	VerdictConfirmed ReviewVerdict = "confirmed"
	// VerdictDisputed means the reviewer believes the scorer got it wrong.
	VerdictDisputed ReviewVerdict = "disputed"
	// VerdictSkipped means the reviewer declined to judge this call.
	VerdictSkipped ReviewVerdict = "skipped"
	VerdictUnknown ReviewVerdict = "unknown"
)

// verdictByEmoji covers the reaction names reviewers actually use, not just
// the ones the review message suggests.
var verdictByEmoji = map[string]ReviewVerdict{
	"+1":               VerdictConfirmed,
	"thumbsup":         VerdictConfirmed,
	"white_check_mark": VerdictConfirmed,
	"heavy_check_mark": VerdictConfirmed,
	"-1":               VerdictDisputed,
	"thumbsdown":       VerdictDisputed,
	"x":                VerdictDisputed,
	"shrug":            VerdictSkipped,
	"fast_forward":     VerdictSkipped,
}

// ParseReaction converts a Slack reaction emoji name to a review verdict.
func ParseReaction(reaction string) ReviewVerdict {
	if v, ok := verdictByEmoji[reaction]; ok {
		return v
	}
	return VerdictUnknown
}

// ParseReactionEvent parses a NATS message payload from slack-forwarder into
// a ReactionEvent. The forwarder wraps the interesting fields in a metadata
// map and keeps the emoji name in its colon form.
func ParseReactionEvent(data []byte, logger *slog.Logger) (*ReactionEvent, error) {
	var wrapper struct {
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("parse reaction wrapper: %w", err)
	}

	return &ReactionEvent{
		Reaction:  strings.Trim(wrapper.Metadata["text"], ":"),
		UserID:    wrapper.Metadata["user_id"],
		Channel:   wrapper.Metadata["channel_id"],
		MessageTS: wrapper.Metadata["message_ts"],
	}, nil
}
