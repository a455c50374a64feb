//go:build integration

package hermes

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/arbiter/internal/transcript"
)

func skipWithoutNATS(t *testing.T) string {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set, skipping integration test")
	}
	return url
}

func TestIntegration_TranscriptStoredRoundTrip(t *testing.T) {
	natsURL := skipWithoutNATS(t)
	ctx := context.Background()
	logger := slog.Default()

	client, err := NewClient(ctx, natsURL, "", logger)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer client.Close()

	received := make(chan TranscriptStored, 1)

	err = client.Subscribe(SubjectTranscriptStored, func(subject string, data []byte) {
		var evt TranscriptStored
		if err := json.Unmarshal(data, &evt); err != nil {
			t.Errorf("decode event: %v", err)
			return
		}
		received <- evt
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	// Give subscription time to propagate
	time.Sleep(100 * time.Millisecond)

	err = client.Publish(SubjectTranscriptStored, TranscriptStored{
		CallID:  "call-integration-1",
		AgentID: "agent-7",
		Segments: []transcript.Segment{
			{Speaker: "agent", Text: "thank you for calling", StartTime: 0, EndTime: 2.1, Confidence: 0.95},
		},
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case evt := <-received:
		if evt.CallID != "call-integration-1" {
			t.Errorf("expected call-integration-1, got %q", evt.CallID)
		}
		if len(evt.Segments) != 1 || evt.Segments[0].Text != "thank you for calling" {
			t.Errorf("segments did not survive the round trip: %+v", evt.Segments)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestIntegration_QueueGroupSingleDelivery(t *testing.T) {
	natsURL := skipWithoutNATS(t)
	ctx := context.Background()
	logger := slog.Default()

	a, err := NewClient(ctx, natsURL, "", logger)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer a.Close()
	b, err := NewClient(ctx, natsURL, "", logger)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer b.Close()

	deliveries := make(chan string, 2)
	handler := func(subject string, data []byte) { deliveries <- subject }
	if err := a.Subscribe("qa.arbiter.itest.queue", handler); err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	if err := b.Subscribe("qa.arbiter.itest.queue", handler); err != nil {
		t.Fatalf("subscribe b: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := a.Publish("qa.arbiter.itest.queue", map[string]string{"n": "1"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case <-deliveries:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	select {
	case <-deliveries:
		t.Fatal("queue group delivered the same message twice")
	case <-time.After(500 * time.Millisecond):
	}
}
