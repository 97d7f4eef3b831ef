package queue

import (
	"reflect"
	"testing"
)

func TestMessageRoundTrip(t *testing.T) {
	msg := Message{
		JobID:      "job-123",
		RequestID:  "request-456",
		EnqueuedAt: "2026-01-30T22:00:00Z",
		Version:    MessageVersion,
	}

	payload, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}

	got, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}

	if !reflect.DeepEqual(got, msg) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, msg)
	}
}

func TestDecodeMessageUsesJobIDField(t *testing.T) {
	got, err := DecodeMessage([]byte(`{"jobId":"job-9","requestId":"r","version":1}`))
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if got.JobID != "job-9" {
		t.Fatalf("expected job-9, got %q", got.JobID)
	}
}
