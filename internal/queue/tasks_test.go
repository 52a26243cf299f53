package queue

import (
	"testing"
	"time"
)

func TestPrewarmDerivativeTaskRoundTrip(t *testing.T) {
	payload := PrewarmPayload{
		BatchID:     "batch-123",
		Path:        "/images/rio/1.png/format=jpeg,width=100",
		WebhookURL:  "https://example.com/hooks/prewarm",
		RequestedAt: time.Now().UTC(),
	}

	task, err := NewPrewarmDerivativeTask(payload)
	if err != nil {
		t.Fatalf("NewPrewarmDerivativeTask returned error: %v", err)
	}
	if task.Type() != TypePrewarmDerivative {
		t.Fatalf("expected task type %s, got %s", TypePrewarmDerivative, task.Type())
	}

	parsed, err := ParsePrewarmPayload(task)
	if err != nil {
		t.Fatalf("ParsePrewarmPayload returned error: %v", err)
	}

	if parsed.BatchID != payload.BatchID {
		t.Fatalf("expected batch_id %q, got %q", payload.BatchID, parsed.BatchID)
	}
	if parsed.Path != payload.Path {
		t.Fatalf("expected path %q, got %q", payload.Path, parsed.Path)
	}
}
