package guidance_test

import (
	"context"
	"testing"

	"github.com/p-n-ai/pai-guidance/internal/guidance"
)

func TestMemoryEventLogger_LogEvent(t *testing.T) {
	logger := guidance.NewMemoryEventLogger()

	err := logger.LogEvent(context.Background(), guidance.Event{
		StudentID: "stu-1",
		EventType: guidance.EventStudyRecorded,
		Data: map[string]any{
			"minutes": 30,
		},
	})
	if err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}

	events := logger.Events()
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].EventType != guidance.EventStudyRecorded {
		t.Errorf("EventType = %q, want %s", events[0].EventType, guidance.EventStudyRecorded)
	}
	if events[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestMemoryEventLogger_RequiresType(t *testing.T) {
	logger := guidance.NewMemoryEventLogger()
	if err := logger.LogEvent(context.Background(), guidance.Event{StudentID: "stu-1"}); err == nil {
		t.Fatal("expected error for missing event type")
	}
}

func TestPostgresEventLogger_LogEvent_NilPool(t *testing.T) {
	logger := guidance.NewPostgresEventLogger(nil)

	err := logger.LogEvent(context.Background(), guidance.Event{
		StudentID: "stu-1",
		EventType: guidance.EventPlanCommitted,
	})
	if err == nil {
		t.Fatal("expected error for nil pool")
	}
}
