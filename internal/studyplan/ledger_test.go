package studyplan_test

import (
	"testing"

	"github.com/p-n-ai/pai-guidance/internal/studyplan"
)

func TestApplyStudy(t *testing.T) {
	topic := studyplan.Topic{ID: "T1", SubjectID: "math", AvgMinutes: 40}

	tests := []struct {
		name          string
		in            studyplan.Progress
		minutes       int
		wantCompleted int
		wantRemaining int
		wantFlag      bool
	}{
		{
			name:          "partial study",
			in:            studyplan.Progress{CompletedMinutes: 10, RemainingMinutes: 30},
			minutes:       25,
			wantCompleted: 35,
			wantRemaining: 5,
			wantFlag:      false,
		},
		{
			name:          "over-study latches flag",
			in:            studyplan.Progress{CompletedMinutes: 35, RemainingMinutes: 5},
			minutes:       10,
			wantCompleted: 45,
			wantRemaining: 0,
			wantFlag:      true,
		},
		{
			name:          "exact exhaustion",
			in:            studyplan.Progress{CompletedMinutes: 0, RemainingMinutes: 40},
			minutes:       40,
			wantCompleted: 40,
			wantRemaining: 0,
			wantFlag:      true,
		},
		{
			name:          "zero minutes is a no-op",
			in:            studyplan.Progress{CompletedMinutes: 5, RemainingMinutes: 35},
			minutes:       0,
			wantCompleted: 5,
			wantRemaining: 35,
			wantFlag:      false,
		},
		{
			name:          "flag never cleared",
			in:            studyplan.Progress{CompletedMinutes: 0, RemainingMinutes: 40, Completed: true},
			minutes:       5,
			wantCompleted: 5,
			wantRemaining: 35,
			wantFlag:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := studyplan.ApplyStudy(tt.in, topic, tt.minutes)
			if got.CompletedMinutes != tt.wantCompleted {
				t.Errorf("CompletedMinutes = %d, want %d", got.CompletedMinutes, tt.wantCompleted)
			}
			if got.RemainingMinutes != tt.wantRemaining {
				t.Errorf("RemainingMinutes = %d, want %d", got.RemainingMinutes, tt.wantRemaining)
			}
			if got.Completed != tt.wantFlag {
				t.Errorf("Completed = %v, want %v", got.Completed, tt.wantFlag)
			}
		})
	}
}

func TestReset(t *testing.T) {
	topic := studyplan.Topic{ID: "T1", AvgMinutes: 40}

	got := studyplan.Reset(studyplan.Progress{
		StudentID:        "s1",
		TopicID:          "T1",
		CompletedMinutes: 55,
		RemainingMinutes: 0,
		Completed:        true,
	}, topic)

	if got.CompletedMinutes != 0 || got.RemainingMinutes != 40 || got.Completed {
		t.Errorf("Reset() = %+v, want completed=0 remaining=40 flag=false", got)
	}
	if got.StudentID != "s1" || got.TopicID != "T1" {
		t.Errorf("Reset() lost identity: %+v", got)
	}
}

func TestForceComplete(t *testing.T) {
	topic := studyplan.Topic{ID: "T1", AvgMinutes: 40}

	done := studyplan.ForceComplete(studyplan.Progress{CompletedMinutes: 10, RemainingMinutes: 30}, topic, true)
	if done.CompletedMinutes != 40 || done.RemainingMinutes != 0 || !done.Completed {
		t.Errorf("ForceComplete(true) = %+v, want completed=40 remaining=0 flag=true", done)
	}

	undone := studyplan.ForceComplete(done, topic, false)
	if undone.Completed {
		t.Error("ForceComplete(false) should clear the flag")
	}
	if undone.CompletedMinutes != 40 || undone.RemainingMinutes != 0 {
		t.Errorf("ForceComplete(false) should leave minutes alone, got %+v", undone)
	}

	// Cleared flag with nothing remaining is still not eligible.
	topics := []studyplan.Topic{{ID: "T1", SubjectID: "math", AvgMinutes: 40}}
	if _, ok := studyplan.NextEligibleTopic("math", topics, studyplan.Snapshot{"T1": undone}); ok {
		t.Error("topic with remaining=0 should not be eligible after ForceComplete(false)")
	}
}

func TestNewProgress_ClampsNegativeBudget(t *testing.T) {
	got := studyplan.NewProgress("s1", studyplan.Topic{ID: "T1", AvgMinutes: -30})
	if got.RemainingMinutes != 0 {
		t.Errorf("RemainingMinutes = %d, want 0", got.RemainingMinutes)
	}
	if got.StudentID != "s1" || got.TopicID != "T1" {
		t.Errorf("NewProgress() identity = %+v", got)
	}
}

func TestEnsure(t *testing.T) {
	topics := []studyplan.Topic{
		{ID: "T1", SubjectID: "math", AvgMinutes: 40},
		{ID: "T2", SubjectID: "math", AvgMinutes: 30},
	}
	existing := studyplan.Snapshot{
		"T1": {StudentID: "s1", TopicID: "T1", CompletedMinutes: 10, RemainingMinutes: 30},
	}

	snap, created := studyplan.Ensure("s1", topics, existing)
	if len(created) != 1 || created[0].TopicID != "T2" {
		t.Fatalf("created = %+v, want only T2", created)
	}
	if snap["T1"].CompletedMinutes != 10 {
		t.Error("Ensure() must not touch existing rows")
	}
	if snap["T2"].RemainingMinutes != 30 {
		t.Errorf("T2 remaining = %d, want 30", snap["T2"].RemainingMinutes)
	}
	if _, ok := existing["T2"]; ok {
		t.Error("Ensure() mutated its input")
	}

	_, again := studyplan.Ensure("s1", topics, snap)
	if len(again) != 0 {
		t.Errorf("second Ensure() created %d rows, want 0", len(again))
	}
}
