package studyplan_test

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/p-n-ai/pai-guidance/internal/studyplan"
)

// monday is the anchor week used throughout: 2026-10-12 is a Monday.
var monday = time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)

func mathTopics() []studyplan.Topic {
	return []studyplan.Topic{
		{ID: "T1", SubjectID: "math", Name: "Algebra", Order: 1, AvgMinutes: 40},
		{ID: "T2", SubjectID: "math", Name: "Geometry", Order: 2, AvgMinutes: 30},
	}
}

func fresh(studentID string, topics []studyplan.Topic) studyplan.Snapshot {
	snap, _ := studyplan.Ensure(studentID, topics, nil)
	return snap
}

func TestPlanWeek_FillsSlotAcrossTopics(t *testing.T) {
	topics := mathTopics()
	slots := []studyplan.WeeklySlot{
		{ID: "s1", StudentID: "stu", Day: 1, Start: "09:00", End: "10:00", SubjectID: "math"},
	}

	plan := studyplan.PlanWeek("stu", monday, slots, topics, fresh("stu", topics))

	want := []studyplan.PlannedEntry{
		{SlotID: "s1", Date: monday, Start: "09:00", End: "09:40", SubjectID: "math", TopicID: "T1", Allocated: 40, RemainingAfter: 0},
		{SlotID: "s1", Date: monday, Start: "09:40", End: "10:00", SubjectID: "math", TopicID: "T2", Allocated: 20, RemainingAfter: 10},
	}
	if !reflect.DeepEqual(plan.Entries, want) {
		t.Errorf("Entries =\n%+v\nwant\n%+v", plan.Entries, want)
	}
	if len(plan.Truncated) != 0 {
		t.Errorf("Truncated = %v, want none", plan.Truncated)
	}
}

func TestPlanWeek_ZeroDurationSlot(t *testing.T) {
	topics := mathTopics()
	slots := []studyplan.WeeklySlot{
		{ID: "s1", Day: 1, Start: "09:00", End: "09:00", SubjectID: "math"},
		{ID: "s2", Day: 2, Start: "10:00", End: "09:00", SubjectID: "math"},
	}

	plan := studyplan.PlanWeek("stu", monday, slots, topics, fresh("stu", topics))
	if len(plan.Entries) != 0 {
		t.Errorf("len(Entries) = %d, want 0", len(plan.Entries))
	}
}

func TestPlanWeek_SkipsFlaggedTopicDespiteRemaining(t *testing.T) {
	topics := []studyplan.Topic{{ID: "T1", SubjectID: "math", Name: "Algebra", Order: 1, AvgMinutes: 40}}
	snap := studyplan.Snapshot{
		"T1": {StudentID: "stu", TopicID: "T1", RemainingMinutes: 40, Completed: true},
	}
	slots := []studyplan.WeeklySlot{{ID: "s1", Day: 1, Start: "09:00", End: "09:40", SubjectID: "math"}}

	plan := studyplan.PlanWeek("stu", monday, slots, topics, snap)
	if len(plan.Entries) != 0 {
		t.Errorf("len(Entries) = %d, want 0", len(plan.Entries))
	}
}

func TestPlanWeek_ExhaustionCarriesAcrossSlots(t *testing.T) {
	topics := []studyplan.Topic{{ID: "T1", SubjectID: "math", Name: "Algebra", Order: 1, AvgMinutes: 20}}
	slots := []studyplan.WeeklySlot{
		{ID: "s2", Day: 1, Start: "09:30", End: "10:00", SubjectID: "math"},
		{ID: "s1", Day: 1, Start: "09:00", End: "09:30", SubjectID: "math"},
	}

	plan := studyplan.PlanWeek("stu", monday, slots, topics, fresh("stu", topics))

	want := []studyplan.PlannedEntry{
		{SlotID: "s1", Date: monday, Start: "09:00", End: "09:20", SubjectID: "math", TopicID: "T1", Allocated: 20, RemainingAfter: 0},
	}
	if !reflect.DeepEqual(plan.Entries, want) {
		t.Errorf("Entries = %+v, want %+v", plan.Entries, want)
	}
}

func TestPlanWeek_SlotProcessingOrder(t *testing.T) {
	topics := []studyplan.Topic{
		{ID: "M1", SubjectID: "math", Order: 1, AvgMinutes: 600},
		{ID: "B1", SubjectID: "bio", Order: 1, AvgMinutes: 600},
	}
	slots := []studyplan.WeeklySlot{
		{ID: "tue", Day: 2, Start: "07:00", End: "07:30", SubjectID: "bio"},
		{ID: "mon9", Day: 1, Start: "09:00", End: "09:30", SubjectID: "math"},
		{ID: "mon8", Day: 1, Start: "08:00", End: "08:30", SubjectID: "bio"},
	}

	plan := studyplan.PlanWeek("stu", monday, slots, topics, fresh("stu", topics))

	var order []string
	for _, e := range plan.Entries {
		order = append(order, e.SlotID)
	}
	want := []string{"mon8", "mon9", "tue"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("slot order = %v, want %v", order, want)
	}
	if got := plan.Entries[2].Date; !got.Equal(monday.AddDate(0, 0, 1)) {
		t.Errorf("tuesday entry date = %s, want %s", got.Format(time.DateOnly), monday.AddDate(0, 0, 1).Format(time.DateOnly))
	}
}

func TestPlanWeek_DoesNotMutateSnapshot(t *testing.T) {
	topics := mathTopics()
	snap := fresh("stu", topics)
	before := snap.Clone()
	slots := []studyplan.WeeklySlot{{ID: "s1", Day: 3, Start: "14:00", End: "16:00", SubjectID: "math"}}

	studyplan.PlanWeek("stu", monday, slots, topics, snap)

	if !reflect.DeepEqual(snap, before) {
		t.Errorf("snapshot changed: %+v, want %+v", snap, before)
	}
}

func TestPlanWeek_NormalisesWeekStart(t *testing.T) {
	topics := mathTopics()
	slots := []studyplan.WeeklySlot{{ID: "s1", Day: 7, Start: "09:00", End: "09:10", SubjectID: "math"}}
	afternoon := monday.Add(15 * time.Hour)

	plan := studyplan.PlanWeek("stu", afternoon, slots, topics, fresh("stu", topics))

	if !plan.WeekStart.Equal(monday) {
		t.Errorf("WeekStart = %s, want %s", plan.WeekStart, monday)
	}
	if want := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC); !plan.Entries[0].Date.Equal(want) {
		t.Errorf("Date = %s, want %s", plan.Entries[0].Date, want)
	}
}

func TestPlanWeek_IterationCap(t *testing.T) {
	var topics []studyplan.Topic
	for i := 0; i < 250; i++ {
		topics = append(topics, studyplan.Topic{
			ID: fmt.Sprintf("T%03d", i), SubjectID: "math", Order: i, AvgMinutes: 1,
		})
	}
	slots := []studyplan.WeeklySlot{{ID: "long", Day: 1, Start: "08:00", End: "13:00", SubjectID: "math"}}

	plan := studyplan.PlanWeek("stu", monday, slots, topics, fresh("stu", topics))

	if len(plan.Entries) != studyplan.MaxAllocationsPerSlot {
		t.Errorf("len(Entries) = %d, want %d", len(plan.Entries), studyplan.MaxAllocationsPerSlot)
	}
	if !reflect.DeepEqual(plan.Truncated, []string{"long"}) {
		t.Errorf("Truncated = %v, want [long]", plan.Truncated)
	}
}

func TestPlanWeek_Properties(t *testing.T) {
	topics := []studyplan.Topic{
		{ID: "M1", SubjectID: "math", Name: "Algebra", Order: 1, AvgMinutes: 50},
		{ID: "M2", SubjectID: "math", Name: "Geometry", Order: 2, AvgMinutes: 35},
		{ID: "M3", SubjectID: "math", Name: "Probability", Order: 3, AvgMinutes: 90},
		{ID: "P1", SubjectID: "phys", Name: "Motion", Order: 1, AvgMinutes: 25},
		{ID: "P2", SubjectID: "phys", Name: "Forces", Order: 2, AvgMinutes: 45},
		{ID: "C1", SubjectID: "chem", Name: "Atoms", Order: 1, AvgMinutes: 60},
	}
	snap := fresh("stu", topics)
	snap["M1"] = studyplan.Progress{StudentID: "stu", TopicID: "M1", CompletedMinutes: 20, RemainingMinutes: 30}
	snap["C1"] = studyplan.Progress{StudentID: "stu", TopicID: "C1", RemainingMinutes: 60, Completed: true}

	slots := []studyplan.WeeklySlot{
		{ID: "a", Day: 1, Start: "16:00", End: "17:15", SubjectID: "math"},
		{ID: "b", Day: 1, Start: "17:30", End: "18:00", SubjectID: "phys"},
		{ID: "c", Day: 3, Start: "16:00", End: "17:00", SubjectID: "math"},
		{ID: "d", Day: 4, Start: "08:00", End: "09:30", SubjectID: "chem"},
		{ID: "e", Day: 5, Start: "19:00", End: "20:30", SubjectID: "phys"},
		{ID: "f", Day: 6, Start: "10:00", End: "10:00", SubjectID: "math"},
		{ID: "g", Day: 7, Start: "10:00", End: "12:00", SubjectID: "math"},
	}

	first := studyplan.PlanWeek("stu", monday, slots, topics, snap)
	second := studyplan.PlanWeek("stu", monday, slots, topics, snap)

	t.Run("determinism", func(t *testing.T) {
		if !reflect.DeepEqual(first, second) {
			t.Error("two runs over identical input differ")
		}
		if first.Fingerprint() != second.Fingerprint() {
			t.Error("fingerprints differ for identical input")
		}
	})

	t.Run("non-negative allocation", func(t *testing.T) {
		for i, e := range first.Entries {
			if e.Allocated <= 0 {
				t.Errorf("entry %d allocated = %d", i, e.Allocated)
			}
			if e.RemainingAfter < 0 {
				t.Errorf("entry %d remaining_after = %d", i, e.RemainingAfter)
			}
		}
	})

	t.Run("contiguity within slot", func(t *testing.T) {
		for i := 1; i < len(first.Entries); i++ {
			prev, cur := first.Entries[i-1], first.Entries[i]
			if prev.SlotID == cur.SlotID && prev.End != cur.Start {
				t.Errorf("entries %d/%d in slot %s: %s != %s", i-1, i, cur.SlotID, prev.End, cur.Start)
			}
		}
	})

	t.Run("monotonic exhaustion", func(t *testing.T) {
		last := make(map[string]int)
		for i, e := range first.Entries {
			if prev, seen := last[e.TopicID]; seen {
				if prev == 0 {
					t.Errorf("entry %d references exhausted topic %s", i, e.TopicID)
				}
				if e.RemainingAfter > prev {
					t.Errorf("entry %d: remaining for %s rose from %d to %d", i, e.TopicID, prev, e.RemainingAfter)
				}
			}
			last[e.TopicID] = e.RemainingAfter
		}
	})

	t.Run("skip if done", func(t *testing.T) {
		for _, e := range first.Entries {
			if e.TopicID == "C1" {
				t.Fatal("flagged topic C1 was planned")
			}
		}
	})

	t.Run("allocation bounded by ledger", func(t *testing.T) {
		for id, minutes := range first.TopicMinutes() {
			if minutes > snap[id].RemainingMinutes {
				t.Errorf("topic %s planned %d min, only %d remaining", id, minutes, snap[id].RemainingMinutes)
			}
		}
	})
}

func TestAllocateSlot_ReturnsThreadedSnapshot(t *testing.T) {
	topics := mathTopics()
	snap := fresh("stu", topics)
	slot := studyplan.WeeklySlot{ID: "s1", Day: 2, Start: "09:00", End: "09:50", SubjectID: "math"}

	entries, next := studyplan.AllocateSlot(slot, monday, topics, snap)

	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if !next["T1"].Completed || next["T1"].RemainingMinutes != 0 {
		t.Errorf("T1 after = %+v, want exhausted and flagged", next["T1"])
	}
	if next["T2"].RemainingMinutes != 20 || next["T2"].CompletedMinutes != 10 {
		t.Errorf("T2 after = %+v, want remaining=20 completed=10", next["T2"])
	}
	if snap["T1"].RemainingMinutes != 40 {
		t.Error("AllocateSlot() mutated its input snapshot")
	}

	// Feeding the returned snapshot into a second slot continues where the first stopped.
	more, _ := studyplan.AllocateSlot(slot, monday, topics, next)
	if len(more) != 1 || more[0].TopicID != "T2" || more[0].Allocated != 20 {
		t.Errorf("second allocation = %+v, want 20 min of T2", more)
	}
}

func TestAllocateSlot_NoEligibleTopicLeavesTimeUnused(t *testing.T) {
	topics := mathTopics()
	slot := studyplan.WeeklySlot{ID: "s1", Day: 1, Start: "09:00", End: "11:00", SubjectID: "math"}

	entries, _ := studyplan.AllocateSlot(slot, monday, topics, fresh("stu", topics))

	total := 0
	for _, e := range entries {
		total += e.Allocated
	}
	if total != 70 {
		t.Errorf("allocated %d min, want 70 (workload, not slot length)", total)
	}
	if got := entries[len(entries)-1].End; got != "10:10" {
		t.Errorf("last end = %s, want 10:10", got)
	}
}

func TestFingerprint_ChangesWithProgress(t *testing.T) {
	topics := mathTopics()
	slots := []studyplan.WeeklySlot{{ID: "s1", Day: 1, Start: "09:00", End: "10:00", SubjectID: "math"}}
	snap := fresh("stu", topics)

	before := studyplan.PlanWeek("stu", monday, slots, topics, snap)
	snap["T1"] = studyplan.ApplyStudy(snap["T1"], topics[0], 15)
	after := studyplan.PlanWeek("stu", monday, slots, topics, snap)

	if before.Fingerprint() == after.Fingerprint() {
		t.Error("fingerprint should change when the ledger changes the plan")
	}
}

func TestValidateSlot(t *testing.T) {
	tests := []struct {
		name    string
		slot    studyplan.WeeklySlot
		wantErr bool
	}{
		{"valid", studyplan.WeeklySlot{Day: 1, Start: "09:00", End: "10:00", SubjectID: "math"}, false},
		{"zero length is valid", studyplan.WeeklySlot{Day: 7, Start: "09:00", End: "09:00", SubjectID: "math"}, false},
		{"inverted is valid", studyplan.WeeklySlot{Day: 3, Start: "11:00", End: "10:00", SubjectID: "math"}, false},
		{"day zero", studyplan.WeeklySlot{Day: 0, Start: "09:00", End: "10:00", SubjectID: "math"}, true},
		{"day eight", studyplan.WeeklySlot{Day: 8, Start: "09:00", End: "10:00", SubjectID: "math"}, true},
		{"bad start", studyplan.WeeklySlot{Day: 1, Start: "9am", End: "10:00", SubjectID: "math"}, true},
		{"bad end", studyplan.WeeklySlot{Day: 1, Start: "09:00", End: "25:00", SubjectID: "math"}, true},
		{"no subject", studyplan.WeeklySlot{Day: 1, Start: "09:00", End: "10:00"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := studyplan.ValidateSlot(tt.slot)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateSlot() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, studyplan.ErrInvalidInput) {
				t.Errorf("error %v should wrap ErrInvalidInput", err)
			}
		})
	}
}

func TestValidateInput(t *testing.T) {
	topics := append(mathTopics(), studyplan.Topic{ID: "B1", SubjectID: "bio", AvgMinutes: 10})
	slots := []studyplan.WeeklySlot{{ID: "s1", StudentID: "stu", Day: 1, Start: "09:00", End: "10:00", SubjectID: "math"}}

	t.Run("complete ledger", func(t *testing.T) {
		// bio has no slot, so its missing row is irrelevant.
		snap := fresh("stu", mathTopics())
		if err := studyplan.ValidateInput("stu", slots, topics, snap); err != nil {
			t.Errorf("ValidateInput() error = %v", err)
		}
	})

	t.Run("missing progress row", func(t *testing.T) {
		snap := fresh("stu", mathTopics()[:1])
		err := studyplan.ValidateInput("stu", slots, topics, snap)
		if !errors.Is(err, studyplan.ErrInvalidInput) {
			t.Errorf("ValidateInput() error = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("foreign slot", func(t *testing.T) {
		err := studyplan.ValidateInput("other", slots, topics, fresh("other", topics))
		if !errors.Is(err, studyplan.ErrInvalidInput) {
			t.Errorf("ValidateInput() error = %v, want ErrInvalidInput", err)
		}
	})
}

func TestClockHelpers(t *testing.T) {
	if got := studyplan.MinutesBetween("10:15", "09:00"); got != 75 {
		t.Errorf("MinutesBetween = %d, want 75", got)
	}
	if got := studyplan.MinutesBetween("08:00", "09:00"); got != -60 {
		t.Errorf("MinutesBetween inverted = %d, want -60", got)
	}
	if got := studyplan.MinutesBetween("junk", "09:00"); got != 0 {
		t.Errorf("MinutesBetween junk = %d, want 0", got)
	}
	if got := studyplan.FormatClock(9*60 + 5); got != "09:05" {
		t.Errorf("FormatClock = %q, want 09:05", got)
	}

	thursday := time.Date(2026, 10, 15, 13, 45, 0, 0, time.UTC)
	if got := studyplan.WeekStartOf(thursday); !got.Equal(monday) {
		t.Errorf("WeekStartOf(thursday) = %s, want %s", got, monday)
	}
	sunday := time.Date(2026, 10, 18, 23, 0, 0, 0, time.UTC)
	if got := studyplan.WeekStartOf(sunday); !got.Equal(monday) {
		t.Errorf("WeekStartOf(sunday) = %s, want %s", got, monday)
	}
}
