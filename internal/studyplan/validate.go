package studyplan

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidInput marks input the planner refuses to work with.
var ErrInvalidInput = errors.New("invalid input")

// ValidateSlot checks a slot's day, times and subject. Zero-length and
// inverted windows are valid; the planner skips them.
func ValidateSlot(slot WeeklySlot) error {
	if slot.Day < 1 || slot.Day > 7 {
		return fmt.Errorf("%w: slot %q: day %d outside 1..7", ErrInvalidInput, slot.ID, slot.Day)
	}
	if _, err := ParseClock(slot.Start); err != nil {
		return fmt.Errorf("%w: slot %q: start: %v", ErrInvalidInput, slot.ID, err)
	}
	if _, err := ParseClock(slot.End); err != nil {
		return fmt.Errorf("%w: slot %q: end: %v", ErrInvalidInput, slot.ID, err)
	}
	if strings.TrimSpace(slot.SubjectID) == "" {
		return fmt.Errorf("%w: slot %q: subject is required", ErrInvalidInput, slot.ID)
	}
	return nil
}

// ValidateInput checks everything PlanWeek takes for granted: slots are
// well formed and belong to the student, and every topic a slot can reach
// has a ledger row.
func ValidateInput(studentID string, slots []WeeklySlot, topics []Topic, snap Snapshot) error {
	subjects := make(map[string]bool)
	for _, s := range slots {
		if err := ValidateSlot(s); err != nil {
			return err
		}
		if s.StudentID != "" && s.StudentID != studentID {
			return fmt.Errorf("%w: slot %q belongs to student %q", ErrInvalidInput, s.ID, s.StudentID)
		}
		subjects[s.SubjectID] = true
	}
	for _, t := range topics {
		if !subjects[t.SubjectID] {
			continue
		}
		if _, ok := snap[t.ID]; !ok {
			return fmt.Errorf("%w: no progress for topic %q", ErrInvalidInput, t.ID)
		}
	}
	return nil
}
