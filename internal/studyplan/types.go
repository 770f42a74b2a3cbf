// Package studyplan turns a student's weekly study slots and per-topic
// workload ledger into a dated weekly schedule.
//
// Everything in this package is a pure function of its arguments: nothing
// here reads a clock, touches storage or logs. Callers load snapshots,
// validate them and hand them in.
package studyplan

import "time"

// Topic is a unit of study within a subject.
type Topic struct {
	ID         string `json:"id" yaml:"id"`
	SubjectID  string `json:"subject_id" yaml:"subject_id"`
	Name       string `json:"name" yaml:"name"`
	Order      int    `json:"order" yaml:"order"`
	AvgMinutes int    `json:"avg_minutes" yaml:"avg_minutes"` // total budgeted effort
}

// Progress is one student's ledger row for one topic.
type Progress struct {
	StudentID        string `json:"student_id"`
	TopicID          string `json:"topic_id"`
	CompletedMinutes int    `json:"completed_minutes"`
	RemainingMinutes int    `json:"remaining_minutes"`
	Completed        bool   `json:"completed"` // one-way latch, see ApplyStudy
}

// Snapshot is a student's progress ledger keyed by topic ID.
type Snapshot map[string]Progress

// Clone returns an independent copy of s.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// WeeklySlot is a recurring weekly window committed to one subject.
// End is not guaranteed to be after Start.
type WeeklySlot struct {
	ID        string `json:"id"`
	StudentID string `json:"student_id"`
	Day       int    `json:"day"`   // 1=Monday .. 7=Sunday
	Start     string `json:"start"` // HH:MM
	End       string `json:"end"`   // HH:MM
	SubjectID string `json:"subject_id"`
}

// PlannedEntry is one dated allocation of a topic to part of a slot.
type PlannedEntry struct {
	SlotID         string    `json:"slot_id"`
	Date           time.Time `json:"date"`
	Start          string    `json:"start"`
	End            string    `json:"end"`
	SubjectID      string    `json:"subject_id"`
	TopicID        string    `json:"topic_id"`
	Allocated      int       `json:"allocated"`
	RemainingAfter int       `json:"remaining_after"`
}

// Plan is the result of planning one student's week.
type Plan struct {
	StudentID string         `json:"student_id"`
	WeekStart time.Time      `json:"week_start"`
	Entries   []PlannedEntry `json:"entries"`
	// Truncated lists slots whose allocation stopped at MaxAllocationsPerSlot.
	// A non-empty list points at bad catalog or ledger data.
	Truncated []string `json:"truncated,omitempty"`
}

// TopicMinutes sums allocated minutes per topic across the plan.
func (p Plan) TopicMinutes() map[string]int {
	out := make(map[string]int)
	for _, e := range p.Entries {
		out[e.TopicID] += e.Allocated
	}
	return out
}
