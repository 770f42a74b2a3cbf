package studyplan

import (
	"cmp"
	"encoding/hex"
	"encoding/json"
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// SortSlots returns a copy of slots in processing order: day, then start
// time, then ID.
func SortSlots(slots []WeeklySlot) []WeeklySlot {
	out := slices.Clone(slots)
	slices.SortFunc(out, func(a, b WeeklySlot) int {
		if c := cmp.Compare(a.Day, b.Day); c != 0 {
			return c
		}
		as, _ := ParseClock(a.Start)
		bs, _ := ParseClock(b.Start)
		if c := cmp.Compare(as, bs); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// PlanWeek builds the study plan for one student's week. Slots are processed
// in SortSlots order and share one working copy of the ledger, so a topic
// finished in an early slot is skipped by later ones. snap is not modified.
//
// Inputs are assumed valid (see ValidateInput); every topic a slot may reach
// needs a ledger row in snap.
func PlanWeek(studentID string, weekStart time.Time, slots []WeeklySlot, topics []Topic, snap Snapshot) Plan {
	plan := Plan{
		StudentID: studentID,
		WeekStart: WeekDate(weekStart, 1),
		Entries:   []PlannedEntry{},
	}
	work := snap.Clone()
	ordered := make(map[string][]Topic)

	for _, slot := range SortSlots(slots) {
		subjectTopics, ok := ordered[slot.SubjectID]
		if !ok {
			subjectTopics = OrderedTopics(slot.SubjectID, topics)
			ordered[slot.SubjectID] = subjectTopics
		}
		entries, truncated := fillSlot(slot, plan.WeekStart, subjectTopics, work)
		plan.Entries = append(plan.Entries, entries...)
		if truncated {
			plan.Truncated = append(plan.Truncated, slot.ID)
		}
	}
	return plan
}

// Fingerprint returns a stable hash of the plan's entries. Identical inputs
// to PlanWeek always produce the same fingerprint.
func (p Plan) Fingerprint() string {
	type row struct {
		Slot      string `json:"s"`
		Date      string `json:"d"`
		Start     string `json:"b"`
		End       string `json:"e"`
		Subject   string `json:"j"`
		Topic     string `json:"t"`
		Allocated int    `json:"a"`
		Remaining int    `json:"r"`
	}
	rows := make([]row, len(p.Entries))
	for i, e := range p.Entries {
		rows[i] = row{e.SlotID, e.Date.Format(time.DateOnly), e.Start, e.End, e.SubjectID, e.TopicID, e.Allocated, e.RemainingAfter}
	}
	// Marshalling a slice of flat structs cannot fail.
	data, _ := json.Marshal(struct {
		Student string `json:"student"`
		Week    string `json:"week"`
		Rows    []row  `json:"rows"`
	}{p.StudentID, p.WeekStart.Format(time.DateOnly), rows})
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
