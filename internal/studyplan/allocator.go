package studyplan

import "time"

// MaxAllocationsPerSlot bounds the allocation loop for a single slot so that
// planning terminates whatever the data looks like.
const MaxAllocationsPerSlot = 200

// AllocateSlot greedily fills one slot with topics of the slot's subject, in
// study order, until the slot is full or the subject has nothing eligible
// left. Unused time is not given to other subjects.
//
// snap is not modified. The returned snapshot carries the minutes allocated
// here so it can be threaded into the next slot.
func AllocateSlot(slot WeeklySlot, weekStart time.Time, topics []Topic, snap Snapshot) ([]PlannedEntry, Snapshot) {
	next := snap.Clone()
	entries, _ := fillSlot(slot, weekStart, OrderedTopics(slot.SubjectID, topics), next)
	return entries, next
}

// fillSlot allocates slot against ordered, mutating snap in place. It
// reports whether the iteration cap cut the slot short.
func fillSlot(slot WeeklySlot, weekStart time.Time, ordered []Topic, snap Snapshot) ([]PlannedEntry, bool) {
	duration := MinutesBetween(slot.End, slot.Start)
	if duration <= 0 {
		return nil, false
	}
	cursor, err := ParseClock(slot.Start)
	if err != nil {
		return nil, false
	}
	date := WeekDate(weekStart, slot.Day)
	left := duration

	var entries []PlannedEntry
	for i := 0; i < MaxAllocationsPerSlot; i++ {
		topic, ok := firstEligible(ordered, snap)
		if !ok {
			return entries, false
		}
		p := snap[topic.ID]
		alloc := min(left, p.RemainingMinutes)
		if alloc <= 0 {
			return entries, false
		}

		entries = append(entries, PlannedEntry{
			SlotID:         slot.ID,
			Date:           date,
			Start:          FormatClock(cursor),
			End:            FormatClock(cursor + alloc),
			SubjectID:      slot.SubjectID,
			TopicID:        topic.ID,
			Allocated:      alloc,
			RemainingAfter: p.RemainingMinutes - alloc,
		})

		p.CompletedMinutes += alloc
		p.RemainingMinutes -= alloc
		if p.RemainingMinutes == 0 {
			p.Completed = true
		}
		snap[topic.ID] = p

		cursor += alloc
		left -= alloc
		if left == 0 {
			return entries, false
		}
	}
	return entries, true
}
