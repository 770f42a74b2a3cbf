package studyplan

// NewProgress returns the zero-state ledger row for a topic.
func NewProgress(studentID string, topic Topic) Progress {
	return Progress{
		StudentID:        studentID,
		TopicID:          topic.ID,
		RemainingMinutes: max(0, topic.AvgMinutes),
	}
}

// ApplyStudy records minutes of study against a topic. Minutes must be
// non-negative; callers reject anything else before getting here.
// Over-study is allowed, remaining is clamped at zero and the completed
// flag latches once remaining reaches zero.
func ApplyStudy(p Progress, topic Topic, minutes int) Progress {
	p.CompletedMinutes += minutes
	p.RemainingMinutes = max(0, topic.AvgMinutes-p.CompletedMinutes)
	if p.RemainingMinutes == 0 {
		p.Completed = true
	}
	return p
}

// Reset restarts a topic from zero.
func Reset(p Progress, topic Topic) Progress {
	p.CompletedMinutes = 0
	p.RemainingMinutes = max(0, topic.AvgMinutes)
	p.Completed = false
	return p
}

// ForceComplete marks a topic done, filling its ledger. With done=false only
// the flag is cleared: minutes stay as they are, so a row exhausted earlier
// remains ineligible for planning until it is Reset.
func ForceComplete(p Progress, topic Topic, done bool) Progress {
	if !done {
		p.Completed = false
		return p
	}
	p.CompletedMinutes = topic.AvgMinutes
	p.RemainingMinutes = 0
	p.Completed = true
	return p
}

// Ensure returns a copy of snap holding a zero-state row for every topic
// that lacks one, along with the rows it created. It is idempotent.
func Ensure(studentID string, topics []Topic, snap Snapshot) (Snapshot, []Progress) {
	out := snap.Clone()
	var created []Progress
	for _, t := range topics {
		if _, ok := out[t.ID]; ok {
			continue
		}
		p := NewProgress(studentID, t)
		out[t.ID] = p
		created = append(created, p)
	}
	return out, created
}
