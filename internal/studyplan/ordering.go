package studyplan

import (
	"cmp"
	"slices"
	"strings"
)

// OrderedTopics returns the topics of subjectID sorted by Order, then Name
// (case-sensitive), then ID.
func OrderedTopics(subjectID string, topics []Topic) []Topic {
	out := make([]Topic, 0, len(topics))
	for _, t := range topics {
		if t.SubjectID == subjectID {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b Topic) int {
		if c := cmp.Compare(a.Order, b.Order); c != 0 {
			return c
		}
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// NextEligibleTopic returns the first topic of subjectID, in study order,
// that is not flagged complete and still has minutes remaining. Topics
// without a ledger row are never eligible.
func NextEligibleTopic(subjectID string, topics []Topic, snap Snapshot) (Topic, bool) {
	return firstEligible(OrderedTopics(subjectID, topics), snap)
}

func firstEligible(ordered []Topic, snap Snapshot) (Topic, bool) {
	for _, t := range ordered {
		p, ok := snap[t.ID]
		if !ok || p.Completed || p.RemainingMinutes <= 0 {
			continue
		}
		return t, true
	}
	return Topic{}, false
}
