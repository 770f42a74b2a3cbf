package curriculum

import "github.com/p-n-ai/pai-guidance/internal/studyplan"

// Subject is one subject file: a named list of topics in study order.
type Subject struct {
	ID     string       `yaml:"id"`
	Name   string       `yaml:"name"`
	Topics []TopicEntry `yaml:"topics"`
}

// TopicEntry is a topic as written in a subject file.
type TopicEntry struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Order      int    `yaml:"order"`
	AvgMinutes int    `yaml:"avg_minutes"`
}

// Topic returns the entry as a catalog topic of subject s.
func (s Subject) Topic(e TopicEntry) studyplan.Topic {
	return studyplan.Topic{
		ID:         e.ID,
		SubjectID:  s.ID,
		Name:       e.Name,
		Order:      e.Order,
		AvgMinutes: e.AvgMinutes,
	}
}
