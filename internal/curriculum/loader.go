// Package curriculum reads the topic catalog seed from YAML subject files.
package curriculum

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/pai-guidance/internal/studyplan"
)

// TopicWriter receives topics when a loader seeds a catalog.
type TopicWriter interface {
	UpsertTopic(ctx context.Context, topic studyplan.Topic) error
}

// Loader loads and caches curriculum content from the filesystem.
type Loader struct {
	rootDir  string
	subjects map[string]Subject
	topics   map[string]studyplan.Topic
	mu       sync.RWMutex
}

// NewLoader creates a new curriculum loader and loads all content.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir:  rootDir,
		subjects: make(map[string]Subject),
		topics:   make(map[string]studyplan.Topic),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}

	slog.Info("curriculum loaded", "subjects", len(l.subjects), "topics", len(l.topics))
	return l, nil
}

// Subjects returns all loaded subjects ordered by ID.
func (l *Loader) Subjects() []Subject {
	l.mu.RLock()
	defer l.mu.RUnlock()
	subjects := make([]Subject, 0, len(l.subjects))
	for _, s := range l.subjects {
		subjects = append(subjects, s)
	}
	slices.SortFunc(subjects, func(a, b Subject) int {
		return strings.Compare(a.ID, b.ID)
	})
	return subjects
}

// GetSubject returns a subject by ID.
func (l *Loader) GetSubject(id string) (Subject, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.subjects[id]
	return s, ok
}

// GetTopic returns a topic by ID.
func (l *Loader) GetTopic(id string) (studyplan.Topic, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.topics[id]
	return t, ok
}

// AllTopics returns all loaded topics ordered by ID.
func (l *Loader) AllTopics() []studyplan.Topic {
	l.mu.RLock()
	defer l.mu.RUnlock()
	topics := make([]studyplan.Topic, 0, len(l.topics))
	for _, t := range l.topics {
		topics = append(topics, t)
	}
	slices.SortFunc(topics, func(a, b studyplan.Topic) int {
		return strings.Compare(a.ID, b.ID)
	})
	return topics
}

// Seed writes every loaded topic to w and returns how many were written.
func (l *Loader) Seed(ctx context.Context, w TopicWriter) (int, error) {
	n := 0
	for _, t := range l.AllTopics() {
		if err := w.UpsertTopic(ctx, t); err != nil {
			return n, fmt.Errorf("seed topic %s: %w", t.ID, err)
		}
		n++
	}
	return n, nil
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			return l.loadSubject(path)
		}
		return nil
	})
}

func (l *Loader) loadSubject(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var subject Subject
	if err := yaml.Unmarshal(data, &subject); err != nil {
		slog.Warn("skipping invalid subject YAML", "path", path, "error", err)
		return nil
	}

	if subject.ID == "" || len(subject.Topics) == 0 {
		return nil // Not a subject file
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.subjects[subject.ID] = subject
	for _, e := range subject.Topics {
		if e.ID == "" {
			slog.Warn("skipping topic without id", "path", path, "subject_id", subject.ID)
			continue
		}
		if prev, ok := l.topics[e.ID]; ok && prev.SubjectID != subject.ID {
			slog.Warn("topic redefined", "topic_id", e.ID, "subject_id", subject.ID, "previous_subject_id", prev.SubjectID)
		}
		l.topics[e.ID] = subject.Topic(e)
	}
	return nil
}
