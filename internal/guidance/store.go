// Package guidance connects the study-plan engine to its collaborators: the
// topic catalog, the progress ledger store and the weekly slot registry. It
// owns progress bootstrapping and the per-student commit of planned study.
package guidance

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-guidance/internal/studyplan"
)

// ErrNotFound is returned when a topic, slot or progress row does not exist.
var ErrNotFound = errors.New("not found")

// TopicCatalog supplies topics. It is read-only to the planner.
type TopicCatalog interface {
	Topic(ctx context.Context, id string) (studyplan.Topic, error)
	// Topics returns the topics of the given subjects, or every topic when
	// no subject is given.
	Topics(ctx context.Context, subjectIDs ...string) ([]studyplan.Topic, error)
	UpsertTopic(ctx context.Context, topic studyplan.Topic) error
}

// ProgressStore persists the per-student progress ledger.
type ProgressStore interface {
	Progress(ctx context.Context, studentID string) (studyplan.Snapshot, error)
	// EnsureProgress inserts a zero-state row for every topic the student has
	// no row for and reports how many rows it created.
	EnsureProgress(ctx context.Context, studentID string, topics []studyplan.Topic) (int, error)
	// UpdateProgress runs fn over the student's current ledger and persists
	// the rows fn changed or added. Nothing is written if fn returns an error.
	// Concurrent updates for the same student are serialized by the store.
	UpdateProgress(ctx context.Context, studentID string, fn func(studyplan.Snapshot) error) error
}

// SlotRegistry stores students' recurring weekly slots.
type SlotRegistry interface {
	Slots(ctx context.Context, studentID string) ([]studyplan.WeeklySlot, error)
	// AddSlot stores slot under a newly assigned ID and returns it.
	AddSlot(ctx context.Context, slot studyplan.WeeklySlot) (studyplan.WeeklySlot, error)
	RemoveSlot(ctx context.Context, studentID, slotID string) error
}

// Store is a single backend serving all three collaborators.
type Store interface {
	TopicCatalog
	ProgressStore
	SlotRegistry
	Close() error
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	topics   map[string]studyplan.Topic
	progress map[string]studyplan.Snapshot
	slots    map[string][]studyplan.WeeklySlot
	mu       sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		topics:   make(map[string]studyplan.Topic),
		progress: make(map[string]studyplan.Snapshot),
		slots:    make(map[string][]studyplan.WeeklySlot),
	}
}

func (s *MemoryStore) Topic(_ context.Context, id string) (studyplan.Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.topics[id]
	if !ok {
		return studyplan.Topic{}, fmt.Errorf("topic %s: %w", id, ErrNotFound)
	}
	return t, nil
}

func (s *MemoryStore) Topics(_ context.Context, subjectIDs ...string) ([]studyplan.Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	topics := make([]studyplan.Topic, 0, len(s.topics))
	for _, t := range s.topics {
		if len(subjectIDs) == 0 || slices.Contains(subjectIDs, t.SubjectID) {
			topics = append(topics, t)
		}
	}
	sortTopicsByID(topics)
	return topics, nil
}

func (s *MemoryStore) UpsertTopic(_ context.Context, topic studyplan.Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics[topic.ID] = topic
	return nil
}

func (s *MemoryStore) Progress(_ context.Context, studentID string) (studyplan.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress[studentID].Clone(), nil
}

func (s *MemoryStore) EnsureProgress(_ context.Context, studentID string, topics []studyplan.Topic) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, created := studyplan.Ensure(studentID, topics, s.progress[studentID])
	s.progress[studentID] = snap
	return len(created), nil
}

func (s *MemoryStore) UpdateProgress(_ context.Context, studentID string, fn func(studyplan.Snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.progress[studentID].Clone()
	if err := fn(work); err != nil {
		return err
	}
	s.progress[studentID] = work
	return nil
}

func (s *MemoryStore) Slots(_ context.Context, studentID string) ([]studyplan.WeeklySlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return studyplan.SortSlots(s.slots[studentID]), nil
}

func (s *MemoryStore) AddSlot(_ context.Context, slot studyplan.WeeklySlot) (studyplan.WeeklySlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot.ID = uuid.NewString()
	s.slots[slot.StudentID] = append(s.slots[slot.StudentID], slot)
	return slot, nil
}

func (s *MemoryStore) RemoveSlot(_ context.Context, studentID, slotID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slots := s.slots[studentID]
	i := slices.IndexFunc(slots, func(sl studyplan.WeeklySlot) bool { return sl.ID == slotID })
	if i < 0 {
		return fmt.Errorf("slot %s: %w", slotID, ErrNotFound)
	}
	s.slots[studentID] = slices.Delete(slots, i, i+1)
	return nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}

func sortTopicsByID(topics []studyplan.Topic) {
	slices.SortFunc(topics, func(a, b studyplan.Topic) int {
		return strings.Compare(a.ID, b.ID)
	})
}

// changedRows returns the rows of after that are new or differ from before,
// ordered by topic ID.
func changedRows(before, after studyplan.Snapshot) []studyplan.Progress {
	var rows []studyplan.Progress
	for id, p := range after {
		if old, ok := before[id]; ok && old == p {
			continue
		}
		rows = append(rows, p)
	}
	slices.SortFunc(rows, func(a, b studyplan.Progress) int {
		return strings.Compare(a.TopicID, b.TopicID)
	})
	return rows
}
