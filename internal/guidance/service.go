package guidance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/p-n-ai/pai-guidance/internal/studyplan"
)

// ErrPlanChanged is returned by CommitWeek when the plan computed under the
// lock no longer matches the one the caller saw.
var ErrPlanChanged = errors.New("plan changed")

// ServiceConfig holds dependencies for the guidance service.
type ServiceConfig struct {
	Catalog  TopicCatalog
	Progress ProgressStore
	Slots    SlotRegistry
	Locker   Locker
	Events   EventLogger
}

// Service plans and records study for students.
type Service struct {
	catalog  TopicCatalog
	progress ProgressStore
	slots    SlotRegistry
	locker   Locker
	events   EventLogger
}

// NewService creates a service. Missing collaborators default to a shared
// in-memory store, an in-process locker and no event log.
func NewService(cfg ServiceConfig) *Service {
	var mem *MemoryStore
	memory := func() *MemoryStore {
		if mem == nil {
			mem = NewMemoryStore()
		}
		return mem
	}

	svc := &Service{
		catalog:  cfg.Catalog,
		progress: cfg.Progress,
		slots:    cfg.Slots,
		locker:   cfg.Locker,
		events:   cfg.Events,
	}
	if svc.catalog == nil {
		svc.catalog = memory()
	}
	if svc.progress == nil {
		svc.progress = memory()
	}
	if svc.slots == nil {
		svc.slots = memory()
	}
	if svc.locker == nil {
		svc.locker = NewLocalLocker()
	}
	if svc.events == nil {
		svc.events = NopEventLogger{}
	}
	return svc
}

// Bootstrap creates zero-state progress rows for every topic of every
// subject the student has a slot for. It is idempotent and must run before
// PlanWeek sees a newly introduced topic.
func (s *Service) Bootstrap(ctx context.Context, studentID string) (int, error) {
	_, topics, err := s.planInputs(ctx, studentID)
	if err != nil {
		return 0, err
	}
	created, err := s.progress.EnsureProgress(ctx, studentID, topics)
	if err != nil {
		return 0, fmt.Errorf("ensure progress: %w", err)
	}
	if created > 0 {
		slog.Info("progress bootstrapped", "student_id", studentID, "created", created)
		s.logEvent(ctx, Event{
			StudentID: studentID,
			EventType: EventProgressBootstrapped,
			Data:      map[string]any{"created": created},
		})
	}
	return created, nil
}

// PlanWeek builds the student's plan for the week whose day 1 is weekStart
// without changing any progress.
func (s *Service) PlanWeek(ctx context.Context, studentID string, weekStart time.Time) (studyplan.Plan, error) {
	slots, topics, err := s.planInputs(ctx, studentID)
	if err != nil {
		return studyplan.Plan{}, err
	}
	snap, err := s.progress.Progress(ctx, studentID)
	if err != nil {
		return studyplan.Plan{}, fmt.Errorf("load progress: %w", err)
	}
	if err := studyplan.ValidateInput(studentID, slots, topics, snap); err != nil {
		return studyplan.Plan{}, err
	}

	plan := studyplan.PlanWeek(studentID, weekStart, slots, topics, snap)
	s.reportTruncation(ctx, plan)
	return plan, nil
}

// CommitWeek plans the week against the locked ledger and records every
// planned entry as studied. When expectedFingerprint is non-empty and the
// plan differs from it, nothing is written and ErrPlanChanged is returned.
func (s *Service) CommitWeek(ctx context.Context, studentID string, weekStart time.Time, expectedFingerprint string) (studyplan.Plan, error) {
	unlock, err := s.locker.Lock(ctx, studentID)
	if err != nil {
		return studyplan.Plan{}, fmt.Errorf("lock student %s: %w", studentID, err)
	}
	defer unlock()

	slots, topics, err := s.planInputs(ctx, studentID)
	if err != nil {
		return studyplan.Plan{}, err
	}
	byID := make(map[string]studyplan.Topic, len(topics))
	for _, t := range topics {
		byID[t.ID] = t
	}

	var plan studyplan.Plan
	err = s.progress.UpdateProgress(ctx, studentID, func(snap studyplan.Snapshot) error {
		if err := studyplan.ValidateInput(studentID, slots, topics, snap); err != nil {
			return err
		}
		plan = studyplan.PlanWeek(studentID, weekStart, slots, topics, snap)
		if expectedFingerprint != "" && plan.Fingerprint() != expectedFingerprint {
			return ErrPlanChanged
		}
		for _, e := range plan.Entries {
			snap[e.TopicID] = studyplan.ApplyStudy(snap[e.TopicID], byID[e.TopicID], e.Allocated)
		}
		return nil
	})
	if err != nil {
		return studyplan.Plan{}, err
	}

	minutes := 0
	for _, e := range plan.Entries {
		minutes += e.Allocated
	}
	slog.Info("plan committed",
		"student_id", studentID,
		"week_start", plan.WeekStart.Format(time.DateOnly),
		"entries", len(plan.Entries),
		"minutes", minutes,
	)
	s.logEvent(ctx, Event{
		StudentID: studentID,
		EventType: EventPlanCommitted,
		Data: map[string]any{
			"week_start":  plan.WeekStart.Format(time.DateOnly),
			"entries":     len(plan.Entries),
			"minutes":     minutes,
			"fingerprint": plan.Fingerprint(),
		},
	})
	s.reportTruncation(ctx, plan)
	return plan, nil
}

// RecordStudy adds minutes of study to a topic.
func (s *Service) RecordStudy(ctx context.Context, studentID, topicID string, minutes int) (studyplan.Progress, error) {
	if minutes < 0 {
		return studyplan.Progress{}, fmt.Errorf("%w: minutes must not be negative, got %d", studyplan.ErrInvalidInput, minutes)
	}
	return s.updateTopic(ctx, studentID, topicID,
		Event{EventType: EventStudyRecorded, Data: map[string]any{"minutes": minutes}},
		func(p studyplan.Progress, t studyplan.Topic) studyplan.Progress {
			return studyplan.ApplyStudy(p, t, minutes)
		})
}

// ResetTopic restarts a topic from zero.
func (s *Service) ResetTopic(ctx context.Context, studentID, topicID string) (studyplan.Progress, error) {
	return s.updateTopic(ctx, studentID, topicID,
		Event{EventType: EventProgressReset},
		studyplan.Reset)
}

// ForceComplete sets or clears a topic's completed flag.
func (s *Service) ForceComplete(ctx context.Context, studentID, topicID string, done bool) (studyplan.Progress, error) {
	return s.updateTopic(ctx, studentID, topicID,
		Event{EventType: EventProgressForced, Data: map[string]any{"done": done}},
		func(p studyplan.Progress, t studyplan.Topic) studyplan.Progress {
			return studyplan.ForceComplete(p, t, done)
		})
}

// updateTopic applies fn to one ledger row under the student's lock. A
// missing row starts from zero state.
func (s *Service) updateTopic(ctx context.Context, studentID, topicID string, event Event, fn func(studyplan.Progress, studyplan.Topic) studyplan.Progress) (studyplan.Progress, error) {
	if strings.TrimSpace(studentID) == "" {
		return studyplan.Progress{}, fmt.Errorf("%w: student is required", studyplan.ErrInvalidInput)
	}
	topic, err := s.catalog.Topic(ctx, topicID)
	if err != nil {
		return studyplan.Progress{}, err
	}

	unlock, err := s.locker.Lock(ctx, studentID)
	if err != nil {
		return studyplan.Progress{}, fmt.Errorf("lock student %s: %w", studentID, err)
	}
	defer unlock()

	var out studyplan.Progress
	err = s.progress.UpdateProgress(ctx, studentID, func(snap studyplan.Snapshot) error {
		p, ok := snap[topic.ID]
		if !ok {
			p = studyplan.NewProgress(studentID, topic)
		}
		out = fn(p, topic)
		snap[topic.ID] = out
		return nil
	})
	if err != nil {
		return studyplan.Progress{}, err
	}

	event.StudentID = studentID
	if event.Data == nil {
		event.Data = map[string]any{}
	}
	event.Data["topic_id"] = topic.ID
	event.Data["remaining_minutes"] = out.RemainingMinutes
	event.Data["completed"] = out.Completed
	s.logEvent(ctx, event)
	return out, nil
}

// Progress returns the student's ledger ordered by topic ID.
func (s *Service) Progress(ctx context.Context, studentID string) ([]studyplan.Progress, error) {
	snap, err := s.progress.Progress(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	rows := make([]studyplan.Progress, 0, len(snap))
	for _, p := range snap {
		rows = append(rows, p)
	}
	slices.SortFunc(rows, func(a, b studyplan.Progress) int {
		return strings.Compare(a.TopicID, b.TopicID)
	})
	return rows, nil
}

// OrderedTopics returns a subject's topics in study order.
func (s *Service) OrderedTopics(ctx context.Context, subjectID string) ([]studyplan.Topic, error) {
	topics, err := s.catalog.Topics(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("load topics: %w", err)
	}
	return studyplan.OrderedTopics(subjectID, topics), nil
}

// UpsertTopic adds or replaces a catalog topic.
func (s *Service) UpsertTopic(ctx context.Context, topic studyplan.Topic) error {
	if strings.TrimSpace(topic.ID) == "" {
		return fmt.Errorf("%w: topic id is required", studyplan.ErrInvalidInput)
	}
	if strings.TrimSpace(topic.SubjectID) == "" {
		return fmt.Errorf("%w: topic %q: subject is required", studyplan.ErrInvalidInput, topic.ID)
	}
	if topic.AvgMinutes < 0 {
		return fmt.Errorf("%w: topic %q: avg_minutes must not be negative", studyplan.ErrInvalidInput, topic.ID)
	}
	if err := s.catalog.UpsertTopic(ctx, topic); err != nil {
		return fmt.Errorf("upsert topic: %w", err)
	}
	return nil
}

func (s *Service) Slots(ctx context.Context, studentID string) ([]studyplan.WeeklySlot, error) {
	return s.slots.Slots(ctx, studentID)
}

// AddSlot validates and stores a slot for the student.
func (s *Service) AddSlot(ctx context.Context, studentID string, slot studyplan.WeeklySlot) (studyplan.WeeklySlot, error) {
	if strings.TrimSpace(studentID) == "" {
		return studyplan.WeeklySlot{}, fmt.Errorf("%w: student is required", studyplan.ErrInvalidInput)
	}
	slot.StudentID = studentID
	if err := studyplan.ValidateSlot(slot); err != nil {
		return studyplan.WeeklySlot{}, err
	}
	return s.slots.AddSlot(ctx, slot)
}

// ImportSlots validates every slot before storing any of them.
func (s *Service) ImportSlots(ctx context.Context, studentID string, slots []studyplan.WeeklySlot) ([]studyplan.WeeklySlot, error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, fmt.Errorf("%w: student is required", studyplan.ErrInvalidInput)
	}
	for i := range slots {
		slots[i].StudentID = studentID
		if err := studyplan.ValidateSlot(slots[i]); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
	}

	added := make([]studyplan.WeeklySlot, 0, len(slots))
	for _, sl := range slots {
		stored, err := s.slots.AddSlot(ctx, sl)
		if err != nil {
			return added, err
		}
		added = append(added, stored)
	}
	slog.Info("slots imported", "student_id", studentID, "count", len(added))
	return added, nil
}

func (s *Service) RemoveSlot(ctx context.Context, studentID, slotID string) error {
	return s.slots.RemoveSlot(ctx, studentID, slotID)
}

// planInputs loads the student's slots and the topics of their subjects.
func (s *Service) planInputs(ctx context.Context, studentID string) ([]studyplan.WeeklySlot, []studyplan.Topic, error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, nil, fmt.Errorf("%w: student is required", studyplan.ErrInvalidInput)
	}
	slots, err := s.slots.Slots(ctx, studentID)
	if err != nil {
		return nil, nil, fmt.Errorf("load slots: %w", err)
	}

	var subjects []string
	for _, sl := range slots {
		if !slices.Contains(subjects, sl.SubjectID) {
			subjects = append(subjects, sl.SubjectID)
		}
	}
	if len(subjects) == 0 {
		return slots, nil, nil
	}

	topics, err := s.catalog.Topics(ctx, subjects...)
	if err != nil {
		return nil, nil, fmt.Errorf("load topics: %w", err)
	}
	return slots, topics, nil
}

func (s *Service) reportTruncation(ctx context.Context, plan studyplan.Plan) {
	if len(plan.Truncated) == 0 {
		return
	}
	slog.Warn("plan truncated",
		"student_id", plan.StudentID,
		"slots", plan.Truncated,
		"cap", studyplan.MaxAllocationsPerSlot,
	)
	s.logEvent(ctx, Event{
		StudentID: plan.StudentID,
		EventType: EventPlanTruncated,
		Data:      map[string]any{"slots": plan.Truncated},
	})
}

func (s *Service) logEvent(ctx context.Context, event Event) {
	if err := s.events.LogEvent(ctx, event); err != nil {
		slog.Warn("failed to log event", "type", event.EventType, "student_id", event.StudentID, "error", err)
	}
}
