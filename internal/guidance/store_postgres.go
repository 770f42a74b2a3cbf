package guidance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-guidance/internal/studyplan"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store over an open pool. The schema must
// already be migrated.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Topic(ctx context.Context, id string) (studyplan.Topic, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var t studyplan.Topic
	err := s.pool.QueryRow(ctx,
		`SELECT id, subject_id, name, sort_order, avg_minutes
		 FROM topics
		 WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.SubjectID, &t.Name, &t.Order, &t.AvgMinutes)
	if errors.Is(err, pgx.ErrNoRows) {
		return studyplan.Topic{}, fmt.Errorf("topic %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return studyplan.Topic{}, fmt.Errorf("get topic: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) Topics(ctx context.Context, subjectIDs ...string) ([]studyplan.Topic, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	query := `SELECT id, subject_id, name, sort_order, avg_minutes FROM topics`
	var args []any
	if len(subjectIDs) > 0 {
		query += ` WHERE subject_id = ANY($1)`
		args = append(args, subjectIDs)
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	topics := []studyplan.Topic{}
	for rows.Next() {
		var t studyplan.Topic
		if err := rows.Scan(&t.ID, &t.SubjectID, &t.Name, &t.Order, &t.AvgMinutes); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topics: %w", err)
	}
	return topics, nil
}

func (s *PostgresStore) UpsertTopic(ctx context.Context, topic studyplan.Topic) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO topics (id, subject_id, name, sort_order, avg_minutes)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET subject_id = EXCLUDED.subject_id,
		     name = EXCLUDED.name,
		     sort_order = EXCLUDED.sort_order,
		     avg_minutes = EXCLUDED.avg_minutes,
		     updated_at = NOW()`,
		topic.ID,
		topic.SubjectID,
		topic.Name,
		topic.Order,
		topic.AvgMinutes,
	)
	if err != nil {
		return fmt.Errorf("upsert topic: %w", err)
	}
	return nil
}

func (s *PostgresStore) Progress(ctx context.Context, studentID string) (studyplan.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT student_id, topic_id, completed_minutes, remaining_minutes, completed
		 FROM progress
		 WHERE student_id = $1`,
		studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("query progress: %w", err)
	}
	return collectProgress(rows)
}

func (s *PostgresStore) EnsureProgress(ctx context.Context, studentID string, topics []studyplan.Topic) (int, error) {
	if len(topics) == 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin ensure progress: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	created := 0
	for _, t := range topics {
		p := studyplan.NewProgress(studentID, t)
		cmd, err := tx.Exec(ctx,
			`INSERT INTO progress (student_id, topic_id, completed_minutes, remaining_minutes, completed)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (student_id, topic_id) DO NOTHING`,
			p.StudentID, p.TopicID, p.CompletedMinutes, p.RemainingMinutes, p.Completed,
		)
		if err != nil {
			return 0, fmt.Errorf("insert progress %s: %w", t.ID, err)
		}
		created += int(cmd.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit ensure progress: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) UpdateProgress(ctx context.Context, studentID string, fn func(studyplan.Snapshot) error) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update progress: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx,
		`SELECT student_id, topic_id, completed_minutes, remaining_minutes, completed
		 FROM progress
		 WHERE student_id = $1
		 ORDER BY topic_id
		 FOR UPDATE`,
		studentID,
	)
	if err != nil {
		return fmt.Errorf("lock progress: %w", err)
	}
	before, err := collectProgress(rows)
	if err != nil {
		return err
	}

	work := before.Clone()
	if err := fn(work); err != nil {
		return err
	}

	for _, p := range changedRows(before, work) {
		_, err := tx.Exec(ctx,
			`INSERT INTO progress (student_id, topic_id, completed_minutes, remaining_minutes, completed)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (student_id, topic_id) DO UPDATE
			 SET completed_minutes = EXCLUDED.completed_minutes,
			     remaining_minutes = EXCLUDED.remaining_minutes,
			     completed = EXCLUDED.completed,
			     updated_at = NOW()`,
			studentID, p.TopicID, p.CompletedMinutes, p.RemainingMinutes, p.Completed,
		)
		if err != nil {
			return fmt.Errorf("save progress %s: %w", p.TopicID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update progress: %w", err)
	}
	return nil
}

func (s *PostgresStore) Slots(ctx context.Context, studentID string) ([]studyplan.WeeklySlot, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id::text, student_id, day, start_time, end_time, subject_id
		 FROM weekly_slots
		 WHERE student_id = $1
		 ORDER BY day, start_time, id`,
		studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("query slots: %w", err)
	}
	defer rows.Close()

	slots := []studyplan.WeeklySlot{}
	for rows.Next() {
		var sl studyplan.WeeklySlot
		if err := rows.Scan(&sl.ID, &sl.StudentID, &sl.Day, &sl.Start, &sl.End, &sl.SubjectID); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, sl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slots: %w", err)
	}
	return studyplan.SortSlots(slots), nil
}

func (s *PostgresStore) AddSlot(ctx context.Context, slot studyplan.WeeklySlot) (studyplan.WeeklySlot, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := s.pool.QueryRow(ctx,
		`INSERT INTO weekly_slots (student_id, day, start_time, end_time, subject_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id::text`,
		slot.StudentID,
		slot.Day,
		slot.Start,
		slot.End,
		slot.SubjectID,
	).Scan(&slot.ID)
	if err != nil {
		return studyplan.WeeklySlot{}, fmt.Errorf("insert slot: %w", err)
	}
	return slot, nil
}

func (s *PostgresStore) RemoveSlot(ctx context.Context, studentID, slotID string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`DELETE FROM weekly_slots WHERE id::text = $1 AND student_id = $2`,
		slotID,
		studentID,
	)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("slot %s: %w", slotID, ErrNotFound)
	}
	return nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *PostgresStore) Close() error {
	return nil
}

func collectProgress(rows pgx.Rows) (studyplan.Snapshot, error) {
	defer rows.Close()

	snap := studyplan.Snapshot{}
	for rows.Next() {
		var p studyplan.Progress
		if err := rows.Scan(&p.StudentID, &p.TopicID, &p.CompletedMinutes, &p.RemainingMinutes, &p.Completed); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		snap[p.TopicID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress: %w", err)
	}
	return snap, nil
}
