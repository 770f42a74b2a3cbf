package guidance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/p-n-ai/pai-guidance/internal/studyplan"
)

// SQLiteStore is a single-file Store used by the command line tool. It also
// records events, so it can stand in as an EventLogger.
type SQLiteStore struct {
	db        *sql.DB
	entropyMu sync.Mutex
	entropy   *rand.Rand
}

// NewSQLiteStore opens or creates a SQLite database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// one writer; UpdateProgress holds its transaction across fn
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) newID() string {
	s.entropyMu.Lock()
	defer s.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS topics (
		id          TEXT PRIMARY KEY,
		subject_id  TEXT NOT NULL,
		name        TEXT NOT NULL,
		sort_order  INTEGER NOT NULL DEFAULT 0,
		avg_minutes INTEGER NOT NULL DEFAULT 0,
		updated_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_topics_subject ON topics(subject_id);

	CREATE TABLE IF NOT EXISTS progress (
		student_id        TEXT NOT NULL,
		topic_id          TEXT NOT NULL REFERENCES topics(id),
		completed_minutes INTEGER NOT NULL DEFAULT 0,
		remaining_minutes INTEGER NOT NULL DEFAULT 0,
		completed         INTEGER NOT NULL DEFAULT 0,
		updated_at        TEXT NOT NULL,
		PRIMARY KEY (student_id, topic_id)
	);

	CREATE TABLE IF NOT EXISTS weekly_slots (
		id          TEXT PRIMARY KEY,
		student_id  TEXT NOT NULL,
		day         INTEGER NOT NULL,
		start_time  TEXT NOT NULL,
		end_time    TEXT NOT NULL,
		subject_id  TEXT NOT NULL,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_weekly_slots_student ON weekly_slots(student_id);

	CREATE TABLE IF NOT EXISTS events (
		id          TEXT PRIMARY KEY,
		student_id  TEXT NOT NULL,
		event_type  TEXT NOT NULL,
		data        TEXT NOT NULL,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_student ON events(student_id, created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// sqliteTime is fixed width so stored timestamps sort as text.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

func sqliteNow() string {
	return time.Now().UTC().Format(sqliteTime)
}

func (s *SQLiteStore) Topic(ctx context.Context, id string) (studyplan.Topic, error) {
	var t studyplan.Topic
	err := s.db.QueryRowContext(ctx,
		`SELECT id, subject_id, name, sort_order, avg_minutes FROM topics WHERE id = ?`, id,
	).Scan(&t.ID, &t.SubjectID, &t.Name, &t.Order, &t.AvgMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		return studyplan.Topic{}, fmt.Errorf("topic %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return studyplan.Topic{}, fmt.Errorf("get topic: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) Topics(ctx context.Context, subjectIDs ...string) ([]studyplan.Topic, error) {
	query := `SELECT id, subject_id, name, sort_order, avg_minutes FROM topics`
	var args []any
	if len(subjectIDs) > 0 {
		query += ` WHERE subject_id IN (` + placeholders(len(subjectIDs)) + `)`
		for _, id := range subjectIDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
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
	return topics, rows.Err()
}

func (s *SQLiteStore) UpsertTopic(ctx context.Context, topic studyplan.Topic) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO topics (id, subject_id, name, sort_order, avg_minutes, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   subject_id = excluded.subject_id,
		   name = excluded.name,
		   sort_order = excluded.sort_order,
		   avg_minutes = excluded.avg_minutes,
		   updated_at = excluded.updated_at`,
		topic.ID, topic.SubjectID, topic.Name, topic.Order, topic.AvgMinutes, sqliteNow(),
	)
	if err != nil {
		return fmt.Errorf("upsert topic: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Progress(ctx context.Context, studentID string) (studyplan.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT student_id, topic_id, completed_minutes, remaining_minutes, completed
		 FROM progress WHERE student_id = ?`, studentID)
	if err != nil {
		return nil, fmt.Errorf("query progress: %w", err)
	}
	return scanProgress(rows)
}

func (s *SQLiteStore) EnsureProgress(ctx context.Context, studentID string, topics []studyplan.Topic) (int, error) {
	if len(topics) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin ensure progress: %w", err)
	}
	defer tx.Rollback()

	created := 0
	ts := sqliteNow()
	for _, t := range topics {
		p := studyplan.NewProgress(studentID, t)
		res, err := tx.ExecContext(ctx,
			`INSERT INTO progress (student_id, topic_id, completed_minutes, remaining_minutes, completed, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(student_id, topic_id) DO NOTHING`,
			p.StudentID, p.TopicID, p.CompletedMinutes, p.RemainingMinutes, p.Completed, ts,
		)
		if err != nil {
			return 0, fmt.Errorf("insert progress %s: %w", t.ID, err)
		}
		n, _ := res.RowsAffected()
		created += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit ensure progress: %w", err)
	}
	return created, nil
}

func (s *SQLiteStore) UpdateProgress(ctx context.Context, studentID string, fn func(studyplan.Snapshot) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update progress: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT student_id, topic_id, completed_minutes, remaining_minutes, completed
		 FROM progress WHERE student_id = ?`, studentID)
	if err != nil {
		return fmt.Errorf("query progress: %w", err)
	}
	before, err := scanProgress(rows)
	if err != nil {
		return err
	}

	work := before.Clone()
	if err := fn(work); err != nil {
		return err
	}

	ts := sqliteNow()
	for _, p := range changedRows(before, work) {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO progress (student_id, topic_id, completed_minutes, remaining_minutes, completed, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(student_id, topic_id) DO UPDATE SET
			   completed_minutes = excluded.completed_minutes,
			   remaining_minutes = excluded.remaining_minutes,
			   completed = excluded.completed,
			   updated_at = excluded.updated_at`,
			studentID, p.TopicID, p.CompletedMinutes, p.RemainingMinutes, p.Completed, ts,
		)
		if err != nil {
			return fmt.Errorf("save progress %s: %w", p.TopicID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update progress: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Slots(ctx context.Context, studentID string) ([]studyplan.WeeklySlot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, student_id, day, start_time, end_time, subject_id
		 FROM weekly_slots WHERE student_id = ?`, studentID)
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

func (s *SQLiteStore) AddSlot(ctx context.Context, slot studyplan.WeeklySlot) (studyplan.WeeklySlot, error) {
	slot.ID = s.newID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO weekly_slots (id, student_id, day, start_time, end_time, subject_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		slot.ID, slot.StudentID, slot.Day, slot.Start, slot.End, slot.SubjectID, sqliteNow(),
	)
	if err != nil {
		return studyplan.WeeklySlot{}, fmt.Errorf("insert slot: %w", err)
	}
	return slot, nil
}

func (s *SQLiteStore) RemoveSlot(ctx context.Context, studentID, slotID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM weekly_slots WHERE id = ? AND student_id = ?`, slotID, studentID)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("slot %s: %w", slotID, ErrNotFound)
	}
	return nil
}

// LogEvent appends an event to the events table.
func (s *SQLiteStore) LogEvent(ctx context.Context, event Event) error {
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	payload := event.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (id, student_id, event_type, data, created_at) VALUES (?, ?, ?, ?, ?)`,
		s.newID(), event.StudentID, event.EventType, string(data), createdAt.UTC().Format(sqliteTime),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Events returns a student's most recent events, newest first.
func (s *SQLiteStore) Events(ctx context.Context, studentID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT student_id, event_type, data, created_at FROM events
		 WHERE student_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var data, createdAt string
		if err := rows.Scan(&e.StudentID, &e.EventType, &data, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
			return nil, fmt.Errorf("decode event data: %w", err)
		}
		e.CreatedAt, _ = time.Parse(sqliteTime, createdAt)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func scanProgress(rows *sql.Rows) (studyplan.Snapshot, error) {
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
