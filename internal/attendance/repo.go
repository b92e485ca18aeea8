package attendance

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultListLimit = 50

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS students (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT NOT NULL UNIQUE,
		external_id TEXT,
		created_at  TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS presences (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		student_id  INTEGER REFERENCES students(id),
		name        TEXT NOT NULL,
		course      TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		latitude    REAL NOT NULL,
		longitude   REAL NOT NULL,
		distance_m  REAL NOT NULL,
		status      TEXT NOT NULL CHECK (status IN ('accepted', 'refused'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_presences_student ON presences(student_id)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS students (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL UNIQUE,
		external_id TEXT,
		created_at  TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS presences (
		id          BIGSERIAL PRIMARY KEY,
		student_id  BIGINT REFERENCES students(id),
		name        TEXT NOT NULL,
		course      TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		latitude    DOUBLE PRECISION NOT NULL,
		longitude   DOUBLE PRECISION NOT NULL,
		distance_m  DOUBLE PRECISION NOT NULL,
		status      TEXT NOT NULL CHECK (status IN ('accepted', 'refused'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_presences_student ON presences(student_id)`,
}

// Repository persists students and presence records. It owns the lazy schema
// setup: the first operation creates the tables, exactly once per Repository,
// however many goroutines race on it.
type Repository struct {
	db       *sql.DB
	postgres bool
	schema   []string

	ready atomic.Bool
	mu    sync.Mutex
}

// NewRepository creates a repo for the given driver ("sqlite" or "postgres").
func NewRepository(db *sql.DB, driver string) *Repository {
	r := &Repository{db: db, schema: sqliteSchema}
	if driver == "postgres" {
		r.postgres = true
		r.schema = postgresSchema
	}
	return r
}

// EnsureReady creates the schema on first use. The fast path is a lock-free
// flag read; the slow path takes the lock and re-checks before migrating. A
// failed migration leaves the flag unset so the next caller retries.
func (r *Repository) EnsureReady(ctx context.Context) error {
	if r.ready.Load() {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready.Load() {
		return nil
	}
	if err := r.migrate(ctx); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	r.ready.Store(true)
	zap.L().Named("attendance.repo").Info("schema ready")
	return nil
}

func (r *Repository) migrate(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, stmt := range r.schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// EnsureStudent returns the id of the student called name, creating it if
// needed. It inserts-if-absent before selecting, so concurrent callers with the
// same name converge on a single row.
func (r *Repository) EnsureStudent(ctx context.Context, name string) (int64, error) {
	if err := r.EnsureReady(ctx); err != nil {
		return 0, err
	}
	_, err := r.db.ExecContext(ctx, r.rebind(`
		INSERT INTO students (name, external_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (name) DO NOTHING
	`), name, uuid.NewString(), formatTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("insert student: %w", err)
	}

	var id int64
	if err := r.db.QueryRowContext(ctx, r.rebind(`SELECT id FROM students WHERE name = ?`), name).Scan(&id); err != nil {
		return 0, fmt.Errorf("select student: %w", err)
	}
	return id, nil
}

// AppendRecord inserts rec and returns it with its assigned id. Refused
// records are stored like accepted ones; any other status is rejected.
func (r *Repository) AppendRecord(ctx context.Context, rec Record) (Record, error) {
	if !rec.Status.Valid() {
		return Record{}, fmt.Errorf("append presence: unknown status %q", rec.Status)
	}
	if err := r.EnsureReady(ctx); err != nil {
		return Record{}, err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()

	row := r.db.QueryRowContext(ctx, r.rebind(`
		INSERT INTO presences (student_id, name, course, created_at, latitude, longitude, distance_m, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`), rec.StudentID, rec.Name, rec.Course, formatTime(rec.CreatedAt), rec.Latitude, rec.Longitude, rec.DistanceM, string(rec.Status))
	if err := row.Scan(&rec.ID); err != nil {
		return Record{}, fmt.Errorf("insert presence: %w", err)
	}
	return rec, nil
}

// ListRecent returns at most limit records, newest first. A non-positive
// limit falls back to 50.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	if err := r.EnsureReady(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT id, student_id, name, course, created_at, latitude, longitude, distance_m, status
		FROM presences
		ORDER BY id DESC
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("list presences: %w", err)
	}
	defer rows.Close()

	res := make([]Record, 0, limit)
	for rows.Next() {
		var (
			rec       Record
			studentID sql.NullInt64
			createdAt string
			status    string
		)
		if err := rows.Scan(&rec.ID, &studentID, &rec.Name, &rec.Course, &createdAt, &rec.Latitude, &rec.Longitude, &rec.DistanceM, &status); err != nil {
			return nil, fmt.Errorf("scan presence: %w", err)
		}
		if studentID.Valid {
			id := studentID.Int64
			rec.StudentID = &id
		}
		if rec.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		rec.Status = Status(status)
		res = append(res, rec)
	}
	return res, rows.Err()
}

// CountStudents returns the number of known students.
func (r *Repository) CountStudents(ctx context.Context) (int, error) {
	if err := r.EnsureReady(ctx); err != nil {
		return 0, err
	}
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM students`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return n, nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (r *Repository) rebind(query string) string {
	if !r.postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
