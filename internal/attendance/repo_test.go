package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presence/internal/store"
)

func newTestRepo(t *testing.T) (*Repository, *sql.DB) {
	t.Helper()
	db, err := store.NewDB(context.Background(), store.DriverSQLite, filepath.Join(t.TempDir(), "presence.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db.Client, db.Driver), db.Client
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func sampleRecord(studentID int64, name string, i int) Record {
	return Record{
		StudentID: &studentID,
		Name:      name,
		Course:    "math1",
		CreatedAt: time.Date(2026, 10, 19, 8, 0, i, 0, time.UTC),
		Latitude:  48.8566,
		Longitude: 2.3522,
		DistanceM: float64(i),
		Status:    StatusAccepted,
	}
}

func TestRepository_EnsureStudentIsIdempotent(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	first, err := repo.EnsureStudent(ctx, "Alice")
	require.NoError(t, err)
	second, err := repo.EnsureStudent(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := repo.EnsureStudent(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, first, other, "names are case-sensitive")

	assert.Equal(t, 2, countRows(t, db, "students"))

	var externalID string
	require.NoError(t, db.QueryRow(`SELECT external_id FROM students WHERE id = ?`, first).Scan(&externalID))
	assert.NotEmpty(t, externalID)
}

func TestRepository_SameNameTwiceOneStudentTwoRecords(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		id, err := repo.EnsureStudent(ctx, "Alice")
		require.NoError(t, err)
		_, err = repo.AppendRecord(ctx, sampleRecord(id, "Alice", i))
		require.NoError(t, err)
	}

	n, err := repo.CountStudents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, countRows(t, db, "presences"))
}

func TestRepository_AppendRecordKeepsRefused(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.EnsureStudent(ctx, "Bob")
	require.NoError(t, err)

	rec := sampleRecord(id, "Bob", 0)
	rec.Status = StatusRefused
	rec.DistanceM = 4826.4
	saved, err := repo.AppendRecord(ctx, rec)
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)

	got, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, StatusRefused, got[0].Status)
	assert.Equal(t, 4826.4, got[0].DistanceM)
	require.NotNil(t, got[0].StudentID)
	assert.Equal(t, id, *got[0].StudentID)
	assert.True(t, rec.CreatedAt.Equal(got[0].CreatedAt))
}

func TestRepository_AppendRecordWithoutStudent(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	rec := sampleRecord(0, "Ghost", 0)
	rec.StudentID = nil
	_, err := repo.AppendRecord(ctx, rec)
	require.NoError(t, err)

	got, err := repo.ListRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].StudentID)
}

func TestRepository_ListRecentNewestFirst(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.EnsureStudent(ctx, "Carol")
	require.NoError(t, err)
	var ids []int64
	for i := 0; i < 5; i++ {
		rec, err := repo.AppendRecord(ctx, sampleRecord(id, fmt.Sprintf("Carol-%d", i), i))
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	got, err := repo.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ids[4], got[0].ID)
	assert.Equal(t, ids[3], got[1].ID)
	assert.Equal(t, "Carol-4", got[0].Name)

	all, err := repo.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestRepository_ConcurrentFirstUse(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := repo.EnsureStudent(ctx, "Dana")
			if err != nil {
				errs <- err
				return
			}
			if _, err := repo.AppendRecord(ctx, sampleRecord(id, "Dana", i)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.True(t, repo.ready.Load())
	assert.Equal(t, 1, countRows(t, db, "students"))
	assert.Equal(t, workers, countRows(t, db, "presences"))
}

func expectSchema(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	for _, stmt := range sqliteSchema {
		mock.ExpectExec(regexp.QuoteMeta(stmt)).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectCommit()
}

func TestRepository_SchemaCreatedOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db, store.DriverSQLite)
	ctx := context.Background()

	// A second migration would hit an unexpected Begin and fail.
	expectSchema(mock)

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.EnsureReady(ctx)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_AppendRecordRejectsUnknownStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db, store.DriverSQLite)
	rec := sampleRecord(1, "Eve", 0)
	rec.Status = "pending"

	_, err = repo.AppendRecord(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pending")
	assert.NoError(t, mock.ExpectationsWereMet(), "nothing reaches the database")
}

func TestRepository_SchemaFailureIsRetried(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db, store.DriverSQLite)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(sqliteSchema[0])).WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()
	_, err = repo.ListRecent(ctx, 5)
	require.Error(t, err)
	assert.False(t, repo.ready.Load())

	expectSchema(mock)
	mock.ExpectQuery(`SELECT id, student_id, name`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "name", "course", "created_at", "latitude", "longitude", "distance_m", "status"}))
	got, err := repo.ListRecent(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.True(t, repo.ready.Load())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_StorageErrorsPropagate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db, store.DriverSQLite)
	ctx := context.Background()
	ioErr := errors.New("database is locked")

	expectSchema(mock)
	mock.ExpectExec(`INSERT INTO students`).WillReturnError(ioErr)
	_, err = repo.EnsureStudent(ctx, "Eve")
	assert.ErrorIs(t, err, ioErr)

	mock.ExpectQuery(`INSERT INTO presences`).WillReturnError(ioErr)
	_, err = repo.AppendRecord(ctx, sampleRecord(1, "Eve", 0))
	assert.ErrorIs(t, err, ioErr)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_PostgresRebind(t *testing.T) {
	repo := NewRepository(nil, store.DriverPostgres)
	assert.Equal(t, "SELECT id FROM students WHERE name = $1 AND id > $2", repo.rebind("SELECT id FROM students WHERE name = ? AND id > ?"))
	assert.Equal(t, postgresSchema, repo.schema)

	sqlite := NewRepository(nil, store.DriverSQLite)
	assert.Equal(t, "SELECT ?", sqlite.rebind("SELECT ?"))
}
