package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/punch-attendance-api/internal/models"
)

var locationRowColumns = []string{"id", "student_id", "latitude", "longitude", "accuracy", "recorded_at"}

func TestLocationRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLocationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO locations")).WillReturnResult(sqlmock.NewResult(1, 1))

	record := &models.LocationRecord{StudentID: "student-1", Latitude: 12.9, Longitude: 77.6}
	require.NoError(t, repo.Create(context.Background(), record))
	assert.NotEmpty(t, record.ID)
	assert.False(t, record.RecordedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocationRepositoryLatest(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLocationRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM locations WHERE student_id = $1 ORDER BY recorded_at DESC LIMIT 1")).
		WithArgs("student-1").
		WillReturnRows(sqlmock.NewRows(locationRowColumns).AddRow("loc-2", "student-1", 1.5, 2.5, 8.0, now))

	record, err := repo.Latest(context.Background(), "student-1")
	require.NoError(t, err)
	assert.Equal(t, "loc-2", record.ID)
	require.NotNil(t, record.Accuracy)
	assert.Equal(t, 8.0, *record.Accuracy)

	mock.ExpectQuery(regexp.QuoteMeta("FROM locations WHERE student_id = $1")).
		WithArgs("student-2").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.Latest(context.Background(), "student-2")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocationRepositoryHistoryWindow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLocationRepository(db)

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE student_id = $1 AND recorded_at >= $2 AND recorded_at <= $3 ORDER BY recorded_at DESC LIMIT 100 OFFSET 0")).
		WithArgs("student-1", from, to).
		WillReturnRows(sqlmock.NewRows(locationRowColumns).
			AddRow("loc-2", "student-1", 1.0, 1.0, nil, to.Add(-time.Hour)).
			AddRow("loc-1", "student-1", 1.0, 1.0, nil, from.Add(time.Hour)))

	records, err := repo.History(context.Background(), models.LocationFilter{StudentID: "student-1", From: &from, To: &to})
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Nil(t, records[0].Accuracy)
	assert.NoError(t, mock.ExpectationsWereMet())
}
