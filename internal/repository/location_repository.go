package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/punch-attendance-api/internal/models"
)

// LocationRepository stores the append-only location history.
type LocationRepository struct {
	db *sqlx.DB
}

// NewLocationRepository constructs the repository.
func NewLocationRepository(db *sqlx.DB) *LocationRepository {
	return &LocationRepository{db: db}
}

// Create inserts a location record. Records are never updated or deleted.
func (r *LocationRepository) Create(ctx context.Context, record *models.LocationRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now().UTC()
	}
	const query = `INSERT INTO locations (id, student_id, latitude, longitude, accuracy, recorded_at)
	VALUES (:id, :student_id, :latitude, :longitude, :accuracy, :recorded_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create location: %w", err)
	}
	return nil
}

// Latest returns the most recent record for a student or sql.ErrNoRows.
func (r *LocationRepository) Latest(ctx context.Context, studentID string) (*models.LocationRecord, error) {
	const query = `SELECT id, student_id, latitude, longitude, accuracy, recorded_at
	FROM locations WHERE student_id = $1 ORDER BY recorded_at DESC LIMIT 1`
	var record models.LocationRecord
	if err := r.db.GetContext(ctx, &record, query, studentID); err != nil {
		return nil, err
	}
	return &record, nil
}

// History lists a student's records inside an optional time window, newest first.
func (r *LocationRepository) History(ctx context.Context, filter models.LocationFilter) ([]models.LocationRecord, error) {
	builder := strings.Builder{}
	args := []interface{}{filter.StudentID}
	builder.WriteString(`SELECT id, student_id, latitude, longitude, accuracy, recorded_at FROM locations WHERE student_id = $1`)
	if filter.From != nil {
		args = append(args, *filter.From)
		builder.WriteString(fmt.Sprintf(" AND recorded_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		builder.WriteString(fmt.Sprintf(" AND recorded_at <= $%d", len(args)))
	}
	builder.WriteString(" ORDER BY recorded_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var records []models.LocationRecord
	if err := r.db.SelectContext(ctx, &records, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list location history: %w", err)
	}
	return records, nil
}
