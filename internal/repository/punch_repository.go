package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/punch-attendance-api/internal/models"
)

const punchColumns = `p.id, p.student_id, p.type, p.punch_time, p.latitude, p.longitude, p.distance,
       p.status, p.mentor_id, p.processed_at, p.rejection_reason`

const (
	defaultPunchLimit = 50
	maxPunchLimit     = 500
)

// PunchRepository persists the punch request ledger.
type PunchRepository struct {
	db *sqlx.DB
}

// NewPunchRepository constructs the repository.
func NewPunchRepository(db *sqlx.DB) *PunchRepository {
	return &PunchRepository{db: db}
}

// Create appends a new ledger entry.
func (r *PunchRepository) Create(ctx context.Context, punch *models.PunchRequest) error {
	if punch.ID == "" {
		punch.ID = uuid.NewString()
	}
	if punch.Status == "" {
		punch.Status = models.PunchStatusPending
	}
	if punch.PunchTime.IsZero() {
		punch.PunchTime = time.Now().UTC()
	}
	const query = `INSERT INTO punching_requests
	(id, student_id, type, punch_time, latitude, longitude, distance, status, mentor_id, processed_at, rejection_reason)
	VALUES (:id, :student_id, :type, :punch_time, :latitude, :longitude, :distance, :status, :mentor_id, :processed_at, :rejection_reason)`
	if _, err := r.db.NamedExecContext(ctx, query, punch); err != nil {
		return fmt.Errorf("create punch request: %w", err)
	}
	return nil
}

// GetByID fetches a punch request by identifier.
func (r *PunchRepository) GetByID(ctx context.Context, id string) (*models.PunchRequest, error) {
	query := `SELECT ` + punchColumns + ` FROM punching_requests p WHERE p.id = $1`
	var punch models.PunchRequest
	if err := r.db.GetContext(ctx, &punch, query, id); err != nil {
		return nil, err
	}
	return &punch, nil
}

// List returns punch requests matching the filter (latest first).
func (r *PunchRepository) List(ctx context.Context, filter models.PunchFilter) ([]models.PunchRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 8)
	builder.WriteString(`SELECT ` + punchColumns + ` FROM punching_requests p`)
	if filter.BatchID != "" {
		builder.WriteString(` JOIN users u ON u.id = p.student_id`)
	}

	conditions := make([]string, 0, 6)
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("p.student_id = $%d", len(args)))
	}
	if filter.BatchID != "" {
		args = append(args, filter.BatchID)
		conditions = append(conditions, fmt.Sprintf("u.batch_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("p.status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("p.type = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("p.punch_time >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("p.punch_time <= $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY p.punch_time DESC")

	limit := filter.Limit
	switch {
	case limit <= 0:
		limit = defaultPunchLimit
	case limit > maxPunchLimit:
		limit = maxPunchLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var punches []models.PunchRequest
	if err := r.db.SelectContext(ctx, &punches, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list punch requests: %w", err)
	}
	return punches, nil
}

// DecidePunchParams groups the columns written by a mentor decision.
type DecidePunchParams struct {
	ID              string
	Status          models.PunchStatus
	MentorID        string
	ProcessedAt     time.Time
	RejectionReason *string
}

// Decide moves a PENDING request to a terminal status. It returns sql.ErrNoRows when the
// request does not exist or is no longer PENDING, so concurrent deciders get exactly one winner.
func (r *PunchRepository) Decide(ctx context.Context, params DecidePunchParams) error {
	query := fmt.Sprintf(`UPDATE punching_requests
	SET status = :status, mentor_id = :mentor_id, processed_at = :processed_at, rejection_reason = :rejection_reason
	WHERE id = :id AND status = '%s'`, models.PunchStatusPending)
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":               params.ID,
		"status":           params.Status,
		"mentor_id":        params.MentorID,
		"processed_at":     params.ProcessedAt,
		"rejection_reason": params.RejectionReason,
	})
	if err != nil {
		return fmt.Errorf("decide punch request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check punch decision rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
