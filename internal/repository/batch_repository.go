package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/punch-attendance-api/internal/models"
)

// BatchRepository reads batch definitions.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository constructs the repository.
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// List returns batches, optionally restricted to one mentor.
func (r *BatchRepository) List(ctx context.Context, mentorID string) ([]models.Batch, error) {
	query := `SELECT id, name, mentor_id, site_latitude, site_longitude, created_at FROM batches`
	args := []interface{}{}
	if mentorID != "" {
		query += ` WHERE mentor_id = $1`
		args = append(args, mentorID)
	}
	query += ` ORDER BY name ASC`
	var batches []models.Batch
	if err := r.db.SelectContext(ctx, &batches, query, args...); err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return batches, nil
}

// GetByID returns a batch or sql.ErrNoRows.
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*models.Batch, error) {
	const query = `SELECT id, name, mentor_id, site_latitude, site_longitude, created_at FROM batches WHERE id = $1`
	var batch models.Batch
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		return nil, err
	}
	return &batch, nil
}

// FindByStudent returns the batch the student belongs to or sql.ErrNoRows.
func (r *BatchRepository) FindByStudent(ctx context.Context, studentID string) (*models.Batch, error) {
	const query = `SELECT b.id, b.name, b.mentor_id, b.site_latitude, b.site_longitude, b.created_at
	FROM batches b JOIN users u ON u.batch_id = b.id WHERE u.id = $1`
	var batch models.Batch
	if err := r.db.GetContext(ctx, &batch, query, studentID); err != nil {
		return nil, err
	}
	return &batch, nil
}
