package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/punch-attendance-api/internal/models"
	appErrors "github.com/noah-isme/punch-attendance-api/pkg/errors"
	"github.com/noah-isme/punch-attendance-api/pkg/geo"
)

type batchStore interface {
	List(ctx context.Context, mentorID string) ([]models.Batch, error)
	GetByID(ctx context.Context, id string) (*models.Batch, error)
	FindByStudent(ctx context.Context, studentID string) (*models.Batch, error)
}

type batchRoster interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
}

// BatchService exposes batches and resolves student site reference points.
type BatchService struct {
	repo   batchStore
	users  batchRoster
	logger *zap.Logger
}

// NewBatchService constructs a BatchService.
func NewBatchService(repo batchStore, users batchRoster, logger *zap.Logger) *BatchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchService{repo: repo, users: users, logger: logger}
}

// List returns the batches visible to actor. Mentors only see the batches they lead.
func (s *BatchService) List(ctx context.Context, actor *models.JWTClaims) ([]models.Batch, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	var mentorID string
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleMentor:
		mentorID = actor.UserID
	default:
		return nil, appErrors.ErrForbidden
	}
	batches, err := s.repo.List(ctx, mentorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batches")
	}
	return batches, nil
}

// Get loads a batch by id.
func (s *BatchService) Get(ctx context.Context, id string) (*models.Batch, error) {
	batch, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	return batch, nil
}

// Students lists the active students enrolled in a batch.
func (s *BatchService) Students(ctx context.Context, batchID string) ([]models.User, error) {
	if _, err := s.Get(ctx, batchID); err != nil {
		return nil, err
	}
	role := models.RoleStudent
	active := true
	students, _, err := s.users.List(ctx, models.UserFilter{
		Role:      &role,
		Active:    &active,
		BatchID:   batchID,
		Page:      1,
		PageSize:  100,
		SortBy:    "full_name",
		SortOrder: "ASC",
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batch students")
	}
	return students, nil
}

// ReferencePoint returns the site coordinates of the student's batch.
func (s *BatchService) ReferencePoint(ctx context.Context, studentID string) (geo.Point, error) {
	batch, err := s.repo.FindByStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return geo.Point{}, appErrors.WithField(appErrors.ErrValidation, "batch", "student is not assigned to a batch")
		}
		return geo.Point{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve batch site")
	}
	return geo.Point{Latitude: batch.SiteLatitude, Longitude: batch.SiteLongitude}, nil
}

// Supervises reports whether mentorID leads the batch the student is enrolled in.
func (s *BatchService) Supervises(ctx context.Context, mentorID, studentID string) (bool, error) {
	batch, err := s.repo.FindByStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student batch")
	}
	return batch.MentorID == mentorID, nil
}
