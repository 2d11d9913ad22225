package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/punch-attendance-api/internal/dto"
	"github.com/noah-isme/punch-attendance-api/internal/models"
	appErrors "github.com/noah-isme/punch-attendance-api/pkg/errors"
	"github.com/noah-isme/punch-attendance-api/pkg/geo"
)

type locationStore interface {
	Create(ctx context.Context, record *models.LocationRecord) error
	Latest(ctx context.Context, studentID string) (*models.LocationRecord, error)
	History(ctx context.Context, filter models.LocationFilter) ([]models.LocationRecord, error)
}

// LocationService appends and reads student location records.
type LocationService struct {
	repo      locationStore
	students  studentDirectory
	cache     *CacheService
	cacheTTL  time.Duration
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewLocationService constructs a LocationService. cache may be nil.
func NewLocationService(repo locationStore, students studentDirectory, cache *CacheService, cacheTTL time.Duration, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *LocationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocationService{
		repo:      repo,
		students:  students,
		cache:     cache,
		cacheTTL:  cacheTTL,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// RecordLocation appends a location record for a student.
func (s *LocationService) RecordLocation(ctx context.Context, studentID string, latitude, longitude float64, accuracy *float64) (*models.LocationRecord, error) {
	if err := (geo.Point{Latitude: latitude, Longitude: longitude}).Validate(); err != nil {
		return nil, err
	}
	if accuracy != nil && *accuracy < 0 {
		return nil, appErrors.WithField(appErrors.ErrValidation, "accuracy", "accuracy must not be negative")
	}
	if _, err := activeStudent(ctx, s.students, studentID); err != nil {
		return nil, err
	}

	record := &models.LocationRecord{
		StudentID:  studentID,
		Latitude:   latitude,
		Longitude:  longitude,
		Accuracy:   accuracy,
		RecordedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store location")
	}
	s.cache.Invalidate(ctx, latestLocationKey(studentID))
	s.metrics.RecordLocation()
	return record, nil
}

// RecordForStudent validates a request payload and records it.
func (s *LocationService) RecordForStudent(ctx context.Context, studentID string, req dto.RecordLocationRequest) (*models.LocationRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	return s.RecordLocation(ctx, studentID, *req.Latitude, *req.Longitude, req.Accuracy)
}

// Latest returns the most recent record for a student and whether it was served from cache.
func (s *LocationService) Latest(ctx context.Context, studentID string, actor *models.JWTClaims) (*models.LocationRecord, bool, error) {
	if err := authorizeStudentScope(actor, studentID); err != nil {
		return nil, false, err
	}
	key := latestLocationKey(studentID)
	var cached models.LocationRecord
	if s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}

	record, err := s.repo.Latest(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "no location recorded")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load latest location")
	}
	s.cache.Set(ctx, key, record, s.cacheTTL)
	return record, false, nil
}

// History returns a student's records newest first.
func (s *LocationService) History(ctx context.Context, query dto.LocationHistoryQuery, actor *models.JWTClaims) ([]models.LocationRecord, error) {
	if err := authorizeStudentScope(actor, query.StudentID); err != nil {
		return nil, err
	}
	if query.From != nil && query.To != nil && query.From.After(*query.To) {
		return nil, appErrors.WithField(appErrors.ErrValidation, "from", "from must not be after to")
	}
	records, err := s.repo.History(ctx, models.LocationFilter{
		StudentID: query.StudentID,
		From:      query.From,
		To:        query.To,
		Limit:     query.Limit,
		Offset:    query.Offset,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load location history")
	}
	return records, nil
}

// authorizeStudentScope lets mentors and admins read anyone and students only themselves.
func authorizeStudentScope(actor *models.JWTClaims, studentID string) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if studentID == "" {
		return appErrors.WithField(appErrors.ErrValidation, "studentId", "student is required")
	}
	switch actor.Role {
	case models.RoleAdmin, models.RoleMentor:
		return nil
	case models.RoleStudent:
		if actor.UserID == studentID {
			return nil
		}
	}
	return appErrors.ErrForbidden
}

func latestLocationKey(studentID string) string {
	return fmt.Sprintf("location:latest:%s", studentID)
}
