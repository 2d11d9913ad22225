package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/punch-attendance-api/internal/dto"
	"github.com/noah-isme/punch-attendance-api/internal/models"
	"github.com/noah-isme/punch-attendance-api/internal/repository"
	appErrors "github.com/noah-isme/punch-attendance-api/pkg/errors"
	"github.com/noah-isme/punch-attendance-api/pkg/geo"
)

type punchStore interface {
	Create(ctx context.Context, punch *models.PunchRequest) error
	GetByID(ctx context.Context, id string) (*models.PunchRequest, error)
	List(ctx context.Context, filter models.PunchFilter) ([]models.PunchRequest, error)
	Decide(ctx context.Context, params repository.DecidePunchParams) error
}

type studentDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type siteLocator interface {
	ReferencePoint(ctx context.Context, studentID string) (geo.Point, error)
	Supervises(ctx context.Context, mentorID, studentID string) (bool, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// PunchService manages the punch ledger and the mentor approval workflow.
type PunchService struct {
	repo      punchStore
	students  studentDirectory
	sites     siteLocator
	audit     auditLogger
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewPunchService constructs the punch service.
func NewPunchService(repo punchStore, students studentDirectory, sites siteLocator, audit auditLogger, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *PunchService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PunchService{
		repo:      repo,
		students:  students,
		sites:     sites,
		audit:     audit,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// SubmitPunch stores a PENDING punch with its distance from the reference point.
func (s *PunchService) SubmitPunch(ctx context.Context, studentID string, punchType models.PunchType, latitude, longitude float64, site geo.Point) (*models.PunchRequest, error) {
	punchType = models.PunchType(strings.ToUpper(strings.TrimSpace(string(punchType))))
	if !punchType.Valid() {
		return nil, appErrors.WithField(appErrors.ErrValidation, "type", "type must be PUNCH_IN or PUNCH_OUT")
	}
	position := geo.Point{Latitude: latitude, Longitude: longitude}
	if err := position.Validate(); err != nil {
		return nil, err
	}
	if err := site.Validate(); err != nil {
		return nil, appErrors.WithField(appErrors.ErrValidation, "site", "site reference point is invalid")
	}
	if _, err := activeStudent(ctx, s.students, studentID); err != nil {
		return nil, err
	}

	punch := &models.PunchRequest{
		StudentID: studentID,
		Type:      punchType,
		PunchTime: s.now().UTC(),
		Latitude:  latitude,
		Longitude: longitude,
		Distance:  geo.Distance(position, site),
		Status:    models.PunchStatusPending,
	}
	if err := s.repo.Create(ctx, punch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store punch request")
	}

	s.metrics.RecordPunchSubmitted(punch.Type, punch.Distance)
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &studentID,
		Action:     models.AuditActionPunchSubmit,
		Resource:   "punch_request",
		ResourceID: &punch.ID,
		NewValues:  marshalAudit(punch),
	})
	s.logger.Debug("punch submitted",
		zap.String("punch_id", punch.ID),
		zap.String("student_id", studentID),
		zap.String("type", string(punch.Type)),
		zap.Float64("distance_m", punch.Distance),
	)
	return punch, nil
}

// SubmitForStudent validates the payload and submits against the student's batch site.
func (s *PunchService) SubmitForStudent(ctx context.Context, studentID string, req dto.SubmitPunchRequest) (*models.PunchRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if s.sites == nil {
		return nil, appErrors.WithField(appErrors.ErrValidation, "batch", "no site configured for student")
	}
	site, err := s.sites.ReferencePoint(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return s.SubmitPunch(ctx, studentID, req.Type, *req.Latitude, *req.Longitude, site)
}

// ProcessPunch applies a mentor decision to a PENDING request.
func (s *PunchService) ProcessPunch(ctx context.Context, requestID, mentorID string, decision models.PunchDecision, reason string) (*models.PunchRequest, error) {
	if strings.TrimSpace(mentorID) == "" {
		return nil, appErrors.WithField(appErrors.ErrValidation, "mentorId", "mentor is required")
	}
	punch, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "punch request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load punch request")
	}
	if punch.Status != models.PunchStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "punch request already processed")
	}
	if err := s.authorizeMentor(ctx, mentorID, punch.StudentID); err != nil {
		return nil, err
	}

	params := repository.DecidePunchParams{
		ID:          punch.ID,
		MentorID:    mentorID,
		ProcessedAt: s.now().UTC(),
	}
	action := models.AuditActionPunchApprove
	switch models.PunchDecision(strings.ToUpper(strings.TrimSpace(string(decision)))) {
	case models.PunchDecisionApprove:
		params.Status = models.PunchStatusApproved
	case models.PunchDecisionReject:
		params.RejectionReason = optionalString(reason)
		if params.RejectionReason == nil {
			return nil, appErrors.WithField(appErrors.ErrValidation, "reason", "reason is required when rejecting")
		}
		params.Status = models.PunchStatusRejected
		action = models.AuditActionPunchReject
	default:
		return nil, appErrors.WithField(appErrors.ErrValidation, "decision", "decision must be APPROVE or REJECT")
	}

	if err := s.repo.Decide(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "punch request already processed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update punch request")
	}

	before := *punch
	punch.Status = params.Status
	punch.MentorID = &params.MentorID
	processedAt := params.ProcessedAt
	punch.ProcessedAt = &processedAt
	punch.RejectionReason = params.RejectionReason

	s.metrics.RecordPunchDecision(punch.Status)
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &mentorID,
		Action:     action,
		Resource:   "punch_request",
		ResourceID: &punch.ID,
		OldValues:  marshalAudit(before),
		NewValues:  marshalAudit(punch),
	})
	return punch, nil
}

// authorizeMentor restricts decisions to the mentor leading the student's batch.
func (s *PunchService) authorizeMentor(ctx context.Context, mentorID, studentID string) error {
	if s.sites == nil {
		return appErrors.Clone(appErrors.ErrForbidden, "mentor does not supervise this student")
	}
	ok, err := s.sites.Supervises(ctx, mentorID, studentID)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrForbidden, "mentor does not supervise this student")
	}
	return nil
}

// List returns ledger entries visible to actor, newest first.
func (s *PunchService) List(ctx context.Context, query dto.PunchQuery, actor *models.JWTClaims) ([]models.PunchRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.PunchFilter{
		StudentID: strings.TrimSpace(query.StudentID),
		BatchID:   strings.TrimSpace(query.BatchID),
		Type:      query.Type,
		From:      query.From,
		To:        query.To,
		Limit:     query.Limit,
		Offset:    query.Offset,
	}
	for _, status := range query.Status {
		status = models.PunchStatus(strings.ToUpper(strings.TrimSpace(string(status))))
		if !status.Valid() {
			return nil, appErrors.WithField(appErrors.ErrValidation, "status", "unsupported status filter")
		}
		filter.Status = append(filter.Status, status)
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, appErrors.WithField(appErrors.ErrValidation, "type", "unsupported type filter")
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, appErrors.WithField(appErrors.ErrValidation, "from", "from must not be after to")
	}

	switch actor.Role {
	case models.RoleAdmin, models.RoleMentor:
	case models.RoleStudent:
		filter.StudentID = actor.UserID
	default:
		return nil, appErrors.ErrForbidden
	}

	punches, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list punch requests")
	}
	return punches, nil
}

// Pending lists the approval queue.
func (s *PunchService) Pending(ctx context.Context, query dto.PunchQuery, actor *models.JWTClaims) ([]models.PunchRequest, error) {
	query.Status = []models.PunchStatus{models.PunchStatusPending}
	return s.List(ctx, query, actor)
}

// Get returns one punch request; students only see their own.
func (s *PunchService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.PunchRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	punch, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "punch request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load punch request")
	}
	if actor.Role == models.RoleStudent && punch.StudentID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return punch, nil
}

func (s *PunchService) emitAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil || log == nil {
		return
	}
	log.IPAddress = "system"
	log.UserAgent = "punch-service"
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.String("action", log.Action), zap.Error(err))
	}
}

// activeStudent loads id and requires an active STUDENT account.
func activeStudent(ctx context.Context, students studentDirectory, id string) (*models.User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, appErrors.WithField(appErrors.ErrValidation, "studentId", "student is required")
	}
	if students == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	user, err := students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if user.Role != models.RoleStudent || !user.Active {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return user, nil
}

func marshalAudit(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func optionalString(value string) *string {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	return &v
}

// validationError converts validator output into a field-scoped validation error.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		field := lowerFirst(fe.Field())
		return appErrors.WithField(appErrors.ErrValidation, field, field+" failed "+fe.Tag()+" validation")
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, appErrors.ErrValidation.Message)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
