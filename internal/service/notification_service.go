package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/punch-attendance-api/pkg/jobs"
	"github.com/noah-isme/punch-attendance-api/pkg/mailer"
)

// JobTypeMail identifies outbound email jobs.
const JobTypeMail = "mail.send"

type jobEnqueuer interface {
	Enqueue(ctx context.Context, job jobs.Job) error
}

// NotificationService renders user-facing emails and hands them to the job queue.
type NotificationService struct {
	queue  jobEnqueuer
	logger *zap.Logger
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(queue jobEnqueuer, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{queue: queue, logger: logger}
}

// SendResetCode queues the password reset email for async delivery.
func (s *NotificationService) SendResetCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	msg := mailer.Message{
		To:      email,
		Subject: "Your password reset code",
		Body: fmt.Sprintf(
			"Use the code %s to reset your password.\r\nThe code expires at %s UTC.\r\nIf you did not request a reset you can ignore this email.\r\n",
			code, expiresAt.UTC().Format("2006-01-02 15:04"),
		),
	}
	job := jobs.Job{ID: uuid.NewString(), Type: JobTypeMail, Payload: msg}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("enqueue reset mail: %w", err)
	}
	s.logger.Debug("reset mail queued", zap.String("job_id", job.ID))
	return nil
}

// MailJobHandler delivers queued messages through m.
func MailJobHandler(m mailer.Mailer) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		msg, ok := job.Payload.(mailer.Message)
		if !ok {
			return fmt.Errorf("mail job %s: unexpected payload %T", job.ID, job.Payload)
		}
		return m.Send(ctx, msg)
	}
}

// MailResultHook records mail outcomes on the metrics service.
func MailResultHook(metrics *MetricsService, logger *zap.Logger) jobs.ResultHook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(job jobs.Job, err error) {
		if job.Type != JobTypeMail {
			return
		}
		metrics.RecordMailDelivery(err == nil)
		if err != nil {
			logger.Error("mail delivery failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}
