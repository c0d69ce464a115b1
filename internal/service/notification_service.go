package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/internhub/internhub-api/internal/models"
	"github.com/internhub/internhub-api/pkg/jobs"
)

const (
	notificationStatusChanged = "application_status_changed"
	notificationPasswordReset = "password_reset"
)

type notificationPayload struct {
	Recipient string
	Subject   string
	Body      string
}

// NotificationServiceConfig tunes the delivery worker pool.
type NotificationServiceConfig struct {
	Workers    int
	BufferSize int
}

// NotificationService delivers applicant-facing notices asynchronously so
// request handling never blocks on delivery.
type NotificationService struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationService constructs the service and its delivery queue.
func NewNotificationService(logger *zap.Logger, cfg NotificationServiceConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{logger: logger}
	s.queue = jobs.NewQueue("notifications", s.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		Logger:     logger,
	})
	return s
}

// Start begins background delivery.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the delivery workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// NotifyStatusChanged queues a notice to the applicant about a review
// decision on their application.
func (s *NotificationService) NotifyStatusChanged(email, applicationID string, from, to models.ApplicationStatus) {
	s.enqueue(notificationStatusChanged, notificationPayload{
		Recipient: email,
		Subject:   fmt.Sprintf("Your application is now %s", to),
		Body:      fmt.Sprintf("Application %s moved from %s to %s.", applicationID, from, to),
	})
}

// NotifyPasswordReset queues the reset instructions for the account owner.
func (s *NotificationService) NotifyPasswordReset(email, token string) {
	s.enqueue(notificationPasswordReset, notificationPayload{
		Recipient: email,
		Subject:   "Password reset requested",
		Body:      fmt.Sprintf("Use token %s to reset your password. The token expires soon and can be used once.", token),
	})
}

func (s *NotificationService) enqueue(kind string, payload notificationPayload) {
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    kind,
		Payload: payload,
	})
	if err != nil {
		s.logger.Warn("failed to queue notification", zap.String("type", kind), zap.Error(err))
	}
}

// deliver writes the notice to the log. TODO: swap in the SMTP transport
// once the mail relay credentials are provisioned.
func (s *NotificationService) deliver(_ context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(notificationPayload)
	if !ok {
		return fmt.Errorf("unexpected payload for job %s", job.ID)
	}
	s.logger.Info("notification delivered",
		zap.String("type", job.Type),
		zap.String("recipient", payload.Recipient),
		zap.String("subject", payload.Subject))
	return nil
}
