package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/internhub/internhub-api/internal/models"
	"github.com/internhub/internhub-api/internal/repository"
	appErrors "github.com/internhub/internhub-api/pkg/errors"
)

type applicationRepository interface {
	CreateWithHistory(ctx context.Context, app *models.Application, history *models.StatusHistory) error
	FindByID(ctx context.Context, id string) (*models.Application, error)
	FindDetailByID(ctx context.Context, id string) (*models.ApplicationDetail, error)
	ExistsByApplicantAndProgram(ctx context.Context, applicantID, programID string) (bool, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error)
	UpdateContent(ctx context.Context, app *models.Application) error
	UpdateAdminNotes(ctx context.Context, id string, notes *string) error
	TransitionStatus(ctx context.Context, id string, status models.ApplicationStatus, reviewerID string, notes *string, reviewedAt time.Time) (*models.StatusHistory, error)
	ListHistory(ctx context.Context, applicationID string) ([]models.StatusHistory, error)
	Delete(ctx context.Context, id string) error
}

type programReader interface {
	FindByID(ctx context.Context, id string) (*models.Program, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type lifecycleMetrics interface {
	RecordApplicationSubmitted()
	RecordStatusTransition(from, to string)
}

type statusNotifier interface {
	NotifyStatusChanged(email, applicationID string, from, to models.ApplicationStatus)
}

// CreateApplicationRequest describes application submission.
type CreateApplicationRequest struct {
	ProgramID             string `json:"program_id" validate:"required"`
	CoverLetter           string `json:"cover_letter" validate:"required"`
	WhyInterested         string `json:"why_interested" validate:"required"`
	SkillsAndExperience   string `json:"skills_and_experience" validate:"required"`
	AvailabilityStartDate string `json:"availability_start_date" validate:"required"`
}

// UpdateApplicationRequest carries applicant edits of the free-text fields.
type UpdateApplicationRequest struct {
	CoverLetter           *string `json:"cover_letter"`
	WhyInterested         *string `json:"why_interested"`
	SkillsAndExperience   *string `json:"skills_and_experience"`
	AvailabilityStartDate *string `json:"availability_start_date"`
}

// ReviewRequest carries a reviewer-driven status change.
type ReviewRequest struct {
	Status models.ApplicationStatus `json:"status" validate:"required"`
	Notes  string                   `json:"notes"`
}

// ApplicationServiceConfig tunes review behaviour.
type ApplicationServiceConfig struct {
	// AllowReopen permits transitions out of approved/rejected.
	AllowReopen bool
}

// ApplicationService orchestrates the application lifecycle: submission,
// applicant edits and reviewer status transitions with audit history.
type ApplicationService struct {
	repo      applicationRepository
	programs  programReader
	audit     auditLogger
	metrics   lifecycleMetrics
	notifier  statusNotifier
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ApplicationServiceConfig
}

// NewApplicationService constructs ApplicationService.
func NewApplicationService(repo applicationRepository, programs programReader, audit auditLogger, validate *validator.Validate, logger *zap.Logger, cfg ApplicationServiceConfig) *ApplicationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationService{repo: repo, programs: programs, audit: audit, validator: validate, logger: logger, cfg: cfg}
}

// WithMetrics attaches a metrics recorder for submission and status counters.
func (s *ApplicationService) WithMetrics(m lifecycleMetrics) *ApplicationService {
	s.metrics = m
	return s
}

// WithNotifier attaches an applicant notifier for review decisions.
func (s *ApplicationService) WithNotifier(n statusNotifier) *ApplicationService {
	s.notifier = n
	return s
}

const dateLayout = "2006-01-02"

// Create submits a new application for the actor. Fails with a conflict when
// the applicant already applied to the program and with an unprocessable
// error when the program is not accepting applications.
func (s *ApplicationService) Create(ctx context.Context, req CreateApplicationRequest, actor *models.JWTClaims) (*models.ApplicationDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}
	availability, err := time.Parse(dateLayout, req.AvailabilityStartDate)
	if err != nil {
		return nil, appErrors.WithField(appErrors.ErrValidation, "availability_start_date", "invalid date format, expected YYYY-MM-DD")
	}

	program, err := s.programs.FindByID(ctx, req.ProgramID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.WithField(appErrors.ErrNotFound, "program_id", "program not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}
	if !program.IsActive {
		return nil, appErrors.Clone(appErrors.ErrUnprocessable, "this program is not currently accepting applications")
	}

	exists, err := s.repo.ExistsByApplicantAndProgram(ctx, actor.UserID, req.ProgramID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing application")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "you have already applied to this program")
	}

	submittedNotes := "Application submitted"
	app := &models.Application{
		ApplicantID:           actor.UserID,
		ProgramID:             req.ProgramID,
		Status:                models.StatusPending,
		CoverLetter:           req.CoverLetter,
		WhyInterested:         req.WhyInterested,
		SkillsAndExperience:   req.SkillsAndExperience,
		AvailabilityStartDate: availability,
		SubmittedAt:           time.Now().UTC(),
	}
	history := &models.StatusHistory{
		Status:    models.StatusPending,
		ChangedBy: &actor.UserID,
		Notes:     &submittedNotes,
	}
	if err := s.repo.CreateWithHistory(ctx, app, history); err != nil {
		// unique (applicant, program) lost the race with a concurrent submit
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "you have already applied to this program")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
	}

	s.emitAudit(ctx, actor, models.AuditActionApplicationCreate, app.ID, map[string]interface{}{"program_id": app.ProgramID})
	if s.metrics != nil {
		s.metrics.RecordApplicationSubmitted()
	}

	detail, err := s.repo.FindDetailByID(ctx, app.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application detail")
	}
	return detail, nil
}

// Get returns an application detail; interns may only read their own.
func (s *ApplicationService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.ApplicationDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if !actor.IsReviewer() && detail.ApplicantID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return detail, nil
}

// List returns applications visible to the actor. Interns are constrained to
// their own applications regardless of the supplied filter.
func (s *ApplicationService) List(ctx context.Context, filter models.ApplicationFilter, actor *models.JWTClaims) ([]models.ApplicationDetail, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if !actor.IsReviewer() {
		filter.ApplicantID = actor.UserID
	}
	apps, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return apps, pagination, nil
}

// Update lets the applicant edit free-text fields while the application is
// still pending.
func (s *ApplicationService) Update(ctx context.Context, id string, req UpdateApplicationRequest, actor *models.JWTClaims) (*models.ApplicationDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if app.ApplicantID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	if app.Status != models.StatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "application can no longer be edited")
	}

	if req.CoverLetter != nil {
		app.CoverLetter = *req.CoverLetter
	}
	if req.WhyInterested != nil {
		app.WhyInterested = *req.WhyInterested
	}
	if req.SkillsAndExperience != nil {
		app.SkillsAndExperience = *req.SkillsAndExperience
	}
	if req.AvailabilityStartDate != nil {
		availability, err := time.Parse(dateLayout, *req.AvailabilityStartDate)
		if err != nil {
			return nil, appErrors.WithField(appErrors.ErrValidation, "availability_start_date", "invalid date format, expected YYYY-MM-DD")
		}
		app.AvailabilityStartDate = availability
	}
	if err := s.repo.UpdateContent(ctx, app); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update application")
	}
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application detail")
	}
	return detail, nil
}

// Transition applies a reviewer-driven status change. A same-status request
// only touches admin notes and appends no history.
func (s *ApplicationService) Transition(ctx context.Context, id string, req ReviewRequest, actor *models.JWTClaims) (*models.ApplicationDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.IsReviewer() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can review applications")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	if !models.ValidStatus(req.Status) {
		return nil, appErrors.WithField(appErrors.ErrValidation, "status", "unknown status")
	}

	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}

	var notes *string
	if req.Notes != "" {
		notes = &req.Notes
	}

	if app.Status == req.Status {
		if notes != nil {
			if err := s.repo.UpdateAdminNotes(ctx, id, notes); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update admin notes")
			}
		}
		return s.detail(ctx, id)
	}

	if !models.CanTransition(app.Status, req.Status, s.cfg.AllowReopen) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "cannot move application from "+string(app.Status)+" to "+string(req.Status))
	}

	if _, err := s.repo.TransitionStatus(ctx, id, req.Status, actor.UserID, notes, time.Now().UTC()); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update application status")
	}

	s.emitAudit(ctx, actor, models.AuditActionStatusChange, id, map[string]interface{}{"from": app.Status, "to": req.Status})
	if s.metrics != nil {
		s.metrics.RecordStatusTransition(string(app.Status), string(req.Status))
	}

	detail, err := s.detail(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.NotifyStatusChanged(detail.ApplicantEmail, id, app.Status, req.Status)
	}
	return detail, nil
}

// Approve is a reviewer shortcut for transitioning to approved.
func (s *ApplicationService) Approve(ctx context.Context, id, notes string, actor *models.JWTClaims) (*models.ApplicationDetail, error) {
	return s.Transition(ctx, id, ReviewRequest{Status: models.StatusApproved, Notes: notes}, actor)
}

// Reject is a reviewer shortcut for transitioning to rejected.
func (s *ApplicationService) Reject(ctx context.Context, id, notes string, actor *models.JWTClaims) (*models.ApplicationDetail, error) {
	return s.Transition(ctx, id, ReviewRequest{Status: models.StatusRejected, Notes: notes}, actor)
}

// Delete removes an application and its dependents. Admin only.
func (s *ApplicationService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !actor.IsReviewer() {
		return appErrors.ErrForbidden
	}
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete application")
	}
	return nil
}

func (s *ApplicationService) detail(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application detail")
	}
	return detail, nil
}

func (s *ApplicationService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, resourceID string, values map[string]interface{}) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(values)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "application",
		ResourceID: &resourceID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
