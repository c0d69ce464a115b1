package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/internhub/internhub-api/internal/models"
	appErrors "github.com/internhub/internhub-api/pkg/errors"
)

type mockApplicationRepo struct {
	apps          map[string]models.Application
	existing      map[string]bool
	created       *models.Application
	createdNotes  *string
	transitioned  []models.ApplicationStatus
	notesUpdated  *string
	notesUpdates  int
	deleted       []string
	transitionErr error
}

func appKey(applicantID, programID string) string {
	return applicantID + "/" + programID
}

func (m *mockApplicationRepo) CreateWithHistory(ctx context.Context, app *models.Application, history *models.StatusHistory) error {
	if m.apps == nil {
		m.apps = make(map[string]models.Application)
	}
	if app.ID == "" {
		app.ID = "new-app"
	}
	m.apps[app.ID] = *app
	m.created = app
	m.createdNotes = history.Notes
	return nil
}

func (m *mockApplicationRepo) FindByID(ctx context.Context, id string) (*models.Application, error) {
	if a, ok := m.apps[id]; ok {
		return &a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockApplicationRepo) FindDetailByID(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	if a, ok := m.apps[id]; ok {
		return &models.ApplicationDetail{Application: a}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockApplicationRepo) ExistsByApplicantAndProgram(ctx context.Context, applicantID, programID string) (bool, error) {
	return m.existing[appKey(applicantID, programID)], nil
}

func (m *mockApplicationRepo) List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error) {
	var out []models.ApplicationDetail
	for _, a := range m.apps {
		if filter.ApplicantID != "" && a.ApplicantID != filter.ApplicantID {
			continue
		}
		out = append(out, models.ApplicationDetail{Application: a})
	}
	return out, len(out), nil
}

func (m *mockApplicationRepo) UpdateContent(ctx context.Context, app *models.Application) error {
	m.apps[app.ID] = *app
	return nil
}

func (m *mockApplicationRepo) UpdateAdminNotes(ctx context.Context, id string, notes *string) error {
	m.notesUpdated = notes
	m.notesUpdates++
	if a, ok := m.apps[id]; ok {
		a.AdminNotes = notes
		m.apps[id] = a
	}
	return nil
}

func (m *mockApplicationRepo) TransitionStatus(ctx context.Context, id string, status models.ApplicationStatus, reviewerID string, notes *string, reviewedAt time.Time) (*models.StatusHistory, error) {
	if m.transitionErr != nil {
		return nil, m.transitionErr
	}
	a, ok := m.apps[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	a.Status = status
	a.ReviewedBy = &reviewerID
	a.ReviewedAt = &reviewedAt
	m.apps[id] = a
	m.transitioned = append(m.transitioned, status)
	return &models.StatusHistory{ApplicationID: id, Status: status, ChangedBy: &reviewerID, ChangedAt: reviewedAt, Notes: notes}, nil
}

func (m *mockApplicationRepo) ListHistory(ctx context.Context, applicationID string) ([]models.StatusHistory, error) {
	return nil, nil
}

func (m *mockApplicationRepo) Delete(ctx context.Context, id string) error {
	delete(m.apps, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockProgramReader struct {
	programs map[string]*models.Program
}

func (m *mockProgramReader) FindByID(ctx context.Context, id string) (*models.Program, error) {
	if p, ok := m.programs[id]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

type mockAuditLogger struct {
	entries []models.AuditLog
}

func (m *mockAuditLogger) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.entries = append(m.entries, *log)
	return nil
}

func internClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleIntern, Email: id + "@example.com"}
}

func adminClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleAdmin, Email: id + "@example.com"}
}

func newApplicationService(repo *mockApplicationRepo, programs *mockProgramReader, audit *mockAuditLogger, allowReopen bool) *ApplicationService {
	var auditDep auditLogger
	if audit != nil {
		auditDep = audit
	}
	return NewApplicationService(repo, programs, auditDep, validator.New(), zap.NewNop(), ApplicationServiceConfig{AllowReopen: allowReopen})
}

func activeProgram(id string) *models.Program {
	return &models.Program{ID: id, Name: "Software Internship", ProgramType: models.ProgramTypeIndustrialTraining, IsActive: true}
}

func TestApplicationServiceCreate(t *testing.T) {
	repo := &mockApplicationRepo{}
	programs := &mockProgramReader{programs: map[string]*models.Program{"p1": activeProgram("p1")}}
	audit := &mockAuditLogger{}
	svc := newApplicationService(repo, programs, audit, false)

	detail, err := svc.Create(context.Background(), CreateApplicationRequest{
		ProgramID:             "p1",
		CoverLetter:           "cover",
		WhyInterested:         "why",
		SkillsAndExperience:   "skills",
		AvailabilityStartDate: "2026-10-01",
	}, internClaims("u1"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, detail.Status)
	require.NotNil(t, repo.createdNotes)
	assert.Equal(t, "Application submitted", *repo.createdNotes)
	assert.Len(t, audit.entries, 1)
}

func TestApplicationServiceCreateInvalidDate(t *testing.T) {
	repo := &mockApplicationRepo{}
	programs := &mockProgramReader{programs: map[string]*models.Program{"p1": activeProgram("p1")}}
	svc := newApplicationService(repo, programs, nil, false)

	_, err := svc.Create(context.Background(), CreateApplicationRequest{
		ProgramID:             "p1",
		CoverLetter:           "cover",
		WhyInterested:         "why",
		SkillsAndExperience:   "skills",
		AvailabilityStartDate: "01/10/2026",
	}, internClaims("u1"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, "availability_start_date", appErr.Field)
}

func TestApplicationServiceCreateInactiveProgram(t *testing.T) {
	program := activeProgram("p1")
	program.IsActive = false
	repo := &mockApplicationRepo{}
	programs := &mockProgramReader{programs: map[string]*models.Program{"p1": program}}
	svc := newApplicationService(repo, programs, nil, false)

	_, err := svc.Create(context.Background(), CreateApplicationRequest{
		ProgramID:             "p1",
		CoverLetter:           "cover",
		WhyInterested:         "why",
		SkillsAndExperience:   "skills",
		AvailabilityStartDate: "2026-10-01",
	}, internClaims("u1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnprocessable.Code, appErrors.FromError(err).Code)
}

func TestApplicationServiceCreateDuplicate(t *testing.T) {
	repo := &mockApplicationRepo{existing: map[string]bool{appKey("u1", "p1"): true}}
	programs := &mockProgramReader{programs: map[string]*models.Program{"p1": activeProgram("p1")}}
	svc := newApplicationService(repo, programs, nil, false)

	_, err := svc.Create(context.Background(), CreateApplicationRequest{
		ProgramID:             "p1",
		CoverLetter:           "cover",
		WhyInterested:         "why",
		SkillsAndExperience:   "skills",
		AvailabilityStartDate: "2026-10-01",
	}, internClaims("u1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestApplicationServiceGetForbiddenForOtherIntern(t *testing.T) {
	repo := &mockApplicationRepo{apps: map[string]models.Application{"a1": {ID: "a1", ApplicantID: "u1", Status: models.StatusPending}}}
	svc := newApplicationService(repo, &mockProgramReader{}, nil, false)

	_, err := svc.Get(context.Background(), "a1", internClaims("u2"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	detail, err := svc.Get(context.Background(), "a1", adminClaims("admin"))
	require.NoError(t, err)
	assert.Equal(t, "a1", detail.ID)
}

func TestApplicationServiceListScopesInterns(t *testing.T) {
	repo := &mockApplicationRepo{apps: map[string]models.Application{
		"a1": {ID: "a1", ApplicantID: "u1", Status: models.StatusPending},
		"a2": {ID: "a2", ApplicantID: "u2", Status: models.StatusPending},
	}}
	svc := newApplicationService(repo, &mockProgramReader{}, nil, false)

	apps, _, err := svc.List(context.Background(), models.ApplicationFilter{ApplicantID: "u2"}, internClaims("u1"))
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "u1", apps[0].ApplicantID)
}

func TestApplicationServiceUpdateOnlyWhilePending(t *testing.T) {
	repo := &mockApplicationRepo{apps: map[string]models.Application{
		"a1": {ID: "a1", ApplicantID: "u1", Status: models.StatusUnderReview},
	}}
	svc := newApplicationService(repo, &mockProgramReader{}, nil, false)

	letter := "updated"
	_, err := svc.Update(context.Background(), "a1", UpdateApplicationRequest{CoverLetter: &letter}, internClaims("u1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestApplicationServiceTransitionRequiresReviewer(t *testing.T) {
	repo := &mockApplicationRepo{apps: map[string]models.Application{"a1": {ID: "a1", ApplicantID: "u1", Status: models.StatusPending}}}
	svc := newApplicationService(repo, &mockProgramReader{}, nil, false)

	_, err := svc.Transition(context.Background(), "a1", ReviewRequest{Status: models.StatusApproved}, internClaims("u1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.transitioned)
}

func TestApplicationServiceTransitionApprove(t *testing.T) {
	repo := &mockApplicationRepo{apps: map[string]models.Application{"a1": {ID: "a1", ApplicantID: "u1", Status: models.StatusPending}}}
	audit := &mockAuditLogger{}
	svc := newApplicationService(repo, &mockProgramReader{}, audit, false)

	detail, err := svc.Approve(context.Background(), "a1", "welcome aboard", adminClaims("admin"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, detail.Status)
	assert.Equal(t, []models.ApplicationStatus{models.StatusApproved}, repo.transitioned)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionStatusChange, audit.entries[0].Action)
}

func TestApplicationServiceTransitionSameStatusOnlyUpdatesNotes(t *testing.T) {
	repo := &mockApplicationRepo{apps: map[string]models.Application{"a1": {ID: "a1", ApplicantID: "u1", Status: models.StatusUnderReview}}}
	audit := &mockAuditLogger{}
	svc := newApplicationService(repo, &mockProgramReader{}, audit, false)

	detail, err := svc.Transition(context.Background(), "a1", ReviewRequest{Status: models.StatusUnderReview, Notes: "still checking"}, adminClaims("admin"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, detail.Status)
	assert.Empty(t, repo.transitioned)
	assert.Equal(t, 1, repo.notesUpdates)
	require.NotNil(t, repo.notesUpdated)
	assert.Equal(t, "still checking", *repo.notesUpdated)
	assert.Empty(t, audit.entries)
}

func TestApplicationServiceTransitionInvalidGraph(t *testing.T) {
	repo := &mockApplicationRepo{apps: map[string]models.Application{"a1": {ID: "a1", ApplicantID: "u1", Status: models.StatusApproved}}}
	svc := newApplicationService(repo, &mockProgramReader{}, nil, false)

	_, err := svc.Transition(context.Background(), "a1", ReviewRequest{Status: models.StatusUnderReview}, adminClaims("admin"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.transitioned)
}

func TestApplicationServiceTransitionReopenWhenEnabled(t *testing.T) {
	repo := &mockApplicationRepo{apps: map[string]models.Application{"a1": {ID: "a1", ApplicantID: "u1", Status: models.StatusRejected}}}
	svc := newApplicationService(repo, &mockProgramReader{}, nil, true)

	detail, err := svc.Transition(context.Background(), "a1", ReviewRequest{Status: models.StatusUnderReview}, adminClaims("admin"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, detail.Status)
}

func TestApplicationServiceDeleteAdminOnly(t *testing.T) {
	repo := &mockApplicationRepo{apps: map[string]models.Application{"a1": {ID: "a1", ApplicantID: "u1", Status: models.StatusPending}}}
	svc := newApplicationService(repo, &mockProgramReader{}, nil, false)

	err := svc.Delete(context.Background(), "a1", internClaims("u1"))
	require.Error(t, err)

	err = svc.Delete(context.Background(), "a1", adminClaims("admin"))
	require.NoError(t, err)
	assert.Contains(t, repo.deleted, "a1")
}
