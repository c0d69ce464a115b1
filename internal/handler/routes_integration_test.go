package handler

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/internhub/internhub-api/internal/middleware"
	"github.com/internhub/internhub-api/internal/models"
	"github.com/internhub/internhub-api/internal/service"
)

const testInternID = "intern-1"

func TestApplicationRoutesIntegration(t *testing.T) {
	router, repos := buildTestRouter(t)

	payload := `{"program_id":"prog-1","cover_letter":"dear team","why_interested":"growth","skills_and_experience":"go, sql","availability_start_date":"2026-10-01"}`

	t.Run("programs list is public", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/api/v1/programs", nil)
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"IT Internship 2026"`)
	})

	t.Run("document types are public", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/api/v1/documents/types", nil)
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"Resume"`)
	})

	t.Run("submit requires auth", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/api/v1/applications", bytes.NewBufferString(payload))
		req.Header.Set("Content-Type", "application/json")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("intern submits application", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/api/v1/applications", bytes.NewBufferString(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleIntern))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusCreated, resp.Code)
		require.Contains(t, resp.Body.String(), `"status":"pending"`)
	})

	t.Run("duplicate submission conflicts", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/api/v1/applications", bytes.NewBufferString(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleIntern))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusConflict, resp.Code)
	})

	t.Run("intern cannot review", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPatch, "/api/v1/applications/app-1/review", bytes.NewBufferString(`{"status":"approved"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleIntern))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("admin approves application", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/api/v1/applications/app-1/approve", bytes.NewBufferString(`{"notes":"strong profile"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"status":"approved"`)
	})

	t.Run("invalid transition rejected", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPatch, "/api/v1/applications/app-1/review", bytes.NewBufferString(`{"status":"under_review"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusConflict, resp.Code)
	})

	t.Run("export register is admin only", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/api/v1/applications/export?format=csv", nil)
		req.Header.Set("X-Test-Role", string(models.RoleIntern))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusForbidden, resp.Code)

		req, _ = http.NewRequest(http.MethodGet, "/api/v1/applications/export?format=csv", nil)
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		resp = performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Equal(t, "text/csv", resp.Header().Get("Content-Type"))
		require.Contains(t, resp.Body.String(), "Application ID")
	})

	require.Len(t, repos.applications.apps, 1)
}

func TestDocumentUploadRoutesIntegration(t *testing.T) {
	router, repos := buildTestRouter(t)
	repos.applications.seed(&models.ApplicationDetail{
		Application: models.Application{
			ID:          "app-9",
			ApplicantID: testInternID,
			ProgramID:   "prog-1",
			Status:      models.StatusPending,
			SubmittedAt: time.Now().UTC(),
		},
		ApplicantName:  "Test Intern",
		ApplicantEmail: "intern@example.com",
		ProgramName:    "IT Internship 2026",
	})

	upload := func(role string) *httptest.ResponseRecorder {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, err := writer.CreateFormFile("file", "resume.pdf")
		require.NoError(t, err)
		_, err = io.WriteString(part, "pdf-bytes")
		require.NoError(t, err)
		require.NoError(t, writer.WriteField("document_type_id", "dt-1"))
		require.NoError(t, writer.Close())

		req, _ := http.NewRequest(http.MethodPost, "/api/v1/applications/app-9/documents", body)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		req.Header.Set("X-Test-Role", role)
		return performRequest(router, req)
	}

	t.Run("nested upload succeeds", func(t *testing.T) {
		resp := upload(string(models.RoleIntern))
		require.Equal(t, http.StatusCreated, resp.Code)
		require.Contains(t, resp.Body.String(), `"file_name":"resume.pdf"`)
	})

	t.Run("second document is rejected", func(t *testing.T) {
		resp := upload(string(models.RoleIntern))
		require.Equal(t, http.StatusBadRequest, resp.Code)
		require.Contains(t, resp.Body.String(), "DOCUMENT_EXISTS")
	})

	t.Run("flat upload requires application id", func(t *testing.T) {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, _ := writer.CreateFormFile("file", "resume.pdf")
		_, _ = io.WriteString(part, "pdf-bytes")
		require.NoError(t, writer.WriteField("document_type_id", "dt-1"))
		require.NoError(t, writer.Close())

		req, _ := http.NewRequest(http.MethodPost, "/api/v1/documents", body)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		req.Header.Set("X-Test-Role", string(models.RoleIntern))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusBadRequest, resp.Code)
		require.Contains(t, resp.Body.String(), "application_id")
	})
}

type testRepos struct {
	applications *stubApplicationRepo
	programs     *stubProgramRepo
	documents    *stubDocumentStore
}

func buildTestRouter(t *testing.T) (*gin.Engine, *testRepos) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repos := &testRepos{
		applications: newStubApplicationRepo(),
		programs:     newStubProgramRepo(),
		documents:    newStubDocumentStore(),
	}
	audit := &stubAuditLogger{}

	applicationSvc := service.NewApplicationService(repos.applications, repos.programs, audit, nil, zap.NewNop(), service.ApplicationServiceConfig{})
	programSvc := service.NewProgramService(repos.programs, nil, audit, nil, zap.NewNop(), service.ProgramServiceConfig{})
	documentSvc := service.NewDocumentService(repos.documents, repos.applications, &stubFileStorage{}, nil, nil, audit, zap.NewNop(), service.DocumentServiceConfig{})
	exportSvc := service.NewExportService(repos.applications, nil, nil, zap.NewNop())

	applicationHandler := NewApplicationHandler(applicationSvc, exportSvc)
	programHandler := NewProgramHandler(programSvc)
	documentHandler := NewDocumentHandler(documentSvc)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if role := c.GetHeader("X-Test-Role"); role != "" {
			c.Set(middleware.ContextUserKey, &models.JWTClaims{
				UserID: testInternID,
				Role:   models.UserRole(role),
			})
		}
		c.Next()
	})

	api := router.Group("/api/v1")
	api.GET("/programs", programHandler.List)
	api.GET("/documents/types", documentHandler.ListTypes)

	authed := api.Group("", requireClaims())
	authed.POST("/applications", applicationHandler.Create)
	authed.GET("/applications", applicationHandler.List)
	authed.POST("/applications/:id/documents", documentHandler.Upload)
	authed.POST("/documents", documentHandler.Upload)

	review := authed.Group("", middleware.RequireRoles(models.RoleAdmin))
	review.PATCH("/applications/:id/review", applicationHandler.Review)
	review.POST("/applications/:id/approve", applicationHandler.Approve)
	review.GET("/applications/export", applicationHandler.ExportRegister)

	return router, repos
}

func requireClaims() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(middleware.ContextUserKey); !exists {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

func performRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type stubApplicationRepo struct {
	apps   map[string]*models.ApplicationDetail
	byPair map[string]string
	nextID int
}

func newStubApplicationRepo() *stubApplicationRepo {
	return &stubApplicationRepo{apps: map[string]*models.ApplicationDetail{}, byPair: map[string]string{}}
}

func (r *stubApplicationRepo) seed(detail *models.ApplicationDetail) {
	r.apps[detail.ID] = detail
	r.byPair[detail.ApplicantID+"|"+detail.ProgramID] = detail.ID
}

func (r *stubApplicationRepo) CreateWithHistory(ctx context.Context, app *models.Application, history *models.StatusHistory) error {
	r.nextID++
	app.ID = fmt.Sprintf("app-%d", r.nextID)
	detail := &models.ApplicationDetail{
		Application:    *app,
		ApplicantName:  "Test Intern",
		ApplicantEmail: "intern@example.com",
		ProgramName:    "IT Internship 2026",
		StatusHistory:  []models.StatusHistory{*history},
	}
	r.seed(detail)
	return nil
}

func (r *stubApplicationRepo) FindByID(ctx context.Context, id string) (*models.Application, error) {
	detail, ok := r.apps[id]
	if !ok {
		return nil, sqlErrNoRows()
	}
	app := detail.Application
	return &app, nil
}

func (r *stubApplicationRepo) FindDetailByID(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	detail, ok := r.apps[id]
	if !ok {
		return nil, sqlErrNoRows()
	}
	return detail, nil
}

func (r *stubApplicationRepo) ExistsByApplicantAndProgram(ctx context.Context, applicantID, programID string) (bool, error) {
	_, ok := r.byPair[applicantID+"|"+programID]
	return ok, nil
}

func (r *stubApplicationRepo) List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error) {
	out := make([]models.ApplicationDetail, 0, len(r.apps))
	for _, detail := range r.apps {
		if filter.ApplicantID != "" && detail.ApplicantID != filter.ApplicantID {
			continue
		}
		out = append(out, *detail)
	}
	return out, len(out), nil
}

func (r *stubApplicationRepo) UpdateContent(ctx context.Context, app *models.Application) error {
	detail, ok := r.apps[app.ID]
	if !ok {
		return sqlErrNoRows()
	}
	detail.Application = *app
	return nil
}

func (r *stubApplicationRepo) UpdateAdminNotes(ctx context.Context, id string, notes *string) error {
	detail, ok := r.apps[id]
	if !ok {
		return sqlErrNoRows()
	}
	detail.AdminNotes = notes
	return nil
}

func (r *stubApplicationRepo) TransitionStatus(ctx context.Context, id string, status models.ApplicationStatus, reviewerID string, notes *string, reviewedAt time.Time) (*models.StatusHistory, error) {
	detail, ok := r.apps[id]
	if !ok {
		return nil, sqlErrNoRows()
	}
	detail.Status = status
	detail.ReviewedBy = &reviewerID
	detail.ReviewedAt = &reviewedAt
	history := models.StatusHistory{ApplicationID: id, Status: status, ChangedBy: &reviewerID, ChangedAt: reviewedAt, Notes: notes}
	detail.StatusHistory = append(detail.StatusHistory, history)
	return &history, nil
}

func (r *stubApplicationRepo) ListHistory(ctx context.Context, applicationID string) ([]models.StatusHistory, error) {
	detail, ok := r.apps[applicationID]
	if !ok {
		return nil, nil
	}
	return detail.StatusHistory, nil
}

func (r *stubApplicationRepo) Delete(ctx context.Context, id string) error {
	detail, ok := r.apps[id]
	if !ok {
		return sqlErrNoRows()
	}
	delete(r.byPair, detail.ApplicantID+"|"+detail.ProgramID)
	delete(r.apps, id)
	return nil
}

type stubProgramRepo struct {
	programs map[string]*models.Program
}

func newStubProgramRepo() *stubProgramRepo {
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	return &stubProgramRepo{programs: map[string]*models.Program{
		"prog-1": {
			ID:             "prog-1",
			Name:           "IT Internship 2026",
			ProgramType:    models.ProgramTypeIndustrialTraining,
			DurationMonths: 6,
			StartDate:      start,
			EndDate:        start.AddDate(0, 6, 0),
			IsActive:       true,
		},
	}}
}

func (r *stubProgramRepo) FindByID(ctx context.Context, id string) (*models.Program, error) {
	program, ok := r.programs[id]
	if !ok {
		return nil, sqlErrNoRows()
	}
	return program, nil
}

func (r *stubProgramRepo) List(ctx context.Context, filter models.ProgramFilter) ([]models.Program, int, error) {
	out := make([]models.Program, 0, len(r.programs))
	for _, p := range r.programs {
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (r *stubProgramRepo) Create(ctx context.Context, program *models.Program) error {
	r.programs[program.ID] = program
	return nil
}

func (r *stubProgramRepo) Update(ctx context.Context, program *models.Program) error {
	r.programs[program.ID] = program
	return nil
}

func (r *stubProgramRepo) Delete(ctx context.Context, id string) error {
	delete(r.programs, id)
	return nil
}

type stubDocumentStore struct {
	types map[string]*models.DocumentType
	docs  map[string]*models.Document
	byApp map[string]bool
}

func newStubDocumentStore() *stubDocumentStore {
	return &stubDocumentStore{
		types: map[string]*models.DocumentType{
			"dt-1": {ID: "dt-1", Name: "Resume", MaxFileSize: 5 << 20, AllowedExtensions: "pdf,doc,docx"},
		},
		docs:  map[string]*models.Document{},
		byApp: map[string]bool{},
	}
}

func (r *stubDocumentStore) ListTypes(ctx context.Context) ([]models.DocumentType, error) {
	out := make([]models.DocumentType, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, *t)
	}
	return out, nil
}

func (r *stubDocumentStore) FindTypeByID(ctx context.Context, id string) (*models.DocumentType, error) {
	t, ok := r.types[id]
	if !ok {
		return nil, sqlErrNoRows()
	}
	return t, nil
}

func (r *stubDocumentStore) ExistsForApplication(ctx context.Context, applicationID string) (bool, error) {
	return r.byApp[applicationID], nil
}

func (r *stubDocumentStore) Create(ctx context.Context, doc *models.Document) error {
	doc.ID = fmt.Sprintf("doc-%d", len(r.docs)+1)
	doc.UploadedAt = time.Now().UTC()
	r.docs[doc.ID] = doc
	r.byApp[doc.ApplicationID] = true
	return nil
}

func (r *stubDocumentStore) FindByID(ctx context.Context, id string) (*models.Document, error) {
	doc, ok := r.docs[id]
	if !ok {
		return nil, sqlErrNoRows()
	}
	return doc, nil
}

func (r *stubDocumentStore) List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, int, error) {
	out := make([]models.Document, 0, len(r.docs))
	for _, d := range r.docs {
		out = append(out, *d)
	}
	return out, len(out), nil
}

func (r *stubDocumentStore) SetVerification(ctx context.Context, id string, verified bool, notes *string) error {
	doc, ok := r.docs[id]
	if !ok {
		return sqlErrNoRows()
	}
	doc.IsVerified = verified
	doc.VerificationNotes = notes
	return nil
}

func (r *stubDocumentStore) Delete(ctx context.Context, id string) error {
	doc, ok := r.docs[id]
	if !ok {
		return sqlErrNoRows()
	}
	delete(r.byApp, doc.ApplicationID)
	delete(r.docs, id)
	return nil
}

type stubFileStorage struct{}

func (stubFileStorage) SaveStream(filename string, reader io.Reader) (string, error) {
	_, err := io.Copy(io.Discard, reader)
	return filename, err
}

func (stubFileStorage) Open(filename string) (*os.File, error) {
	return nil, os.ErrNotExist
}

func (stubFileStorage) Delete(filename string) error { return nil }

type stubAuditLogger struct{}

func (stubAuditLogger) CreateAuditLog(ctx context.Context, log *models.AuditLog) error { return nil }

func sqlErrNoRows() error { return sql.ErrNoRows }
