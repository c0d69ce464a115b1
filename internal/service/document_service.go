package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/internhub/internhub-api/internal/dto"
	"github.com/internhub/internhub-api/internal/models"
	"github.com/internhub/internhub-api/internal/repository"
	appErrors "github.com/internhub/internhub-api/pkg/errors"
)

type documentStore interface {
	ListTypes(ctx context.Context) ([]models.DocumentType, error)
	FindTypeByID(ctx context.Context, id string) (*models.DocumentType, error)
	ExistsForApplication(ctx context.Context, applicationID string) (bool, error)
	Create(ctx context.Context, doc *models.Document) error
	FindByID(ctx context.Context, id string) (*models.Document, error)
	List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, int, error)
	SetVerification(ctx context.Context, id string, verified bool, notes *string) error
	Delete(ctx context.Context, id string) error
}

type applicationReader interface {
	FindByID(ctx context.Context, id string) (*models.Application, error)
}

type documentFileStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

type documentURLSigner interface {
	Generate(documentID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (documentID, relPath string, expiresAt time.Time, err error)
}

type catalogCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// DocumentUpload carries upload metadata and the stream reader.
type DocumentUpload struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// DocumentDownload bundles a file reader with response metadata.
type DocumentDownload struct {
	File      *os.File
	Filename  string
	SizeBytes int64
	ExpiresAt time.Time
}

// DocumentServiceConfig holds caching parameters.
type DocumentServiceConfig struct {
	CatalogCacheTTL time.Duration
}

const documentTypesCacheKey = "catalog:document_types"

// DocumentService manages document uploads against applications: policy
// validation, storage IO, verification and signed downloads.
type DocumentService struct {
	repo         documentStore
	applications applicationReader
	storage      documentFileStorage
	signer       documentURLSigner
	cache        catalogCache
	validator    *DocumentValidator
	audit        auditLogger
	metrics      uploadMetrics
	logger       *zap.Logger
	cfg          DocumentServiceConfig
}

type uploadMetrics interface {
	RecordDocumentUploaded(documentType string)
}

// NewDocumentService constructs the service.
func NewDocumentService(repo documentStore, applications applicationReader, storage documentFileStorage, signer documentURLSigner, cache catalogCache, audit auditLogger, logger *zap.Logger, cfg DocumentServiceConfig) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CatalogCacheTTL <= 0 {
		cfg.CatalogCacheTTL = 10 * time.Minute
	}
	return &DocumentService{
		repo:         repo,
		applications: applications,
		storage:      storage,
		signer:       signer,
		cache:        cache,
		validator:    NewDocumentValidator(repo),
		audit:        audit,
		logger:       logger,
		cfg:          cfg,
	}
}

// WithMetrics attaches a metrics recorder for upload counters.
func (s *DocumentService) WithMetrics(m uploadMetrics) *DocumentService {
	s.metrics = m
	return s
}

// ListTypes returns the document-type catalog, served from cache when warm.
func (s *DocumentService) ListTypes(ctx context.Context) ([]models.DocumentType, error) {
	if s.cache != nil {
		var cached []models.DocumentType
		if err := s.cache.Get(ctx, documentTypesCacheKey, &cached); err == nil {
			return cached, nil
		}
	}
	types, err := s.repo.ListTypes(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list document types")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, documentTypesCacheKey, types, s.cfg.CatalogCacheTTL); err != nil {
			s.logger.Warn("failed to cache document types", zap.Error(err))
		}
	}
	return types, nil
}

// Upload validates and persists a document for an application. The existence
// check is a friendly fast path; the unique index on application_id is the
// authoritative guard, so a concurrent duplicate surfaces as the same
// conflict.
func (s *DocumentService) Upload(ctx context.Context, meta dto.UploadDocumentRequest, upload DocumentUpload, actor *models.JWTClaims) (*models.Document, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if upload.Content == nil || upload.Filename == "" {
		return nil, appErrors.WithField(appErrors.ErrValidation, "file", "file is required")
	}

	app, err := s.applications.FindByID(ctx, meta.ApplicationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.WithField(appErrors.ErrNotFound, "application_id", "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if !actor.IsReviewer() && app.ApplicantID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}

	docType, err := s.repo.FindTypeByID(ctx, meta.DocumentTypeID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.WithField(appErrors.ErrNotFound, "document_type_id", "document type not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document type")
	}

	if err := s.validator.Validate(ctx, app.ID, docType, upload.Filename, upload.Size); err != nil {
		return nil, err
	}

	relPath := s.buildFilePath(app.ID, upload.Filename)
	if _, err := s.storage.SaveStream(relPath, upload.Content); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist document file")
	}

	doc := &models.Document{
		ApplicationID:  app.ID,
		DocumentTypeID: docType.ID,
		FilePath:       relPath,
		FileName:       upload.Filename,
		FileSize:       upload.Size,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		_ = s.storage.Delete(relPath)
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrDocumentExists, "a document has already been uploaded for this application, please remove the existing document first")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create document")
	}
	doc.DocumentTypeName = docType.Name

	s.emitAudit(ctx, actor, models.AuditActionDocumentUpload, doc.ID, map[string]interface{}{"application_id": app.ID, "file_name": doc.FileName})
	if s.metrics != nil {
		s.metrics.RecordDocumentUploaded(docType.Name)
	}

	return doc, nil
}

// Get returns a document; interns may only read documents on their own
// applications.
func (s *DocumentService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Document, error) {
	doc, err := s.loadAuthorized(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// List returns documents visible to the actor.
func (s *DocumentService) List(ctx context.Context, filter models.DocumentFilter, actor *models.JWTClaims) ([]models.Document, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if !actor.IsReviewer() {
		filter.ApplicantID = actor.UserID
	}
	docs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return docs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Delete removes the document row and its stored file. The owner may delete
// while the application is unreviewed; admins may always delete.
func (s *DocumentService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	app, err := s.applications.FindByID(ctx, doc.ApplicationID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if !actor.IsReviewer() {
		if app.ApplicantID != actor.UserID {
			return appErrors.ErrForbidden
		}
		if app.Status != models.StatusPending {
			return appErrors.Clone(appErrors.ErrConflict, "documents can no longer be removed from this application")
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete document")
	}
	if err := s.storage.Delete(doc.FilePath); err != nil {
		s.logger.Warn("failed to delete stored file", zap.String("path", doc.FilePath), zap.Error(err))
	}

	s.emitAudit(ctx, actor, models.AuditActionDocumentDelete, id, map[string]interface{}{"application_id": doc.ApplicationID})
	return nil
}

// SetVerification marks a document verified or unverified. Admin only.
func (s *DocumentService) SetVerification(ctx context.Context, id string, verified bool, req dto.VerifyDocumentRequest, actor *models.JWTClaims) (*models.Document, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.IsReviewer() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can verify documents")
	}
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	var notes *string
	if req.VerificationNotes != "" {
		notes = &req.VerificationNotes
	}
	if err := s.repo.SetVerification(ctx, id, verified, notes); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update verification")
	}
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}

	s.emitAudit(ctx, actor, models.AuditActionDocumentVerify, id, map[string]interface{}{"verified": verified})
	return doc, nil
}

// GetDownloadURL returns a signed download path for the document.
func (s *DocumentService) GetDownloadURL(ctx context.Context, id string, actor *models.JWTClaims) (string, error) {
	doc, err := s.loadAuthorized(ctx, id, actor)
	if err != nil {
		return "", err
	}
	if s.signer == nil {
		return "", appErrors.Clone(appErrors.ErrInternal, "document downloads not configured")
	}
	token, _, err := s.signer.Generate(doc.ID, doc.FilePath)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download URL")
	}
	return token, nil
}

// Download validates the signed token and opens the stored file.
func (s *DocumentService) Download(ctx context.Context, id, token string, actor *models.JWTClaims) (*DocumentDownload, error) {
	doc, err := s.loadAuthorized(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "document downloads not configured")
	}
	tokenID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil || tokenID != doc.ID || relPath != doc.FilePath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	file, err := s.storage.Open(doc.FilePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open document file")
	}
	return &DocumentDownload{File: file, Filename: doc.FileName, SizeBytes: doc.FileSize, ExpiresAt: expiresAt}, nil
}

func (s *DocumentService) loadAuthorized(ctx context.Context, id string, actor *models.JWTClaims) (*models.Document, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	if actor.IsReviewer() {
		return doc, nil
	}
	app, err := s.applications.FindByID(ctx, doc.ApplicationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if app.ApplicantID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return doc, nil
}

func (s *DocumentService) buildFilePath(applicationID, filename string) string {
	now := time.Now().UTC()
	safe := sanitizeFilename(filename)
	return filepath.Join(now.Format("2006"), now.Format("01"), applicationID+"_"+safe)
}

func sanitizeFilename(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, filepath.Base(raw))
	if cleaned == "" {
		return "upload"
	}
	return cleaned
}

func (s *DocumentService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, resourceID string, values map[string]interface{}) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(values)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "document",
		ResourceID: &resourceID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

