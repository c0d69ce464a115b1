package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/internhub/internhub-api/internal/models"
	appErrors "github.com/internhub/internhub-api/pkg/errors"
)

type programRepository interface {
	FindByID(ctx context.Context, id string) (*models.Program, error)
	List(ctx context.Context, filter models.ProgramFilter) ([]models.Program, int, error)
	Create(ctx context.Context, program *models.Program) error
	Update(ctx context.Context, program *models.Program) error
	Delete(ctx context.Context, id string) error
}

const programCacheKeyPrefix = "catalog:programs:"

// CreateProgramRequest payload for creating a program.
type CreateProgramRequest struct {
	Name                string             `json:"name" validate:"required"`
	ProgramType         models.ProgramType `json:"program_type" validate:"required,oneof=IT NYSC"`
	Description         string             `json:"description"`
	DurationMonths      int                `json:"duration_months" validate:"required,min=1"`
	StartDate           string             `json:"start_date" validate:"required"`
	EndDate             string             `json:"end_date" validate:"required"`
	ApplicationDeadline string             `json:"application_deadline" validate:"required"`
	IsActive            *bool              `json:"is_active"`
}

// UpdateProgramRequest payload for partial program updates.
type UpdateProgramRequest struct {
	Name                *string `json:"name"`
	Description         *string `json:"description"`
	DurationMonths      *int    `json:"duration_months"`
	StartDate           *string `json:"start_date"`
	EndDate             *string `json:"end_date"`
	ApplicationDeadline *string `json:"application_deadline"`
	IsActive            *bool   `json:"is_active"`
}

// ProgramServiceConfig tunes catalog caching behaviour.
type ProgramServiceConfig struct {
	CacheTTL time.Duration
}

// ProgramService manages the program catalog.
type ProgramService struct {
	repo      programRepository
	cache     catalogCache
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
	config    ProgramServiceConfig
}

// NewProgramService constructs a ProgramService.
func NewProgramService(repo programRepository, cache catalogCache, audit auditLogger, validate *validator.Validate, logger *zap.Logger, config ProgramServiceConfig) *ProgramService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 10 * time.Minute
	}
	return &ProgramService{repo: repo, cache: cache, audit: audit, validator: validate, logger: logger, config: config}
}

type cachedProgramPage struct {
	Programs []models.Program `json:"programs"`
	Total    int              `json:"total"`
}

// List returns programs matching the filter. Unsearched pages are served
// from the cache when available; the bool reports whether the page was a
// cache hit.
func (s *ProgramService) List(ctx context.Context, filter models.ProgramFilter) ([]models.Program, *models.Pagination, bool, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	cacheKey := ""
	if s.cache != nil && filter.Search == "" {
		typePart := "all"
		if filter.Type != nil {
			typePart = string(*filter.Type)
		}
		cacheKey = fmt.Sprintf("%s%s:%t:%d:%d:%s:%s", programCacheKeyPrefix, typePart, filter.ActiveOnly, page, pageSize, filter.SortBy, filter.SortOrder)
		var cached cachedProgramPage
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return cached.Programs, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: cached.Total}, true, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("program cache read failed", zap.Error(err))
		}
	}

	programs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list programs")
	}

	if cacheKey != "" {
		if err := s.cache.Set(ctx, cacheKey, cachedProgramPage{Programs: programs, Total: total}, s.config.CacheTTL); err != nil {
			s.logger.Warn("program cache write failed", zap.Error(err))
		}
	}

	return programs, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, false, nil
}

// Get returns a program by ID.
func (s *ProgramService) Get(ctx context.Context, id string) (*models.Program, error) {
	program, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}
	return program, nil
}

// Create adds a new program to the catalog. Admin only.
func (s *ProgramService) Create(ctx context.Context, actor *models.JWTClaims, req CreateProgramRequest) (*models.Program, error) {
	if !actor.IsReviewer() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators may manage programs")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid program payload")
	}

	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		return nil, appErrors.WithField(appErrors.Clone(appErrors.ErrValidation, "start_date must be formatted as YYYY-MM-DD"), "start_date", "start_date must be formatted as YYYY-MM-DD")
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		return nil, appErrors.WithField(appErrors.Clone(appErrors.ErrValidation, "end_date must be formatted as YYYY-MM-DD"), "end_date", "end_date must be formatted as YYYY-MM-DD")
	}
	deadline, err := time.Parse(dateLayout, req.ApplicationDeadline)
	if err != nil {
		return nil, appErrors.WithField(appErrors.Clone(appErrors.ErrValidation, "application_deadline must be formatted as YYYY-MM-DD"), "application_deadline", "application_deadline must be formatted as YYYY-MM-DD")
	}
	if !end.After(start) {
		return nil, appErrors.WithField(appErrors.Clone(appErrors.ErrValidation, "end_date must be after start_date"), "end_date", "end_date must be after start_date")
	}

	program := &models.Program{
		ID:                  uuid.NewString(),
		Name:                req.Name,
		ProgramType:         req.ProgramType,
		Description:         req.Description,
		DurationMonths:      req.DurationMonths,
		StartDate:           start,
		EndDate:             end,
		ApplicationDeadline: deadline,
		IsActive:            true,
	}
	if req.IsActive != nil {
		program.IsActive = *req.IsActive
	}

	if err := s.repo.Create(ctx, program); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create program")
	}

	s.invalidateCache(ctx)
	s.emitAudit(ctx, actor, "PROGRAM_CREATE", program.ID, map[string]interface{}{"name": program.Name, "program_type": program.ProgramType})

	return program, nil
}

// Update modifies a program. Admin only.
func (s *ProgramService) Update(ctx context.Context, actor *models.JWTClaims, id string, req UpdateProgramRequest) (*models.Program, error) {
	if !actor.IsReviewer() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators may manage programs")
	}

	program, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}

	if req.Name != nil {
		program.Name = *req.Name
	}
	if req.Description != nil {
		program.Description = *req.Description
	}
	if req.DurationMonths != nil {
		program.DurationMonths = *req.DurationMonths
	}
	if req.StartDate != nil {
		start, err := time.Parse(dateLayout, *req.StartDate)
		if err != nil {
			return nil, appErrors.WithField(appErrors.Clone(appErrors.ErrValidation, "start_date must be formatted as YYYY-MM-DD"), "start_date", "start_date must be formatted as YYYY-MM-DD")
		}
		program.StartDate = start
	}
	if req.EndDate != nil {
		end, err := time.Parse(dateLayout, *req.EndDate)
		if err != nil {
			return nil, appErrors.WithField(appErrors.Clone(appErrors.ErrValidation, "end_date must be formatted as YYYY-MM-DD"), "end_date", "end_date must be formatted as YYYY-MM-DD")
		}
		program.EndDate = end
	}
	if req.ApplicationDeadline != nil {
		deadline, err := time.Parse(dateLayout, *req.ApplicationDeadline)
		if err != nil {
			return nil, appErrors.WithField(appErrors.Clone(appErrors.ErrValidation, "application_deadline must be formatted as YYYY-MM-DD"), "application_deadline", "application_deadline must be formatted as YYYY-MM-DD")
		}
		program.ApplicationDeadline = deadline
	}
	if req.IsActive != nil {
		program.IsActive = *req.IsActive
	}
	if !program.EndDate.After(program.StartDate) {
		return nil, appErrors.WithField(appErrors.Clone(appErrors.ErrValidation, "end_date must be after start_date"), "end_date", "end_date must be after start_date")
	}

	if err := s.repo.Update(ctx, program); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update program")
	}

	s.invalidateCache(ctx)
	s.emitAudit(ctx, actor, "PROGRAM_UPDATE", program.ID, map[string]interface{}{"name": program.Name, "is_active": program.IsActive})

	return program, nil
}

// Delete removes a program and, by cascade, every application filed
// against it. Admin only.
func (s *ProgramService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	if !actor.IsReviewer() {
		return appErrors.Clone(appErrors.ErrForbidden, "only administrators may manage programs")
	}

	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete program")
	}

	s.invalidateCache(ctx)
	s.emitAudit(ctx, actor, "PROGRAM_DELETE", id, nil)

	return nil
}

func (s *ProgramService) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, programCacheKeyPrefix+"*"); err != nil {
		s.logger.Warn("failed to invalidate program cache", zap.Error(err))
	}
}

func (s *ProgramService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, resourceID string, payload map[string]interface{}) {
	if s.audit == nil {
		return
	}
	var body []byte
	if payload != nil {
		body, _ = json.Marshal(payload)
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "programs",
		ResourceID: &resourceID,
		NewValues:  body,
	}); err != nil {
		s.logger.Warn("failed to record program audit log", zap.Error(err))
	}
}
