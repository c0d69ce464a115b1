package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/internhub/internhub-api/internal/models"
	appErrors "github.com/internhub/internhub-api/pkg/errors"
)

type mockProgramRepo struct {
	programs map[string]*models.Program
	lists    int
	deleted  []string
}

func (m *mockProgramRepo) FindByID(ctx context.Context, id string) (*models.Program, error) {
	program, ok := m.programs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return program, nil
}

func (m *mockProgramRepo) List(ctx context.Context, filter models.ProgramFilter) ([]models.Program, int, error) {
	m.lists++
	out := make([]models.Program, 0, len(m.programs))
	for _, p := range m.programs {
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (m *mockProgramRepo) Create(ctx context.Context, program *models.Program) error {
	m.programs[program.ID] = program
	return nil
}

func (m *mockProgramRepo) Update(ctx context.Context, program *models.Program) error {
	m.programs[program.ID] = program
	return nil
}

func (m *mockProgramRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.programs, id)
	return nil
}

// memoryCatalogCache round-trips values through JSON the way the Redis
// backed cache does.
type memoryCatalogCache struct {
	values   map[string][]byte
	patterns []string
}

func newMemoryCatalogCache() *memoryCatalogCache {
	return &memoryCatalogCache{values: map[string][]byte{}}
}

func (m *memoryCatalogCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCatalogCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = raw
	return nil
}

func (m *memoryCatalogCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.patterns = append(m.patterns, pattern)
	m.values = map[string][]byte{}
	return nil
}

func newProgramFixture() (*ProgramService, *mockProgramRepo, *memoryCatalogCache) {
	repo := &mockProgramRepo{programs: map[string]*models.Program{
		"p1": {
			ID:             "p1",
			Name:           "IT Internship 2026",
			ProgramType:    models.ProgramTypeIndustrialTraining,
			DurationMonths: 6,
			StartDate:      time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
			EndDate:        time.Date(2027, 4, 1, 0, 0, 0, 0, time.UTC),
			IsActive:       true,
		},
	}}
	cache := newMemoryCatalogCache()
	svc := NewProgramService(repo, cache, &mockAuditLogger{}, nil, zap.NewNop(), ProgramServiceConfig{})
	return svc, repo, cache
}

func TestProgramServiceListCachesUnsearchedPages(t *testing.T) {
	svc, repo, _ := newProgramFixture()

	programs, pagination, hit, err := svc.List(context.Background(), models.ProgramFilter{})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, programs, 1)
	assert.Equal(t, 1, pagination.TotalCount)
	assert.Equal(t, 1, repo.lists)

	programs, _, hit, err = svc.List(context.Background(), models.ProgramFilter{})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Len(t, programs, 1)
	assert.Equal(t, 1, repo.lists, "second page should come from cache")
}

func TestProgramServiceListSearchBypassesCache(t *testing.T) {
	svc, repo, cache := newProgramFixture()

	_, _, hit, err := svc.List(context.Background(), models.ProgramFilter{Search: "intern"})
	require.NoError(t, err)
	assert.False(t, hit)

	_, _, hit, err = svc.List(context.Background(), models.ProgramFilter{Search: "intern"})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, repo.lists)
	assert.Empty(t, cache.values)
}

func TestProgramServiceCreateRequiresAdmin(t *testing.T) {
	svc, repo, _ := newProgramFixture()

	req := CreateProgramRequest{
		Name:                "NYSC Batch A",
		ProgramType:         models.ProgramTypeNationalService,
		DurationMonths:      12,
		StartDate:           "2026-11-01",
		EndDate:             "2027-11-01",
		ApplicationDeadline: "2026-10-15",
	}

	_, err := svc.Create(context.Background(), internClaims("u1"), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	program, err := svc.Create(context.Background(), adminClaims("admin"), req)
	require.NoError(t, err)
	assert.True(t, program.IsActive)
	assert.Contains(t, repo.programs, program.ID)
}

func TestProgramServiceCreateValidatesDates(t *testing.T) {
	svc, _, _ := newProgramFixture()

	req := CreateProgramRequest{
		Name:                "Backwards",
		ProgramType:         models.ProgramTypeIndustrialTraining,
		DurationMonths:      6,
		StartDate:           "2027-01-01",
		EndDate:             "2026-06-01",
		ApplicationDeadline: "2026-12-01",
	}
	_, err := svc.Create(context.Background(), adminClaims("admin"), req)
	require.Error(t, err)
	assert.Equal(t, "end_date", appErrors.FromError(err).Field)
}

func TestProgramServiceUpdateInvalidatesCache(t *testing.T) {
	svc, _, cache := newProgramFixture()

	_, _, _, err := svc.List(context.Background(), models.ProgramFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, cache.values)

	inactive := false
	_, err = svc.Update(context.Background(), adminClaims("admin"), "p1", UpdateProgramRequest{IsActive: &inactive})
	require.NoError(t, err)
	assert.Empty(t, cache.values)
	assert.Contains(t, cache.patterns, programCacheKeyPrefix+"*")
}

func TestProgramServiceDelete(t *testing.T) {
	svc, repo, _ := newProgramFixture()

	err := svc.Delete(context.Background(), internClaims("u1"), "p1")
	require.Error(t, err)

	require.NoError(t, svc.Delete(context.Background(), adminClaims("admin"), "p1"))
	assert.Equal(t, []string{"p1"}, repo.deleted)

	_, err = svc.Get(context.Background(), "p1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
