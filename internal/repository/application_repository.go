package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/internhub/internhub-api/internal/models"
)

// IsUniqueViolation reports whether the error is a Postgres unique constraint
// violation (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// ApplicationRepository provides database access for applications and their
// append-only status history.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository creates a new instance of ApplicationRepository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

const applicationColumns = `id, applicant_id, program_id, status, cover_letter, why_interested, skills_and_experience, availability_start_date, submitted_at, reviewed_at, reviewed_by, admin_notes`

// CreateWithHistory inserts the application and its first history row in one
// transaction so neither can exist without the other.
func (r *ApplicationRepository) CreateWithHistory(ctx context.Context, app *models.Application, history *models.StatusHistory) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if app.SubmittedAt.IsZero() {
		app.SubmittedAt = now
	}
	history.ApplicationID = app.ID
	if history.ID == "" {
		history.ID = uuid.NewString()
	}
	if history.ChangedAt.IsZero() {
		history.ChangedAt = now
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create application tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insertApp = `INSERT INTO applications (id, applicant_id, program_id, status, cover_letter, why_interested, skills_and_experience, availability_start_date, submitted_at) VALUES (:id, :applicant_id, :program_id, :status, :cover_letter, :why_interested, :skills_and_experience, :availability_start_date, :submitted_at)`
	if _, err := tx.NamedExecContext(ctx, insertApp, app); err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("create application: %w", err)
	}

	const insertHistory = `INSERT INTO application_status_history (id, application_id, status, changed_by, changed_at, notes) VALUES (:id, :application_id, :status, :changed_by, :changed_at, :notes)`
	if _, err := tx.NamedExecContext(ctx, insertHistory, history); err != nil {
		return fmt.Errorf("create initial status history: %w", err)
	}

	return tx.Commit()
}

// FindByID returns an application by identifier.
func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*models.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE id = $1 LIMIT 1`, applicationColumns)
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find application by id: %w", err)
	}
	return &app, nil
}

// FindDetailByID returns the application joined with applicant and program
// display fields, its full history and attached documents.
func (r *ApplicationRepository) FindDetailByID(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	const query = `SELECT a.id, a.applicant_id, a.program_id, a.status, a.cover_letter, a.why_interested, a.skills_and_experience, a.availability_start_date, a.submitted_at, a.reviewed_at, a.reviewed_by, a.admin_notes,
		u.first_name || ' ' || u.last_name AS applicant_name, u.email AS applicant_email, p.name AS program_name,
		r.first_name || ' ' || r.last_name AS reviewed_by_name
		FROM applications a
		JOIN users u ON u.id = a.applicant_id
		JOIN programs p ON p.id = a.program_id
		LEFT JOIN users r ON r.id = a.reviewed_by
		WHERE a.id = $1 LIMIT 1`
	var detail models.ApplicationDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find application detail: %w", err)
	}

	history, err := r.ListHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	detail.StatusHistory = history

	const docQuery = `SELECT d.id, d.application_id, d.document_type_id, t.name AS document_type_name, d.file_path, d.file_name, d.file_size, d.uploaded_at, d.is_verified, d.verification_notes
		FROM documents d JOIN document_types t ON t.id = d.document_type_id
		WHERE d.application_id = $1 ORDER BY d.uploaded_at DESC`
	docs := []models.Document{}
	if err := r.db.SelectContext(ctx, &docs, docQuery, id); err != nil {
		return nil, fmt.Errorf("list application documents: %w", err)
	}
	detail.Documents = docs

	return &detail, nil
}

// ExistsByApplicantAndProgram reports whether the applicant already holds an
// application for the program.
func (r *ApplicationRepository) ExistsByApplicantAndProgram(ctx context.Context, applicantID, programID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM applications WHERE applicant_id = $1 AND program_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, applicantID, programID); err != nil {
		return false, fmt.Errorf("check application exists: %w", err)
	}
	return exists, nil
}

// List returns applications matching the filter with total count.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error) {
	baseQuery := `FROM applications a JOIN users u ON u.id = a.applicant_id JOIN programs p ON p.id = a.program_id LEFT JOIN users r ON r.id = a.reviewed_by WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.ApplicantID != "" {
		conditions = append(conditions, fmt.Sprintf("a.applicant_id = $%d", len(args)+1))
		args = append(args, filter.ApplicantID)
	}
	if filter.ProgramID != "" {
		conditions = append(conditions, fmt.Sprintf("a.program_id = $%d", len(args)+1))
		args = append(args, filter.ProgramID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(u.email) LIKE $%d OR LOWER(u.first_name || ' ' || u.last_name) LIKE $%d OR LOWER(p.name) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"submitted_at": "a.submitted_at",
		"reviewed_at":  "a.reviewed_at",
		"status":       "a.status",
	}
	sortColumn, ok := allowedSorts[sortBy]
	if !ok {
		sortColumn = "a.submitted_at"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf(`SELECT a.id, a.applicant_id, a.program_id, a.status, a.cover_letter, a.why_interested, a.skills_and_experience, a.availability_start_date, a.submitted_at, a.reviewed_at, a.reviewed_by, a.admin_notes,
		u.first_name || ' ' || u.last_name AS applicant_name, u.email AS applicant_email, p.name AS program_name,
		r.first_name || ' ' || r.last_name AS reviewed_by_name %s ORDER BY %s %s LIMIT %d OFFSET %d`, baseQuery, sortColumn, sortOrder, pageSize, offset)

	var apps []models.ApplicationDetail
	if err := r.db.SelectContext(ctx, &apps, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}

	return apps, total, nil
}

// UpdateContent updates the applicant-editable free-text fields.
func (r *ApplicationRepository) UpdateContent(ctx context.Context, app *models.Application) error {
	const query = `UPDATE applications SET cover_letter = :cover_letter, why_interested = :why_interested, skills_and_experience = :skills_and_experience, availability_start_date = :availability_start_date WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, app); err != nil {
		return fmt.Errorf("update application content: %w", err)
	}
	return nil
}

// UpdateAdminNotes touches only the admin notes column. Used for same-status
// review submissions, which must not append history.
func (r *ApplicationRepository) UpdateAdminNotes(ctx context.Context, id string, notes *string) error {
	const query = `UPDATE applications SET admin_notes = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, notes); err != nil {
		return fmt.Errorf("update admin notes: %w", err)
	}
	return nil
}

// TransitionStatus performs the read-modify-write of a status change and the
// history append in a single transaction. The row is locked so concurrent
// reviewer actions serialize; the returned status reflects the committed row.
func (r *ApplicationRepository) TransitionStatus(ctx context.Context, id string, status models.ApplicationStatus, reviewerID string, notes *string, reviewedAt time.Time) (*models.StatusHistory, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var current models.ApplicationStatus
	if err := tx.GetContext(ctx, &current, `SELECT status FROM applications WHERE id = $1 FOR UPDATE`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock application: %w", err)
	}

	const update = `UPDATE applications SET status = $2, reviewed_by = $3, reviewed_at = $4, admin_notes = COALESCE($5, admin_notes) WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update, id, status, reviewerID, reviewedAt, notes); err != nil {
		return nil, fmt.Errorf("update application status: %w", err)
	}

	history := &models.StatusHistory{
		ID:            uuid.NewString(),
		ApplicationID: id,
		Status:        status,
		ChangedBy:     &reviewerID,
		ChangedAt:     reviewedAt,
		Notes:         notes,
	}
	const insertHistory = `INSERT INTO application_status_history (id, application_id, status, changed_by, changed_at, notes) VALUES (:id, :application_id, :status, :changed_by, :changed_at, :notes)`
	if _, err := tx.NamedExecContext(ctx, insertHistory, history); err != nil {
		return nil, fmt.Errorf("append status history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return history, nil
}

// ListHistory returns the status history newest first.
func (r *ApplicationRepository) ListHistory(ctx context.Context, applicationID string) ([]models.StatusHistory, error) {
	const query = `SELECT h.id, h.application_id, h.status, h.changed_by, h.changed_at, h.notes,
		u.first_name || ' ' || u.last_name AS changed_by_name
		FROM application_status_history h
		LEFT JOIN users u ON u.id = h.changed_by
		WHERE h.application_id = $1 ORDER BY h.changed_at DESC, h.id DESC`
	history := []models.StatusHistory{}
	if err := r.db.SelectContext(ctx, &history, query, applicationID); err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	return history, nil
}

// Delete removes the application; history and documents cascade.
func (r *ApplicationRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM applications WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	return nil
}
