package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/internhub/internhub-api/internal/models"
)

// DocumentRepository provides database access for document types and
// uploaded documents.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository creates a new instance of DocumentRepository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentTypeColumns = `id, name, description, is_required, max_file_size, allowed_extensions`

// ListTypes returns every document type ordered by name.
func (r *DocumentRepository) ListTypes(ctx context.Context) ([]models.DocumentType, error) {
	query := fmt.Sprintf(`SELECT %s FROM document_types ORDER BY name`, documentTypeColumns)
	types := []models.DocumentType{}
	if err := r.db.SelectContext(ctx, &types, query); err != nil {
		return nil, fmt.Errorf("list document types: %w", err)
	}
	return types, nil
}

// FindTypeByID returns a document type by identifier.
func (r *DocumentRepository) FindTypeByID(ctx context.Context, id string) (*models.DocumentType, error) {
	query := fmt.Sprintf(`SELECT %s FROM document_types WHERE id = $1 LIMIT 1`, documentTypeColumns)
	var t models.DocumentType
	if err := r.db.GetContext(ctx, &t, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find document type: %w", err)
	}
	return &t, nil
}

// ExistsForApplication reports whether any document is attached to the
// application, regardless of its type.
func (r *DocumentRepository) ExistsForApplication(ctx context.Context, applicationID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM documents WHERE application_id = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, applicationID); err != nil {
		return false, fmt.Errorf("check document exists: %w", err)
	}
	return exists, nil
}

// Create inserts the document row. The unique index on application_id is the
// authoritative either/or backstop; a violation surfaces unchanged so the
// caller can map it to the same conflict the existence check reports.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	const query = `INSERT INTO documents (id, application_id, document_type_id, file_path, file_name, file_size, uploaded_at, is_verified, verification_notes) VALUES (:id, :application_id, :document_type_id, :file_path, :file_name, :file_size, :uploaded_at, :is_verified, :verification_notes)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// FindByID returns the document with its type name.
func (r *DocumentRepository) FindByID(ctx context.Context, id string) (*models.Document, error) {
	const query = `SELECT d.id, d.application_id, d.document_type_id, t.name AS document_type_name, d.file_path, d.file_name, d.file_size, d.uploaded_at, d.is_verified, d.verification_notes
		FROM documents d JOIN document_types t ON t.id = d.document_type_id
		WHERE d.id = $1 LIMIT 1`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find document by id: %w", err)
	}
	return &doc, nil
}

// List returns documents matching the filter with total count.
func (r *DocumentRepository) List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, int, error) {
	baseQuery := `FROM documents d JOIN document_types t ON t.id = d.document_type_id JOIN applications a ON a.id = d.application_id WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.ApplicationID != "" {
		conditions = append(conditions, fmt.Sprintf("d.application_id = $%d", len(args)+1))
		args = append(args, filter.ApplicationID)
	}
	if filter.DocumentTypeID != "" {
		conditions = append(conditions, fmt.Sprintf("d.document_type_id = $%d", len(args)+1))
		args = append(args, filter.DocumentTypeID)
	}
	if filter.Verified != nil {
		conditions = append(conditions, fmt.Sprintf("d.is_verified = $%d", len(args)+1))
		args = append(args, *filter.Verified)
	}
	if filter.ApplicantID != "" {
		conditions = append(conditions, fmt.Sprintf("a.applicant_id = $%d", len(args)+1))
		args = append(args, filter.ApplicantID)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
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

	listQuery := fmt.Sprintf(`SELECT d.id, d.application_id, d.document_type_id, t.name AS document_type_name, d.file_path, d.file_name, d.file_size, d.uploaded_at, d.is_verified, d.verification_notes %s ORDER BY d.uploaded_at DESC LIMIT %d OFFSET %d`, baseQuery, pageSize, offset)

	docs := []models.Document{}
	if err := r.db.SelectContext(ctx, &docs, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	return docs, total, nil
}

// SetVerification updates the verification flag and notes.
func (r *DocumentRepository) SetVerification(ctx context.Context, id string, verified bool, notes *string) error {
	const query = `UPDATE documents SET is_verified = $2, verification_notes = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, verified, notes); err != nil {
		return fmt.Errorf("set document verification: %w", err)
	}
	return nil
}

// Delete removes a document row.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}
