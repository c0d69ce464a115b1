package models

import (
	"strings"
	"time"
)

// DocumentType is a named upload policy: maximum byte size and the set of
// allowed file extensions, stored as a comma separated list.
type DocumentType struct {
	ID                string  `db:"id" json:"id"`
	Name              string  `db:"name" json:"name"`
	Description       *string `db:"description" json:"description,omitempty"`
	IsRequired        bool    `db:"is_required" json:"is_required"`
	MaxFileSize       int64   `db:"max_file_size" json:"max_file_size"`
	AllowedExtensions string  `db:"allowed_extensions" json:"allowed_extensions"`
}

// ExtensionList splits the stored CSV into individual extensions.
func (t *DocumentType) ExtensionList() []string {
	parts := strings.Split(t.AllowedExtensions, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(p)))
	}
	return out
}

// AllowsExtension reports whether ext (lowercase, without dot) is permitted.
func (t *DocumentType) AllowsExtension(ext string) bool {
	for _, allowed := range t.ExtensionList() {
		if allowed == ext {
			return true
		}
	}
	return false
}

// Document is a single uploaded artifact tied to exactly one application and
// one document type. At most one document may exist per application.
type Document struct {
	ID                string    `db:"id" json:"id"`
	ApplicationID     string    `db:"application_id" json:"application_id"`
	DocumentTypeID    string    `db:"document_type_id" json:"document_type_id"`
	DocumentTypeName  string    `db:"document_type_name" json:"document_type_name,omitempty"`
	FilePath          string    `db:"file_path" json:"-"`
	FileName          string    `db:"file_name" json:"file_name"`
	FileSize          int64     `db:"file_size" json:"file_size"`
	UploadedAt        time.Time `db:"uploaded_at" json:"uploaded_at"`
	IsVerified        bool      `db:"is_verified" json:"is_verified"`
	VerificationNotes *string   `db:"verification_notes" json:"verification_notes,omitempty"`
}

// FileExtension returns the lowercase substring after the last dot of the
// original filename, or the empty string when no dot is present.
func (d *Document) FileExtension() string {
	return FileExtension(d.FileName)
}

// FileExtension extracts the extension the way uploads are validated.
func FileExtension(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(name[idx+1:])
}

// DocumentFilter captures listing criteria for documents.
type DocumentFilter struct {
	ApplicationID  string
	DocumentTypeID string
	Verified       *bool
	ApplicantID    string
	Page           int
	PageSize       int
}
