package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/internhub/internhub-api/internal/models"
	appErrors "github.com/internhub/internhub-api/pkg/errors"
)

type documentExistenceChecker interface {
	ExistsForApplication(ctx context.Context, applicationID string) (bool, error)
}

// DocumentValidator checks a candidate upload against a document-type policy
// and the one-document-per-application constraint. Checks run in order and
// stop at the first failure: size, extension, existing document.
type DocumentValidator struct {
	documents documentExistenceChecker
}

// NewDocumentValidator constructs a DocumentValidator.
func NewDocumentValidator(documents documentExistenceChecker) *DocumentValidator {
	return &DocumentValidator{documents: documents}
}

// CheckSize rejects files larger than the policy maximum. Zero-byte files
// pass; there is no minimum size rule.
func (v *DocumentValidator) CheckSize(docType *models.DocumentType, size int64) error {
	if size > docType.MaxFileSize {
		return appErrors.WithField(appErrors.ErrValidation, "file",
			fmt.Sprintf("file size exceeds maximum allowed size of %d bytes", docType.MaxFileSize))
	}
	return nil
}

// CheckExtension rejects filenames whose extension (the lowercase substring
// after the last dot, empty when no dot is present) is not in the policy's
// allowed set.
func (v *DocumentValidator) CheckExtension(docType *models.DocumentType, filename string) error {
	ext := models.FileExtension(filename)
	if !docType.AllowsExtension(ext) {
		return appErrors.WithField(appErrors.ErrValidation, "file",
			fmt.Sprintf("file extension .%s is not allowed, allowed extensions: %s", ext, strings.Join(docType.ExtensionList(), ", ")))
	}
	return nil
}

// Validate runs every check for an upload against the target application.
func (v *DocumentValidator) Validate(ctx context.Context, applicationID string, docType *models.DocumentType, filename string, size int64) error {
	if err := v.CheckSize(docType, size); err != nil {
		return err
	}
	if err := v.CheckExtension(docType, filename); err != nil {
		return err
	}
	exists, err := v.documents.ExistsForApplication(ctx, applicationID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing documents")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrDocumentExists, "a document has already been uploaded for this application, please remove the existing document first")
	}
	return nil
}
