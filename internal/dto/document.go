package dto

// UploadDocumentRequest carries the multipart fields accompanying a document
// upload. ApplicationID may be omitted when the nested route supplies it.
type UploadDocumentRequest struct {
	ApplicationID  string `form:"application_id"`
	DocumentTypeID string `form:"document_type_id" binding:"required"`
}

// VerifyDocumentRequest toggles the verification flag with optional notes.
type VerifyDocumentRequest struct {
	VerificationNotes string `json:"verification_notes"`
}
