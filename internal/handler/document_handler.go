package handler

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/internhub/internhub-api/internal/dto"
	"github.com/internhub/internhub-api/internal/models"
	"github.com/internhub/internhub-api/internal/service"
	appErrors "github.com/internhub/internhub-api/pkg/errors"
	"github.com/internhub/internhub-api/pkg/response"
)

// DocumentHandler exposes the document submission endpoints.
type DocumentHandler struct {
	documents *service.DocumentService
}

// NewDocumentHandler creates a new handler.
func NewDocumentHandler(documents *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

// ListTypes godoc
// @Summary List document types
// @Description List the accepted document types and their upload constraints
// @Tags Documents
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /documents/types [get]
func (h *DocumentHandler) ListTypes(c *gin.Context) {
	types, err := h.documents.ListTypes(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, types, nil)
}

// Upload godoc
// @Summary Upload document
// @Description Attach a document to an application. One document per application.
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Document file"
// @Param application_id formData string false "Application ID (taken from the route when nested)"
// @Param document_type_id formData string true "Document type ID"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /documents [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var meta dto.UploadDocumentRequest
	if err := c.ShouldBind(&meta); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid upload metadata"))
		return
	}
	// The form field wins; the nested route fills it in when omitted.
	if meta.ApplicationID == "" {
		meta.ApplicationID = c.Param("id")
	}
	if meta.ApplicationID == "" {
		response.Error(c, appErrors.WithField(appErrors.ErrValidation, "application_id", "application_id is required"))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.WithField(appErrors.ErrValidation, "file", "file is required"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to read uploaded file"))
		return
	}
	defer file.Close()

	document, err := h.documents.Upload(c.Request.Context(), meta, service.DocumentUpload{
		Filename: fileHeader.Filename,
		Size:     fileHeader.Size,
		Content:  file,
	}, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, document)
}

// List godoc
// @Summary List documents
// @Description List documents. Interns see only documents on their own applications.
// @Tags Documents
// @Produce json
// @Param application_id query string false "Filter by application"
// @Param document_type_id query string false "Filter by document type"
// @Param verified query bool false "Filter by verification state"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.DocumentFilter{
		ApplicationID:  c.Query("application_id"),
		DocumentTypeID: c.Query("document_type_id"),
	}
	if verified := c.Query("verified"); verified != "" {
		parsed, err := strconv.ParseBool(verified)
		if err == nil {
			filter.Verified = &parsed
		}
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	documents, pagination, err := h.documents.List(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, documents, pagination)
}

// Get godoc
// @Summary Get document
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /documents/{id} [get]
func (h *DocumentHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	document, err := h.documents.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, document, nil)
}

// Delete godoc
// @Summary Delete document
// @Description Remove a document. Owners may delete only while the application is pending.
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /documents/{id} [delete]
func (h *DocumentHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.documents.Delete(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Verify godoc
// @Summary Verify document
// @Description Mark a document as verified (admin only)
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.VerifyDocumentRequest false "Verification notes"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /documents/{id}/verify [post]
func (h *DocumentHandler) Verify(c *gin.Context) {
	h.setVerification(c, true)
}

// Unverify godoc
// @Summary Unverify document
// @Description Clear the verification flag on a document (admin only)
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.VerifyDocumentRequest false "Verification notes"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /documents/{id}/unverify [post]
func (h *DocumentHandler) Unverify(c *gin.Context) {
	h.setVerification(c, false)
}

func (h *DocumentHandler) setVerification(c *gin.Context, verified bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.VerifyDocumentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid verification payload"))
			return
		}
	}

	document, err := h.documents.SetVerification(c.Request.Context(), c.Param("id"), verified, req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, document, nil)
}

// DownloadURL godoc
// @Summary Get download URL
// @Description Issue a short-lived signed download link for a document
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /documents/{id}/download-url [get]
func (h *DocumentHandler) DownloadURL(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	id := c.Param("id")
	token, err := h.documents.GetDownloadURL(c.Request.Context(), id, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"download_url": "/api/v1/documents/" + id + "/download?token=" + url.QueryEscape(token),
	}, nil)
}

// Download godoc
// @Summary Download document
// @Description Stream the document file using a signed token
// @Tags Documents
// @Produce octet-stream
// @Param id path string true "Document ID"
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /documents/{id}/download [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	claims := claimsFromContext(c)

	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.WithField(appErrors.ErrValidation, "token", "token is required"))
		return
	}

	download, err := h.documents.Download(c.Request.Context(), c.Param("id"), token, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	c.Header("Content-Disposition", "attachment; filename="+download.Filename)
	c.Header("Content-Length", strconv.FormatInt(download.SizeBytes, 10))
	c.DataFromReader(http.StatusOK, download.SizeBytes, "application/octet-stream", download.File, nil)
}
