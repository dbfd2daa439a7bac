package handler

import (
	"errors"
	"net/http"

	"github.com/annalist/annalist-backend/internal/common"
	"github.com/annalist/annalist-backend/internal/domain"
	"github.com/annalist/annalist-backend/internal/middleware"
	"github.com/annalist/annalist-backend/internal/service"
	"github.com/gin-gonic/gin"
)

// DocumentHandler handles document CRUD and revert requests
type DocumentHandler struct {
	service service.DocumentService
}

// NewDocumentHandler creates a new DocumentHandler
func NewDocumentHandler(service service.DocumentService) *DocumentHandler {
	return &DocumentHandler{service: service}
}

// documentResponse wraps a document with the snapshot captured by the
// save that produced it, if any.
type documentResponse struct {
	Document *domain.Document    `json:"document"`
	Captured *domain.VersionMeta `json:"captured_version,omitempty"`
}

func newDocumentResponse(doc *domain.Document, v *domain.Version) documentResponse {
	resp := documentResponse{Document: doc}
	if v != nil {
		meta := v.Meta()
		resp.Captured = &meta
	}
	return resp
}

// Create handles POST /api/v1/documents
func (h *DocumentHandler) Create(c *gin.Context) {
	var req domain.DocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	doc, v, err := h.service.Create(c.Request.Context(), &req, middleware.GetUserID(c))
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to create document", err)
		return
	}

	c.JSON(http.StatusCreated, common.APIResponse{Data: newDocumentResponse(doc, v)})
}

// Update handles PUT /api/v1/documents/:id
// The snapshot query param overrides the document's versioning gate for
// this one save: "force" captures regardless, "skip" suppresses.
func (h *DocumentHandler) Update(c *gin.Context) {
	var req domain.DocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	snapshot := c.Query("snapshot")
	if snapshot != "" && snapshot != service.SnapshotForce && snapshot != service.SnapshotSkip {
		common.ErrorResponse(c, http.StatusBadRequest, "snapshot must be force or skip", common.ErrInvalidInput)
		return
	}

	doc, v, err := h.service.Update(c.Request.Context(), c.Param("id"), &req, middleware.GetUserID(c), snapshot)
	if err != nil {
		h.respondError(c, err, "failed to update document")
		return
	}

	common.SuccessResponse(c, newDocumentResponse(doc, v), nil)
}

// Get handles GET /api/v1/documents/:id
func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "failed to load document")
		return
	}
	common.SuccessResponse(c, doc, nil)
}

// List handles GET /api/v1/documents
func (h *DocumentHandler) List(c *gin.Context) {
	page := intQuery(c, "page", 1)
	limit := intQuery(c, "limit", 20)

	docs, total, err := h.service.List(page, limit)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to list documents", err)
		return
	}

	common.SuccessResponse(c, docs, &common.Meta{Page: page, Limit: limit, Total: total})
}

// Delete handles DELETE /api/v1/documents/:id
// Deleting a document removes its whole version history with it.
func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err, "failed to delete document")
		return
	}
	common.SuccessResponse(c, gin.H{"deleted": true}, nil)
}

// Revert handles POST /api/v1/documents/:id/revert
func (h *DocumentHandler) Revert(c *gin.Context) {
	var req domain.RevertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	doc, err := h.service.Revert(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		h.respondError(c, err, "failed to revert document")
		return
	}

	common.SuccessResponse(c, doc, nil)
}

// gateRequest versioning gate toggle body
type gateRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetGate handles PUT /api/v1/documents/:id/versioning
func (h *DocumentHandler) SetGate(c *gin.Context) {
	var req gateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	h.service.SetGate(c.Param("id"), *req.Enabled)
	common.SuccessResponse(c, gin.H{"enabled": *req.Enabled}, nil)
}

// ClearGate handles DELETE /api/v1/documents/:id/versioning
// Returns the gate to the type's automatic default.
func (h *DocumentHandler) ClearGate(c *gin.Context) {
	h.service.ClearGate(c.Param("id"))
	common.SuccessResponse(c, gin.H{"cleared": true}, nil)
}

func (h *DocumentHandler) respondError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, common.ErrDocumentNotFound):
		common.ErrorResponse(c, http.StatusNotFound, "document not found", err)
	case errors.Is(err, common.ErrVersionNotFound):
		common.ErrorResponse(c, http.StatusNotFound, "version not found", err)
	case errors.Is(err, common.ErrCorruptPayload):
		common.ErrorResponse(c, http.StatusInternalServerError, "stored snapshot is corrupt", err)
	default:
		common.ErrorResponse(c, http.StatusInternalServerError, message, err)
	}
}
