package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/annalist/annalist-backend/internal/codec"
	"github.com/annalist/annalist-backend/internal/common"
	"github.com/annalist/annalist-backend/internal/domain"
	"github.com/annalist/annalist-backend/internal/service"
	"github.com/gin-gonic/gin"
)

// VersionHandler serves version history and navigation for documents
type VersionHandler struct {
	documents service.DocumentService
	versions  service.VersionService
}

// NewVersionHandler creates a new VersionHandler
func NewVersionHandler(documents service.DocumentService, versions service.VersionService) *VersionHandler {
	return &VersionHandler{documents: documents, versions: versions}
}

// historyResponse version listing with owner status
type historyResponse struct {
	IsVersioned   bool                 `json:"is_versioned"`
	VersionNumber uint                 `json:"version_number"`
	Versions      []domain.VersionMeta `json:"versions"`
}

// versionDetail a single version with its decoded attributes
type versionDetail struct {
	domain.VersionMeta
	Attributes domain.AttributeMap `json:"attributes"`
}

// List handles GET /api/v1/documents/:id/versions
// Listing needs only metadata; payloads stay undecoded, so a corrupt
// snapshot does not break the history view.
func (h *VersionHandler) List(c *gin.Context) {
	ref, ok := h.resolveOwner(c)
	if !ok {
		return
	}

	metas, err := h.versions.List(ref)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to list versions", err)
		return
	}
	number, err := h.versions.VersionNumber(ref)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to read version number", err)
		return
	}

	common.SuccessResponse(c, historyResponse{
		IsVersioned:   number > 0,
		VersionNumber: number,
		Versions:      metas,
	}, nil)
}

// Get handles GET /api/v1/documents/:id/versions/:selector
// selector is a version number, or "first"/"current".
func (h *VersionHandler) Get(c *gin.Context) {
	ref, ok := h.resolveOwner(c)
	if !ok {
		return
	}

	v, ok := h.selectVersion(c, ref, c.Param("selector"))
	if !ok {
		return
	}
	h.respondVersion(c, v)
}

// Next handles GET /api/v1/documents/:id/versions/:selector/next
func (h *VersionHandler) Next(c *gin.Context) {
	h.navigate(c, h.versions.NextAfter)
}

// Previous handles GET /api/v1/documents/:id/versions/:selector/previous
func (h *VersionHandler) Previous(c *gin.Context) {
	h.navigate(c, h.versions.PreviousBefore)
}

func (h *VersionHandler) navigate(c *gin.Context, step func(domain.OwnerRef, uint) (*domain.Version, error)) {
	ref, ok := h.resolveOwner(c)
	if !ok {
		return
	}

	number, err := strconv.ParseUint(c.Param("selector"), 10, 32)
	if err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "version number must be an integer", common.ErrInvalidInput)
		return
	}

	v, err := step(ref, uint(number))
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to navigate versions", err)
		return
	}
	if v == nil {
		common.ErrorResponse(c, http.StatusNotFound, "no version in that direction", common.ErrVersionNotFound)
		return
	}
	h.respondVersion(c, v)
}

func (h *VersionHandler) selectVersion(c *gin.Context, ref domain.OwnerRef, selector string) (*domain.Version, bool) {
	var v *domain.Version
	var err error

	switch selector {
	case "first":
		v, err = h.versions.First(ref)
	case "current":
		v, err = h.versions.Current(ref)
	default:
		number, parseErr := strconv.ParseUint(selector, 10, 32)
		if parseErr != nil {
			common.ErrorResponse(c, http.StatusBadRequest, "selector must be a number, first, or current", common.ErrInvalidInput)
			return nil, false
		}
		v, err = h.versions.ByNumber(ref, uint(number))
	}

	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "failed to load version", err)
		return nil, false
	}
	if v == nil {
		common.ErrorResponse(c, http.StatusNotFound, "version not found", common.ErrVersionNotFound)
		return nil, false
	}
	return v, true
}

func (h *VersionHandler) respondVersion(c *gin.Context, v *domain.Version) {
	attrs, err := codec.Decode(v.Payload)
	if err != nil {
		common.ErrorResponse(c, http.StatusInternalServerError, "stored snapshot is corrupt", err)
		return
	}

	common.SuccessResponse(c, versionDetail{
		VersionMeta: v.Meta(),
		Attributes:  attrs,
	}, nil)
}

// resolveOwner loads the document to confirm it exists and returns its
// versioning reference. Responds 404 itself when the document is gone.
func (h *VersionHandler) resolveOwner(c *gin.Context) (domain.OwnerRef, bool) {
	doc, err := h.documents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, common.ErrDocumentNotFound) {
			common.ErrorResponse(c, http.StatusNotFound, "document not found", err)
		} else {
			common.ErrorResponse(c, http.StatusInternalServerError, "failed to load document", err)
		}
		return domain.OwnerRef{}, false
	}
	return doc.Ref(), true
}
