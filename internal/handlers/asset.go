package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dataflux/dataflux-backend/internal/logger"
	"github.com/dataflux/dataflux-backend/internal/repos"
	"github.com/dataflux/dataflux-backend/internal/services"
)

type AssetHandler struct {
	log           *logger.Logger
	ingestService services.IngestService
	assetService  services.AssetService
	statusTracker services.StatusTracker
	dispatcher    services.Dispatcher
}

func NewAssetHandler(
	log *logger.Logger,
	ingestService services.IngestService,
	assetService services.AssetService,
	statusTracker services.StatusTracker,
	dispatcher services.Dispatcher,
) *AssetHandler {
	return &AssetHandler{
		log:           log.With("handler", "AssetHandler"),
		ingestService: ingestService,
		assetService:  assetService,
		statusTracker: statusTracker,
		dispatcher:    dispatcher,
	}
}

// POST /api/v1/assets
// Multipart upload; dedups by content hash and enqueues analysis.
func (h *AssetHandler) UploadAsset(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err)
		return
	}
	defer file.Close()

	priority := 5
	if raw := c.PostForm("priority"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "VALIDATION_ERROR",
				&services.ValidationError{Reason: "priority must be an integer"})
			return
		}
		priority = p
	}

	var collectionID *uuid.UUID
	if raw := c.PostForm("collection_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "VALIDATION_ERROR",
				&services.ValidationError{Reason: "collection_id must be a UUID"})
			return
		}
		collectionID = &id
	}

	result, err := h.ingestService.Ingest(c.Request.Context(), services.IngestInput{
		Reader:       file,
		Filename:     fileHeader.Filename,
		Context:      c.PostForm("context"),
		Priority:     priority,
		CollectionID: collectionID,
	})
	if err != nil {
		RespondServiceError(c, err)
		return
	}

	if result.Duplicate {
		RespondOK(c, gin.H{
			"asset":     result.Asset,
			"duplicate": true,
			"message":   "content already ingested",
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"asset":                  result.Asset,
		"duplicate":              false,
		"estimated_completion_s": result.ProcessingETA,
	})
}

// GET /api/v1/assets
// Paginated listing, optionally filtered by status and mime_type.
func (h *AssetHandler) ListAssets(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	assets, err := h.assetService.List(c.Request.Context(), repos.AssetListFilter{
		Status:   c.Query("status"),
		MimeType: c.Query("mime_type"),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"assets": assets,
		"page":   page,
		"count":  len(assets),
	})
}

// GET /api/v1/assets/:id
// Detail view: asset row, its segments, and the public blob URL.
func (h *AssetHandler) GetAsset(c *gin.Context) {
	assetID, ok := h.pathID(c)
	if !ok {
		return
	}
	detail, err := h.assetService.GetDetail(c.Request.Context(), assetID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, detail)
}

// GET /api/v1/assets/:id/status
func (h *AssetHandler) GetStatus(c *gin.Context) {
	assetID, ok := h.pathID(c)
	if !ok {
		return
	}
	snapshot, err := h.statusTracker.GetStatus(c.Request.Context(), assetID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, snapshot)
}

// POST /api/v1/assets/:id/analyze?force=&priority=
// Requeues a completed or failed asset; 409 while processing unless forced.
func (h *AssetHandler) TriggerReanalysis(c *gin.Context) {
	assetID, ok := h.pathID(c)
	if !ok {
		return
	}
	force := c.Query("force") == "true"

	priority := 0
	if raw := c.Query("priority"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "VALIDATION_ERROR",
				&services.ValidationError{Reason: "priority must be an integer"})
			return
		}
		priority = p
	}

	asset, err := h.dispatcher.Reanalyze(c.Request.Context(), assetID, force, priority)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"asset":  asset,
		"forced": force,
	})
}

func (h *AssetHandler) pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "VALIDATION_ERROR",
			&services.ValidationError{Reason: "asset id must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}
