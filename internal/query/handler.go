// Package query serves the read side of a record store: single lookups, age
// filtered listings for stuck detection, dashboard stats and blob download.
package query

import (
	"context"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"finpasser/internal/blob"
	"finpasser/internal/constants"
	"finpasser/internal/logger"
	"finpasser/internal/reconcile"
	"finpasser/internal/record"
	"finpasser/pkg/errors"
)

// StatsStatuses names the pending and done statuses summarised by /api/stats.
type StatsStatuses struct {
	Pending record.Status
	Done    record.Status
}

// AuditReader returns the reconciler decisions recorded for one business id.
type AuditReader interface {
	History(ctx context.Context, businessID string, limit int) ([]reconcile.AuditEntry, error)
}

type Handler struct {
	store  record.Store
	blobs  blob.Store
	stats  *StatsStatuses
	audit  AuditReader
	logger logger.Logger
}

// NewHandler builds the read API. blobs and stats are optional; the content
// and stats routes are only mounted when they are set.
func NewHandler(store record.Store, blobs blob.Store, stats *StatsStatuses, log logger.Logger) *Handler {
	return &Handler{store: store, blobs: blobs, stats: stats, logger: log}
}

// WithAudit mounts GET /api/messages/:businessId/audit.
func (h *Handler) WithAudit(audit AuditReader) *Handler {
	h.audit = audit
	return h
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api")
	{
		messages := api.Group("/messages")
		{
			messages.GET("", h.ListMessages)
			messages.GET("/:businessId", h.GetMessage)
			if h.blobs != nil {
				messages.GET("/:businessId/content", h.GetContent)
			}
			if h.audit != nil {
				messages.GET("/:businessId/audit", h.GetAudit)
			}
		}
		if h.stats != nil {
			api.GET("/stats", h.GetStats)
		}
	}
}

func (h *Handler) HandleError(c *gin.Context, err error) {
	status := errors.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	}
	c.JSON(status, errors.ToErrorResponse(err))
}

// GetMessage godoc
// @Summary      Get a message record
// @Description  Get the delivery record for one business id
// @Tags         messages
// @Produce      json
// @Param        businessId  path      string  true  "Business id"
// @Success      200         {object}  record.MessageRecord
// @Failure      404         {object}  errors.ErrorResponse
// @Failure      500         {object}  errors.ErrorResponse
// @Router       /messages/{businessId} [get]
func (h *Handler) GetMessage(c *gin.Context) {
	rec, err := h.store.Get(c.Request.Context(), c.Param("businessId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type ListResponse struct {
	Items []record.MessageRecord `json:"items"`
	Total int                    `json:"total"`
}

// ListMessages godoc
// @Summary      List message records
// @Description  List records by status and age, oldest update first. older_than takes a Go duration such as 10m or an RFC 3339 instant
// @Tags         messages
// @Produce      json
// @Param        status      query     string  false  "Status filter"  Enums(SENT_TO_ROUTER, RECEIVED, DELIVERED)
// @Param        older_than  query     string  false  "Only records last updated before this age or instant"
// @Param        limit       query     int     false  "Page size (default 100, max 1000)"
// @Success      200         {object}  ListResponse
// @Failure      400         {object}  errors.ErrorResponse
// @Failure      500         {object}  errors.ErrorResponse
// @Router       /messages [get]
func (h *Handler) ListMessages(c *gin.Context) {
	filter, err := parseFilter(c, time.Now())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	ctx := c.Request.Context()
	items, err := h.store.List(ctx, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	total, err := h.store.Count(ctx, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Items: items, Total: total})
}

func parseFilter(c *gin.Context, now time.Time) (record.ListFilter, error) {
	filter := record.ListFilter{Limit: constants.DefaultLimit}

	if s := c.Query("status"); s != "" {
		status := record.Status(s)
		if !status.Valid() {
			return filter, errors.ErrValidation.
				WithMessage("unknown status").
				WithDetail("status", s)
		}
		filter.Status = status
	}

	if s := c.Query("older_than"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d >= 0 {
			filter.OlderThan = now.Add(-d)
		} else if t, err := time.Parse(time.RFC3339, s); err == nil {
			filter.OlderThan = t
		} else {
			return filter, errors.ErrValidation.
				WithMessage("older_than must be a duration or an RFC 3339 timestamp").
				WithDetail("older_than", s)
		}
	}

	if s := c.Query("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit <= 0 {
			return filter, errors.ErrValidation.
				WithMessage("limit must be a positive integer").
				WithDetail("limit", s)
		}
		if limit > constants.MaxLimit {
			limit = constants.MaxLimit
		}
		filter.Limit = limit
	}

	return filter, nil
}

// GetStats godoc
// @Summary      Delivery statistics
// @Description  Pending and delivered counts and mean upload to acknowledgment latency
// @Tags         stats
// @Produce      json
// @Success      200  {object}  record.Stats
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context(), h.stats.Pending, h.stats.Done)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetContent godoc
// @Summary      Download the stored file
// @Description  Stream the uploaded payload file for one business id
// @Tags         messages
// @Produce      octet-stream
// @Param        businessId  path      string  true  "Business id"
// @Success      200         {file}    file
// @Failure      404         {object}  errors.ErrorResponse
// @Failure      503         {object}  errors.ErrorResponse
// @Router       /messages/{businessId}/content [get]
func (h *Handler) GetContent(c *gin.Context) {
	ctx := c.Request.Context()
	rec, err := h.store.Get(ctx, c.Param("businessId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if rec.BlobRef == "" {
		h.HandleError(c, errors.ErrBlobNotFound.WithDetail("business_id", rec.BusinessID))
		return
	}

	body, err := h.blobs.Get(ctx, rec.BlobRef)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	defer body.Close()

	c.DataFromReader(http.StatusOK, -1, "application/octet-stream", body, map[string]string{
		"Content-Disposition": `attachment; filename="` + path.Base(rec.BlobRef) + `"`,
	})
}

// GetAudit godoc
// @Summary      Reconciliation history
// @Description  List the status decisions recorded for one business id, oldest first
// @Tags         messages
// @Produce      json
// @Param        businessId  path      string  true   "Business id"
// @Param        limit       query     int     false  "Maximum entries (default 100)"
// @Success      200         {array}   reconcile.AuditEntry
// @Failure      400         {object}  errors.ErrorResponse
// @Failure      500         {object}  errors.ErrorResponse
// @Router       /messages/{businessId}/audit [get]
func (h *Handler) GetAudit(c *gin.Context) {
	limit := constants.DefaultLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			h.HandleError(c, errors.ErrValidation.
				WithMessage("limit must be a positive integer").
				WithDetail("limit", s))
			return
		}
		limit = n
	}

	entries, err := h.audit.History(c.Request.Context(), c.Param("businessId"), limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
