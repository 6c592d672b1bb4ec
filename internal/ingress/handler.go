package ingress

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"finpasser/internal/constants"
	"finpasser/internal/logger"
	"finpasser/pkg/errors"
)

// multipartOverhead is allowed on top of the file size limit for boundaries
// and part headers.
const multipartOverhead = 64 << 10

type Handler struct {
	service  *Service
	maxBytes int64
	logger   logger.Logger
}

func NewHandler(service *Service, maxBytes int64, log logger.Logger) *Handler {
	if maxBytes <= 0 {
		maxBytes = constants.DefaultMaxUploadBytes
	}
	return &Handler{service: service, maxBytes: maxBytes, logger: log}
}

// RegisterRoutes mounts POST /api/upload with any extra middleware (rate
// limiting) applied to that route only.
func (h *Handler) RegisterRoutes(router gin.IRouter, middleware ...gin.HandlerFunc) {
	handlers := append(append([]gin.HandlerFunc{}, middleware...), h.Upload)
	router.POST("/api/upload", handlers...)
}

func (h *Handler) HandleError(c *gin.Context, err error) {
	status := errors.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	} else {
		h.logger.WarnwCtx(c.Request.Context(), "Request rejected", "error", err, "path", c.Request.URL.Path)
	}
	c.JSON(status, errors.ToErrorResponse(err))
}

type UploadResponse struct {
	Status     string `json:"status"`
	BusinessID string `json:"business_id"`
	BlobRef    string `json:"blob_ref"`
}

// Upload godoc
// @Summary      Submit a payment file
// @Description  Store the file, record it as SENT_TO_ROUTER and publish an upload event. The business id is taken from the filename
// @Tags         uploads
// @Accept       multipart/form-data
// @Produce      json
// @Param        file  formData  file  true  "Payment file, e.g. 7654321_sample_pain001.xml"
// @Success      200   {object}  UploadResponse
// @Failure      400   {object}  errors.ErrorResponse
// @Failure      409   {object}  errors.ErrorResponse
// @Failure      413   {object}  errors.ErrorResponse
// @Failure      429   {object}  errors.ErrorResponse
// @Failure      502   {object}  errors.ErrorResponse
// @Failure      503   {object}  errors.ErrorResponse
// @Router       /upload [post]
func (h *Handler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)

	fh, err := c.FormFile(constants.MultipartFormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			h.HandleError(c, errors.ErrTooLarge.WithDetail("max_bytes", h.maxBytes))
			return
		}
		h.HandleError(c, errors.ErrValidation.
			WithMessage("multipart field \"file\" is required").
			WithCause(err))
		return
	}
	if fh.Size > h.maxBytes {
		h.HandleError(c, errors.ErrTooLarge.WithDetail("max_bytes", h.maxBytes))
		return
	}

	f, err := fh.Open()
	if err != nil {
		h.HandleError(c, errors.ErrInternal.WithCause(err))
		return
	}
	defer f.Close()

	rec, err := h.service.Submit(c.Request.Context(), Submission{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, UploadResponse{
		Status:     string(rec.Status),
		BusinessID: rec.BusinessID,
		BlobRef:    rec.BlobRef,
	})
}
