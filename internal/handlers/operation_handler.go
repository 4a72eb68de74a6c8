package handlers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shudh/internal/metrics"
	"shudh/internal/middleware"
	"shudh/internal/service"
	"shudh/internal/storage"
	"shudh/internal/validation"
)

// uploadRequest accepts both the current field names and the
// before_image_url/after_image_url names older clients send.
type uploadRequest struct {
	DeviceID        string `form:"device_id" json:"device_id" validate:"required,max=255"`
	OperationID     string `form:"operation_id" json:"operation_id" validate:"omitempty,max=255"`
	BeforePath      string `form:"before_path" json:"before_path" validate:"omitempty,max=2048"`
	BeforeImageURL  string `form:"before_image_url" json:"before_image_url" validate:"omitempty,max=2048"`
	AfterPath       string `form:"after_path" json:"after_path" validate:"omitempty,max=2048"`
	AfterImageURL   string `form:"after_image_url" json:"after_image_url" validate:"omitempty,max=2048"`
	GasLevel        string `form:"gas_level" json:"gas_level" validate:"omitempty,numeric"`
	GasStatus       string `form:"gas_status" json:"gas_status" validate:"omitempty,max=20"`
	Location        string `form:"location" json:"location" validate:"omitempty,max=2048"`
	Area            string `form:"area" json:"area" validate:"omitempty,max=255"`
	Division        string `form:"division" json:"division" validate:"omitempty,max=255"`
	District        string `form:"district" json:"district" validate:"omitempty,max=255"`
	DurationSeconds string `form:"duration_seconds" json:"duration_seconds" validate:"omitempty,number"`
	StartTime       string `form:"start_time" json:"start_time" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	EndTime         string `form:"end_time" json:"end_time" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

type OperationHandler struct {
	service        service.OperationService
	store          *storage.Store
	metrics        *metrics.Metrics
	maxUploadBytes int64
}

func NewOperationHandler(service service.OperationService, store *storage.Store, m *metrics.Metrics, maxUploadBytes int64) *OperationHandler {
	return &OperationHandler{
		service:        service,
		store:          store,
		metrics:        m,
		maxUploadBytes: maxUploadBytes,
	}
}

func (h *OperationHandler) failed(reason string) {
	if h.metrics != nil {
		h.metrics.UploadsFailed.WithLabelValues(reason).Inc()
	}
}

// Upload stores one operation. Image references come either as paths or
// as before_image/after_image files saved under the images directory.
func (h *OperationHandler) Upload(c *gin.Context) {
	log := middleware.Logger(c)

	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	var req uploadRequest
	if err := c.ShouldBind(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.failed("too_large")
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}
		h.failed("bad_request")
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if validationErrors := validation.ValidateStruct(&req); validationErrors != nil {
		log.Warn("upload validation failed", zap.Any("details", validationErrors))
		h.failed("validation")
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "Validation failed",
			"details":  validationErrors,
			"messages": validation.Messages(validationErrors),
		})
		return
	}

	// images saved by this request are removed unless the operation is stored
	var saved []string
	stored := false
	defer func() {
		if !stored {
			h.removeImages(c, saved)
		}
	}()

	beforePath, status, err := h.imageRef(c, "before", firstNonEmpty(req.BeforePath, req.BeforeImageURL), &saved)
	if err != nil {
		h.respondImageError(c, status, err)
		return
	}
	afterPath, status, err := h.imageRef(c, "after", firstNonEmpty(req.AfterPath, req.AfterImageURL), &saved)
	if err != nil {
		h.respondImageError(c, status, err)
		return
	}

	in, err := req.toInput(beforePath, afterPath)
	if err != nil {
		h.failed("validation")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	op, err := h.service.Create(c.Request.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDuplicateOperation):
			h.failed("duplicate")
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrInvalidOperation):
			h.failed("validation")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			log.Error("failed to store operation", zap.String("device_id", in.DeviceID), zap.Error(err))
			h.failed("internal")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload data"})
		}
		return
	}

	stored = true
	if h.metrics != nil {
		h.metrics.OperationsCreated.Inc()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "success",
		"message":      "Operation stored",
		"id":           op.ID,
		"operation_id": op.OperationID,
		"operation":    op,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}

// imageRef resolves one side of the image pair: an uploaded file wins over
// a path field. Saved files are appended to saved.
func (h *OperationHandler) imageRef(c *gin.Context, side, path string, saved *[]string) (string, int, error) {
	file, err := c.FormFile(side + "_image")
	switch {
	case err == nil:
		imgPath, status, err := h.saveImage(c, side, file)
		if err == nil {
			*saved = append(*saved, imgPath)
		}
		return imgPath, status, err
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		return "", http.StatusBadRequest, fmt.Errorf("error processing %s_image upload: %w", side, err)
	}

	path = strings.TrimSpace(path)
	if path == "" {
		return "", http.StatusBadRequest, fmt.Errorf("%s_path or %s_image is required", side, side)
	}
	return path, 0, nil
}

func (h *OperationHandler) saveImage(c *gin.Context, side string, file *multipart.FileHeader) (string, int, error) {
	if h.store == nil {
		return "", http.StatusInternalServerError, errors.New("image storage is not configured")
	}

	saved, err := h.store.Save(file)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedImage) {
			return "", http.StatusBadRequest, err
		}
		middleware.Logger(c).Error("failed to save uploaded image",
			zap.String("side", side),
			zap.String("filename", file.Filename),
			zap.Error(err))
		return "", http.StatusInternalServerError, fmt.Errorf("could not save %s image", side)
	}

	middleware.Logger(c).Info("saved uploaded image",
		zap.String("side", side),
		zap.String("original_filename", file.Filename),
		zap.String("saved_path", saved))
	return saved, 0, nil
}

func (h *OperationHandler) removeImages(c *gin.Context, paths []string) {
	for _, p := range paths {
		if err := h.store.Remove(p); err != nil {
			middleware.Logger(c).Warn("failed to remove rejected upload", zap.String("path", p), zap.Error(err))
		}
	}
}

func (h *OperationHandler) respondImageError(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		h.failed("storage")
	} else {
		h.failed("validation")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (r *uploadRequest) toInput(beforePath, afterPath string) (service.CreateOperationInput, error) {
	in := service.CreateOperationInput{
		OperationID: r.OperationID,
		DeviceID:    r.DeviceID,
		BeforePath:  beforePath,
		AfterPath:   afterPath,
		GasStatus:   r.GasStatus,
		Location:    r.Location,
		Area:        r.Area,
		Division:    r.Division,
		District:    r.District,
	}

	if r.GasLevel != "" {
		v, err := strconv.ParseFloat(r.GasLevel, 64)
		if err != nil {
			return in, fmt.Errorf("invalid gas_level: %w", err)
		}
		in.GasLevel = &v
	}
	if r.DurationSeconds != "" {
		v, err := strconv.Atoi(r.DurationSeconds)
		if err != nil {
			return in, fmt.Errorf("invalid duration_seconds: %w", err)
		}
		in.DurationSeconds = &v
	}
	for _, t := range []struct {
		raw string
		dst **time.Time
	}{
		{r.StartTime, &in.StartTime},
		{r.EndTime, &in.EndTime},
	} {
		if t.raw == "" {
			continue
		}
		parsed, err := time.Parse(time.RFC3339, t.raw)
		if err != nil {
			return in, fmt.Errorf("invalid timestamp %q: %w", t.raw, err)
		}
		*t.dst = &parsed
	}
	return in, nil
}

// List returns the most recent operations, newest first.
func (h *OperationHandler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		limit = v
	}

	ops, err := h.service.Recent(c.Request.Context(), limit)
	if err != nil {
		middleware.Logger(c).Error("failed to fetch operations", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch data"})
		return
	}

	c.JSON(http.StatusOK, ops)
}

func (h *OperationHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
		return
	}

	op, err := h.service.Get(c.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, service.ErrOperationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "operation not found"})
			return
		}
		middleware.Logger(c).Error("failed to fetch operation", zap.Uint64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch operation"})
		return
	}

	c.JSON(http.StatusOK, op)
}

// Export streams operations in [from, to] as xlsx (default) or csv.
// Dates are YYYY-MM-DD or RFC 3339; a date-only "to" covers the whole day.
func (h *OperationHandler) Export(c *gin.Context) {
	format := c.DefaultQuery("format", "xlsx")

	from, err := parseQueryTime(c.Query("from"), false)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date format, use YYYY-MM-DD or RFC 3339"})
		return
	}
	to, err := parseQueryTime(c.Query("to"), true)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date format, use YYYY-MM-DD or RFC 3339"})
		return
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must not be before from"})
		return
	}

	file, err := h.service.Export(c.Request.Context(), format, from, to)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnsupportedFormat):
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported format, use 'xlsx' or 'csv'"})
		case errors.Is(err, service.ErrNoData):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			middleware.Logger(c).Error("failed to export operations", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export operations"})
		}
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Header("X-Record-Count", strconv.Itoa(file.Records))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

func parseQueryTime(raw string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
