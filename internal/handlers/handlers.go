package handlers

import (
	"context"
	_ "embed"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/lowpoly/internal/imageprocessor"
	"github.com/example/lowpoly/internal/logging"
	"github.com/example/lowpoly/internal/usecase"
)

// MaxUploadSize caps the size of an uploaded image.
const MaxUploadSize = 20 << 20

// formOverhead is the slack allowed on top of MaxUploadSize for the other
// multipart fields and boundaries.
const formOverhead = 1 << 20

//go:embed static/index.html
var indexHTML []byte

// LowPolyService is the subset of the use case the handlers depend on.
type LowPolyService interface {
	Process(ctx context.Context, upload usecase.Upload) (*usecase.Result, error)
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, svc LowPolyService, logger *zap.Logger) {
	h := &handler{svc: svc, logger: logger.Named("handlers")}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
	})
	router.POST("/low_poly_image/", h.lowPolyImage)
	router.GET("/metrics/summary", h.metricsSummary)
}

type handler struct {
	svc    LowPolyService
	logger *zap.Logger
}

func (h *handler) lowPolyImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize+formOverhead)

	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			detail(c, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		detail(c, http.StatusBadRequest, "file is required")
		return
	}
	if file.Size > MaxUploadSize {
		detail(c, http.StatusRequestEntityTooLarge, "File too large")
		return
	}

	params, ok := parseParams(c)
	if !ok {
		return
	}

	contentType := file.Header.Get("Content-Type")
	if !imageprocessor.Allowed(contentType) {
		detail(c, http.StatusBadRequest, "Invalid image format")
		return
	}

	data, err := readFile(file)
	if err != nil {
		detail(c, http.StatusBadRequest, "Failed to load image")
		return
	}

	res, err := h.svc.Process(c.Request.Context(), usecase.Upload{
		Filename:    file.Filename,
		ContentType: contentType,
		Data:        data,
		Params:      params,
	})
	if err != nil {
		h.writeProcessError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=low_poly_image.jpg")
	c.Header("X-Request-ID", res.RequestID)
	if res.CacheHit {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}
	c.Data(http.StatusOK, res.ContentType, res.Image)
}

func (h *handler) metricsSummary(c *gin.Context) {
	summary, err := h.svc.GetMetricsSummary(c.Request.Context())
	if err != nil {
		h.logger.Error("metrics summary failed", zap.Error(err))
		detail(c, http.StatusInternalServerError, "Failed to load metrics")
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *handler) writeProcessError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, imageprocessor.ErrUnsupportedFormat):
		detail(c, http.StatusBadRequest, "Invalid image format")
	case errors.Is(err, imageprocessor.ErrDecode):
		detail(c, http.StatusBadRequest, "Failed to load image")
	default:
		h.logger.Error("low poly processing failed", zap.Error(err), zap.String("operation", logging.OperationOf(err)))
		detail(c, http.StatusInternalServerError, "Failed to process image")
	}
}

func parseParams(c *gin.Context) (imageprocessor.Params, bool) {
	params := imageprocessor.DefaultParams()
	fields := []struct {
		name string
		dst  *int
	}{
		{"num_points", &params.NumPoints},
		{"detail_level", &params.DetailLevel},
	}
	for _, f := range fields {
		raw, present := c.GetPostForm(f.name)
		if !present || raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			detail(c, http.StatusUnprocessableEntity, f.name+" must be an integer")
			return params, false
		}
		*f.dst = n
	}
	return params, true
}

func readFile(file *multipart.FileHeader) ([]byte, error) {
	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return io.ReadAll(src)
}

func detail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": message})
}
