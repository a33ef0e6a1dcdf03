package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MuhaiminulSajid16/image-to-text/internal/config"
	"github.com/MuhaiminulSajid16/image-to-text/internal/domain"
	"github.com/MuhaiminulSajid16/image-to-text/internal/service"
	"github.com/MuhaiminulSajid16/image-to-text/pkg/utils"
)

type Handler struct {
	service service.PrescriptionService
	cfg     *config.Config
	log     *zap.Logger
}

func NewHandler(service service.PrescriptionService, cfg *config.Config, log *zap.Logger) *Handler {
	return &Handler{
		service: service,
		cfg:     cfg,
		log:     log,
	}
}

func (h *Handler) UploadImage(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		h.formFailure(c, err, "No image file provided")
		return
	}

	up, err := h.readUpload(file)
	if err != nil {
		h.log.Warn("Rejected upload",
			zap.String("filename", file.Filename),
			zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": service.ErrorMessage(err)})
		return
	}

	if raw := c.PostForm("crop_data"); raw != "" {
		crop, err := utils.ParseCrop(raw)
		if err != nil {
			h.log.Warn("Invalid crop data format, ignoring crop", zap.Error(err))
		} else {
			up.Crop = crop
		}
	}

	result, err := h.service.Analyze(c.Request.Context(), up)
	if err != nil {
		h.log.Error("Error processing request",
			zap.String("filename", up.Filename),
			zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": service.ErrorMessage(err)})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) UploadMultipleImages(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		h.formFailure(c, err, "No image files provided")
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image files provided"})
		return
	}
	if limit := h.cfg.Batch.MaxFiles; limit > 0 && len(files) > limit {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Too many files: at most %d per request", limit)})
		return
	}

	items := make([]domain.BatchItem, len(files))
	var (
		uploads []domain.Upload
		slots   []int
	)
	for i, file := range files {
		up, err := h.readUpload(file)
		if err != nil {
			items[i] = domain.BatchItem{Filename: file.Filename, Error: service.ErrorMessage(err)}
			continue
		}
		uploads = append(uploads, up)
		slots = append(slots, i)
	}

	for j, item := range h.service.AnalyzeBatch(c.Request.Context(), uploads) {
		items[slots[j]] = item
	}

	h.log.Info("Batch processed",
		zap.Int("files", len(files)),
		zap.Int("accepted", len(uploads)))

	c.JSON(http.StatusOK, items)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Ready reports whether an OCR engine and an analysis backend are wired.
func (h *Handler) Ready(c *gin.Context) {
	b := h.service.Backends()
	if b.OCR == "" || b.Model == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "ocr": b.OCR, "model": b.Model})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "ocr": b.OCR, "model": b.Model})
}

func (h *Handler) GetUI(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"MaxFiles":       h.cfg.Batch.MaxFiles,
		"AllowedFormats": strings.Join(h.cfg.App.AllowedFormats, ","),
	})
}

// formFailure answers a multipart parse error: 413 when the body cap was hit,
// 400 otherwise.
func (h *Handler) formFailure(c *gin.Context, err error, msg string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.log.Warn("Request body too large", zap.Int64("limit", tooLarge.Limit))
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit)})
		return
	}
	h.log.Error("Failed to parse multipart form", zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// readUpload checks size and format and reads the file into memory.
func (h *Handler) readUpload(file *multipart.FileHeader) (domain.Upload, error) {
	if file.Size > h.cfg.App.MaxUploadSize {
		return domain.Upload{}, fmt.Errorf("%w: %d bytes", domain.ErrFileTooLarge, file.Size)
	}

	f, err := file.Open()
	if err != nil {
		return domain.Upload{}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.cfg.App.MaxUploadSize+1))
	if err != nil {
		return domain.Upload{}, fmt.Errorf("read file: %w", err)
	}
	if int64(len(data)) > h.cfg.App.MaxUploadSize {
		return domain.Upload{}, domain.ErrFileTooLarge
	}

	sniffed := http.DetectContentType(data)
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !slices.Contains(h.cfg.App.AllowedFormats, ext) && !strings.HasPrefix(sniffed, "image/") {
		return domain.Upload{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, ext)
	}

	contentType := file.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = sniffed
	}

	return domain.Upload{
		Data:        data,
		Filename:    file.Filename,
		ContentType: contentType,
	}, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrInvalidImage), errors.Is(err, domain.ErrUnsupportedFormat):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
