package handler

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"library-api/internal/apierr"
	"library-api/internal/upload"
	"library-api/pkg/config"
	"library-api/pkg/logger"
	"library-api/prometheus"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var uploadCfg = config.UploadConfig{
	Dir:          "uploads",
	MaxSizeBytes: 5 * 1024 * 1024,
}

// InitUpload sets the upload directory and size limit from configuration.
func InitUpload(cfg config.UploadConfig) {
	uploadCfg = cfg
}

var allowedExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// UploadFile stores one image file and returns its relative URL. The
// extension decides which signature the stored bytes must carry; a file
// whose content does not match is deleted and refused, whatever
// Content-Type the client declared.
func UploadFile(c echo.Context) error {
	log := logger.FromContext(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		log.Warn("Upload without file field", zap.Error(err))
		prometheus.RecordUpload("rejected")
		return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "file is required")
	}

	if fileHeader.Size > uploadCfg.MaxSizeBytes {
		log.Warn("Upload exceeds size limit",
			zap.Int64("size", fileHeader.Size),
			zap.Int64("limit", uploadCfg.MaxSizeBytes))
		prometheus.RecordUpload("rejected")
		return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "file exceeds the size limit")
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	expectedType, ok := allowedExtensions[ext]
	if !ok {
		log.Warn("Upload with disallowed extension", zap.String("filename", fileHeader.Filename))
		prometheus.RecordUpload("rejected")
		return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "only jpg, jpeg, png, gif and webp files are allowed")
	}

	src, err := fileHeader.Open()
	if err != nil {
		log.Error("Failed to open uploaded file", zap.Error(err))
		return apierr.Internal(c)
	}
	defer src.Close()

	if err := os.MkdirAll(uploadCfg.Dir, 0o755); err != nil {
		log.Error("Failed to create upload directory", zap.Error(err))
		return apierr.Internal(c)
	}

	storedName := uuid.New().String() + ext
	storedPath := filepath.Join(uploadCfg.Dir, storedName)

	dst, err := os.Create(storedPath)
	if err != nil {
		log.Error("Failed to create stored file", zap.Error(err))
		return apierr.Internal(c)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(storedPath)
		log.Error("Failed to write stored file", zap.Error(err))
		return apierr.Internal(c)
	}
	dst.Close()

	// The stored bytes, not the declared Content-Type, decide acceptance.
	match, err := upload.VerifyFile(storedPath, expectedType)
	if err != nil {
		os.Remove(storedPath)
		log.Error("Failed to verify stored file", zap.Error(err))
		return apierr.Internal(c)
	}
	if !match {
		os.Remove(storedPath)
		log.Warn("Upload content does not match its extension",
			zap.String("filename", fileHeader.Filename),
			zap.String("expected_type", expectedType))
		prometheus.RecordUpload("rejected")
		return apierr.JSON(c, http.StatusBadRequest, apierr.Validation, "file content does not match its extension")
	}

	prometheus.RecordUpload("accepted")
	log.Info("File uploaded",
		zap.String("stored_name", storedName),
		zap.Int64("size", fileHeader.Size))

	return c.JSON(http.StatusCreated, echo.Map{
		"url": fmt.Sprintf("/uploads/%s", storedName),
	})
}
