package handler

import (
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appErrors "github.com/AnjithKrishna7/exam-seat-allocator/pkg/errors"
	"github.com/AnjithKrishna7/exam-seat-allocator/pkg/response"
	"github.com/AnjithKrishna7/exam-seat-allocator/pkg/storage"
)

var exportMimeTypes = map[string]string{
	".csv":  "text/csv",
	".pdf":  "application/pdf",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// ExportHandler serves rendered seating plans through signed links.
type ExportHandler struct {
	store  *storage.LocalStorage
	signer *storage.SignedURLSigner
	logger *zap.Logger
}

// NewExportHandler constructs the handler.
func NewExportHandler(store *storage.LocalStorage, signer *storage.SignedURLSigner, logger *zap.Logger) *ExportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportHandler{store: store, signer: signer, logger: logger}
}

// Download streams a rendered plan after verifying the signed token.
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token query parameter is required"))
		return
	}

	runID, relPath, _, err := h.signer.Parse(token, false)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired download link"))
		return
	}

	f, err := h.store.Open(relPath)
	if err != nil {
		h.logger.Warn("exported plan missing on disk",
			zap.String("run_id", runID),
			zap.String("path", relPath),
			zap.Error(err),
		)
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "exported plan no longer available"))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat exported plan"))
		return
	}

	ext := filepath.Ext(relPath)
	mimeType, ok := exportMimeTypes[ext]
	if !ok {
		mimeType = "application/octet-stream"
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(relPath)))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), mimeType, f, nil)
}
