package handler

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/civicdesk/urbanism-api/internal/service"
	appErrors "github.com/civicdesk/urbanism-api/pkg/errors"
	"github.com/civicdesk/urbanism-api/pkg/response"
)

type exportService interface {
	Generate(ctx context.Context, format service.ExportFormat, actorID string) (*service.ExportResult, error)
	Resolve(token string) (*service.ExportDownload, error)
}

// ExportHandler produces downloadable snapshots of the prioritized queue.
type ExportHandler struct {
	service exportService
}

func NewExportHandler(service exportService) *ExportHandler {
	return &ExportHandler{service: service}
}

// Generate godoc
// @Summary Export the prioritized queue
// @Tags Queue
// @Produce json
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {object} response.Envelope
// @Router /queue/export [post]
func (h *ExportHandler) Generate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	result, err := h.service.Generate(c.Request.Context(), format, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Download godoc
// @Summary Download a generated export
// @Tags Queue
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Router /queue/export/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "missing download token"))
		return
	}
	download, err := h.service.Resolve(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck

	contentType := "text/csv"
	if download.Format == service.ExportFormatPDF {
		contentType = "application/pdf"
	}
	modTime := time.Now()
	if info, statErr := download.File.Stat(); statErr == nil {
		modTime = info.ModTime()
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(download.Filename)))
	c.Header("Content-Type", contentType)
	http.ServeContent(c.Writer, c.Request, filepath.Base(download.Filename), modTime, download.File)
}
