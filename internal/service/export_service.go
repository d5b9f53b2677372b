package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civicdesk/urbanism-api/internal/dto"
	"github.com/civicdesk/urbanism-api/internal/models"
	appErrors "github.com/civicdesk/urbanism-api/pkg/errors"
	"github.com/civicdesk/urbanism-api/pkg/export"
	"github.com/civicdesk/urbanism-api/pkg/storage"
)

// ExportFormat enumerates supported queue export renderings.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type queueRanker interface {
	GetPrioritizedRequests(ctx context.Context) ([]dto.PrioritizedRequest, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       ExportFormat
	ExpiresAt    time.Time
}

// ExportDownload aggregates resolved download data.
type ExportDownload struct {
	File     *os.File
	Filename string
	Format   ExportFormat
}

// ExportService renders the prioritized queue into downloadable files.
type ExportService struct {
	queue   queueRanker
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	audits  auditWriter
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(queue queueRanker, files fileStorage, signer *storage.SignedURLSigner, audits auditWriter, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 30 * time.Minute
	}
	return &ExportService{
		queue:   queue,
		storage: files,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		signer:  signer,
		audits:  audits,
		logger:  logger,
		cfg:     cfg,
	}
}

// Generate ranks the queue, renders it in the requested format and returns a
// signed download URL.
func (s *ExportService) Generate(ctx context.Context, format ExportFormat, actorID string) (*ExportResult, error) {
	ranked, err := s.queue.GetPrioritizedRequests(ctx)
	if err != nil {
		return nil, err
	}

	dataset := buildQueueDataset(ranked)
	exportID := uuid.NewString()

	var payload []byte
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, "Prioritized work queue")
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	filename := fmt.Sprintf("queue/%s/%s.%s", time.Now().UTC().Format("2006-01-02"), exportID, format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(exportID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export url")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	if s.audits != nil {
		if auditErr := s.audits.Create(ctx, &models.AuditLog{
			UserID:    &actorID,
			Action:    models.AuditActionQueueExport,
			Resource:  "queue",
			NewValues: []byte(fmt.Sprintf(`{"format":%q,"rows":%d}`, format, len(ranked))),
		}); auditErr != nil {
			s.logger.Warn("failed to record export audit log", zap.Error(auditErr))
		}
	}

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/queue/export/%s", prefix, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// Resolve validates a download token and opens the stored file.
func (s *ExportService) Resolve(token string) (*ExportDownload, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired download token")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export no longer available")
	}
	format := ExportFormatCSV
	if strings.HasSuffix(relPath, ".pdf") {
		format = ExportFormatPDF
	}
	return &ExportDownload{File: file, Filename: relPath, Format: format}, nil
}

// Cleanup removes exports older than the configured TTL.
func (s *ExportService) Cleanup() {
	deleted, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL)
	if err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
		return
	}
	if len(deleted) > 0 {
		s.logger.Info("cleaned up expired exports", zap.Int("count", len(deleted)))
	}
}

func buildQueueDataset(ranked []dto.PrioritizedRequest) export.Dataset {
	headers := []string{"Rank", "Request ID", "Type", "Status", "Days Left", "Backlog", "Score", "Created At"}
	rows := make([]map[string]string, 0, len(ranked))
	for i, entry := range ranked {
		daysLeft := ""
		if entry.DaysLeft != nil {
			daysLeft = strconv.Itoa(*entry.DaysLeft)
		}
		rows = append(rows, map[string]string{
			"Rank":       strconv.Itoa(i + 1),
			"Request ID": entry.Request.ID,
			"Type":       string(entry.Request.Type),
			"Status":     string(entry.Request.Status),
			"Days Left":  daysLeft,
			"Backlog":    strconv.Itoa(entry.BacklogInCategory),
			"Score":      strconv.Itoa(entry.PriorityScore),
			"Created At": entry.Request.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
