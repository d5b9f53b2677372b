package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/civicdesk/urbanism-api/internal/dto"
	"github.com/civicdesk/urbanism-api/internal/models"
	appErrors "github.com/civicdesk/urbanism-api/pkg/errors"
	"github.com/civicdesk/urbanism-api/pkg/storage"
)

type mockQueueRanker struct {
	ranked []dto.PrioritizedRequest
	err    error
}

func (m *mockQueueRanker) GetPrioritizedRequests(ctx context.Context) ([]dto.PrioritizedRequest, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.ranked, nil
}

func newExportService(t *testing.T, ranker *mockQueueRanker) (*ExportService, *mockAuditWriter) {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Minute)
	audits := &mockAuditWriter{}
	service := NewExportService(ranker, files, signer, audits, ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Minute}, zap.NewNop())
	return service, audits
}

func rankedFixture() []dto.PrioritizedRequest {
	days := 2
	return []dto.PrioritizedRequest{
		{
			Request: models.Request{
				ID:        "r-1",
				Type:      models.TypeCertificateUrbanism,
				Status:    models.StatusPendingValidation,
				CreatedAt: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
			},
			DaysLeft:          &days,
			BacklogInCategory: 1,
			PriorityScore:     128,
			Urgent:            true,
		},
		{
			Request: models.Request{
				ID:        "r-2",
				Type:      models.TypeOther,
				Status:    models.StatusInReview,
				CreatedAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
			},
			BacklogInCategory: 1,
		},
	}
}

func TestExportServiceGenerateCSV(t *testing.T) {
	service, audits := newExportService(t, &mockQueueRanker{ranked: rankedFixture()})

	result, err := service.Generate(context.Background(), ExportFormatCSV, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, ExportFormatCSV, result.Format)
	assert.Contains(t, result.URL, "/api/v1/queue/export/")
	assert.Equal(t, 1, audits.count())

	download, err := service.Resolve(result.Token)
	require.NoError(t, err)
	defer download.File.Close() //nolint:errcheck

	content, err := io.ReadAll(download.File)
	require.NoError(t, err)
	text := string(content)
	assert.Contains(t, text, "Rank")
	assert.Contains(t, text, "r-1")
	assert.Contains(t, text, "128")
	// Rows come out in queue order.
	assert.Less(t, strings.Index(text, "r-1"), strings.Index(text, "r-2"))
}

func TestExportServiceGeneratePDF(t *testing.T) {
	service, _ := newExportService(t, &mockQueueRanker{ranked: rankedFixture()})

	result, err := service.Generate(context.Background(), ExportFormatPDF, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, ExportFormatPDF, result.Format)

	download, err := service.Resolve(result.Token)
	require.NoError(t, err)
	defer download.File.Close() //nolint:errcheck
	assert.Equal(t, ExportFormatPDF, download.Format)

	header := make([]byte, 4)
	_, err = download.File.Read(header)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(header))
}

func TestExportServiceUnsupportedFormat(t *testing.T) {
	service, _ := newExportService(t, &mockQueueRanker{ranked: rankedFixture()})

	_, err := service.Generate(context.Background(), ExportFormat("xlsx"), "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportServiceResolveRejectsForgedToken(t *testing.T) {
	service, _ := newExportService(t, &mockQueueRanker{ranked: rankedFixture()})

	result, err := service.Generate(context.Background(), ExportFormatCSV, "admin-1")
	require.NoError(t, err)

	_, err = service.Resolve(result.Token + "tampered")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
