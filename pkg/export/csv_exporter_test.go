package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterRender(t *testing.T) {
	data := Dataset{
		Headers: []string{"Rank", "Request ID", "Score"},
		Rows: []map[string]string{
			{"Rank": "1", "Request ID": "r-1", "Score": "128"},
			{"Rank": "2", "Request ID": "r-2", "Score": "26"},
		},
	}

	out, err := NewCSVExporter().Render(data)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Rank,Request ID,Score", lines[0])
	assert.Equal(t, "1,r-1,128", lines[1])
	assert.Equal(t, "2,r-2,26", lines[2])
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	require.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	data := Dataset{
		Headers: []string{"Rank", "Request ID"},
		Rows:    []map[string]string{{"Rank": "1", "Request ID": "r-1"}},
	}

	out, err := NewPDFExporter().Render(data, "Prioritized work queue")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "%PDF"))
}
