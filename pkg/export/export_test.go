package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Headers: []string{"Date", "Start", "End", "Title"},
		Rows: []map[string]string{
			{"Date": "2024-05-06", "Start": "09:00", "End": "10:30", "Title": "Algebra, section 1"},
			{"Date": "2024-05-06", "Start": "11:00", "End": "12:00"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset(), "ignored")
	require.NoError(t, err)
	assert.Equal(t, "Date,Start,End,Title\n2024-05-06,09:00,10:30,\"Algebra, section 1\"\n2024-05-06,11:00,12:00,\n", string(out))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{}, "")
	require.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	exporter := &PDFExporter{Widths: map[string]float64{"Title": 3}}
	out, err := exporter.Render(sampleDataset(), "Room 101 schedule")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestPDFColumnWidthsFillPage(t *testing.T) {
	exporter := &PDFExporter{Widths: map[string]float64{"Title": 3}}
	widths := exporter.columnWidths([]string{"Date", "Title"})
	assert.InDelta(t, pageWidth, widths[0]+widths[1], 0.0001)
	assert.InDelta(t, widths[0]*3, widths[1], 0.0001)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
