package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/odvcencio/leadsplit/pkg/errors"
)

func TestFormatFromFilename(t *testing.T) {
	tests := []struct {
		name string
		want Format
	}{
		{"leads.csv", FormatDelimitedText},
		{"LEADS.CSV", FormatDelimitedText},
		{"q3 export.xlsx", FormatSpreadsheet},
		{"/tmp/path/book.XLSX", FormatSpreadsheet},
		{"old.xls", FormatLegacySpreadsheet},
		{"Archive 2019.XLS", FormatLegacySpreadsheet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatFromFilename(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatFromFilename_Rejections(t *testing.T) {
	for _, name := range []string{"notes.txt", "archive.zip", "noextension", ""} {
		t.Run(name, func(t *testing.T) {
			_, err := FormatFromFilename(name)
			require.Error(t, err)
			structured, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.ErrCodeUnsupportedFormat, structured.Code)
			assert.Equal(t, "Only CSV, XLSX, and XLS files are allowed", structured.Public())
			assert.NotEmpty(t, structured.Remediation)
		})
	}
}

func TestIsAllowedExtension(t *testing.T) {
	assert.True(t, IsAllowedExtension("a.csv"))
	assert.True(t, IsAllowedExtension("a.XLS"))
	assert.True(t, IsAllowedExtension("a.xlsx"))
	assert.False(t, IsAllowedExtension("a.pdf"))
	assert.False(t, IsAllowedExtension("csv"))
}

func TestFormatString(t *testing.T) {
	assert.Equal(t, "csv", FormatDelimitedText.String())
	assert.Equal(t, "xlsx", FormatSpreadsheet.String())
	assert.Equal(t, "xls", FormatLegacySpreadsheet.String())
	assert.Equal(t, "unknown", FormatUnknown.String())
}
