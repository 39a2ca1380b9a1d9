package ingest

import (
	"bytes"
	_ "embed"
	"errors"
	"testing"
	"testing/iotest"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/odvcencio/leadsplit/pkg/errors"
)

// leads.xls is a BIFF8 workbook with two sheets. "Leads" holds a header row
// (First Name, Mobile, Notes), a gap at row 4 and a row without a name;
// "Archive" holds one more contact that must not be read.
//
//go:embed testdata/leads.xls
var legacyWorkbook []byte

func TestParseLegacySpreadsheet(t *testing.T) {
	records, err := Parse(bytes.NewReader(legacyWorkbook), FormatLegacySpreadsheet)
	require.NoError(t, err)
	assert.Equal(t, []Record{
		{FirstName: "Alice", Phone: "555-0100", Notes: "VIP"},
		{FirstName: "Bob", Phone: "555-0101"},
		{FirstName: "Carol", Phone: "555-0103", Notes: "Follow up"},
	}, records)
}

func TestParseLegacySpreadsheet_Faults(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"not a compound file", []byte("FirstName,Phone\nAlice,555\n")},
		{"empty", nil},
		{"truncated", legacyWorkbook[:2048]},
		{"no workbook stream", bytes.Replace(legacyWorkbook, utf16Bytes("Workbook"), utf16Bytes("Notebook"), 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(bytes.NewReader(tt.data), FormatLegacySpreadsheet)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrParse))

			structured, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.ErrCodeParseFault, structured.Code)
			assert.Equal(t, "xls", structured.Context["format"])
			assert.Contains(t, structured.Public(), "XLS")
		})
	}
}

func TestParseLegacySpreadsheet_ReadFault(t *testing.T) {
	cause := errors.New("upload aborted")
	_, err := Parse(iotest.ErrReader(cause), FormatLegacySpreadsheet)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParse))
	assert.True(t, errors.Is(err, cause))
}

func utf16Bytes(s string) []byte {
	var out []byte
	for _, u := range utf16.Encode([]rune(s)) {
		out = append(out, byte(u), byte(u>>8))
	}
	return out
}
