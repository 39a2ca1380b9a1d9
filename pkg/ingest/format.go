package ingest

import (
	"path/filepath"
	"strings"

	apperrors "github.com/odvcencio/leadsplit/pkg/errors"
)

// Format is the declared container format of an upload.
type Format int

const (
	FormatUnknown Format = iota
	FormatDelimitedText
	FormatSpreadsheet
	FormatLegacySpreadsheet
)

func (f Format) String() string {
	switch f {
	case FormatDelimitedText:
		return "csv"
	case FormatSpreadsheet:
		return "xlsx"
	case FormatLegacySpreadsheet:
		return "xls"
	default:
		return "unknown"
	}
}

// AllowedExtensions lists the upload extensions the service accepts.
var AllowedExtensions = []string{".csv", ".xlsx", ".xls"}

const unsupportedMessage = "Only CSV, XLSX, and XLS files are allowed"

// FormatFromFilename picks the parser for an uploaded file from its extension.
func FormatFromFilename(name string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(name)))
	switch ext {
	case ".csv":
		return FormatDelimitedText, nil
	case ".xlsx":
		return FormatSpreadsheet, nil
	case ".xls":
		return FormatLegacySpreadsheet, nil
	default:
		return FormatUnknown, apperrors.New(apperrors.ErrCodeUnsupportedFormat, "unsupported file extension").
			WithContext("file", name).
			WithContext("extension", ext).
			WithUserMessage(unsupportedMessage).
			WithRemediation("Export the sheet as .csv or .xlsx and upload it again")
	}
}

// IsAllowedExtension reports whether name passes the upload extension filter.
func IsAllowedExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(name)))
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
