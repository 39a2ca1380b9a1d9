package ingest

import (
	"encoding/csv"
	"errors"
	"io"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	apperrors "github.com/odvcencio/leadsplit/pkg/errors"
)

// ErrParse matches every fault raised while interpreting an upload.
var ErrParse = errors.New("ingest: parse fault")

const parseUserMessage = "Error parsing file. Please check that it is a valid CSV, XLSX, or XLS file."

// Parse reads r as the given format and returns the usable records in source
// row order. An empty slice with a nil error means the file was well formed
// but contained no row with both a first name and a phone.
func Parse(r io.Reader, format Format) ([]Record, error) {
	switch format {
	case FormatDelimitedText:
		return parseDelimited(r)
	case FormatSpreadsheet:
		return parseSpreadsheet(r)
	case FormatLegacySpreadsheet:
		return parseLegacySpreadsheet(r)
	default:
		return nil, apperrors.New(apperrors.ErrCodeUnsupportedFormat, "no parser for format").
			WithContext("format", format.String()).
			WithUserMessage(unsupportedMessage)
	}
}

func parseDelimited(r io.Reader) ([]Record, error) {
	// Drops a UTF-8 BOM and decodes UTF-16 input that carries one.
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, parseFault(err, FormatDelimitedText, "read header row")
	}

	cols := mapColumns(headers)
	records := []Record{}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, parseFault(err, FormatDelimitedText, "read data row")
		}
		if rec, ok := cols.build(row); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

func parseSpreadsheet(r io.Reader) ([]Record, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, parseFault(err, FormatSpreadsheet, "open workbook")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeParseFault, "workbook has no sheets").
			WithContext("format", FormatSpreadsheet.String()).
			WithUserMessage(parseUserMessage).
			WithCause(ErrParse)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, parseFault(err, FormatSpreadsheet, "read first sheet").WithContext("sheet", sheets[0])
	}
	if len(rows) == 0 {
		return []Record{}, nil
	}

	cols := mapColumns(rows[0])
	records := []Record{}
	for _, row := range rows[1:] {
		if rec, ok := cols.build(row); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

func parseFault(err error, format Format, stage string) *apperrors.Error {
	fault := apperrors.Wrap(err, apperrors.ErrCodeParseFault, "failed to "+stage).
		WithContext("format", format.String()).
		WithUserMessage(parseUserMessage).
		WithCause(ErrParse)

	var csvErr *csv.ParseError
	if errors.As(err, &csvErr) {
		fault.WithContext("line", csvErr.Line)
	}
	return fault
}
