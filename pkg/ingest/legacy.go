package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/extrame/xls"
	"github.com/richardlehane/mscfb"

	apperrors "github.com/odvcencio/leadsplit/pkg/errors"
)

// biffMaxColumns is the column limit of a BIFF8 worksheet.
const biffMaxColumns = 256

var errNoWorkbookStream = errors.New("compound file has no Workbook stream")

// parseLegacySpreadsheet reads the first sheet of a BIFF8 (.xls) workbook.
func parseLegacySpreadsheet(r io.Reader) (records []Record, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, parseFault(err, FormatLegacySpreadsheet, "read workbook")
	}
	if err := checkCompoundFile(data); err != nil {
		return nil, parseFault(err, FormatLegacySpreadsheet, "open workbook")
	}

	// The BIFF decoder indexes record payloads without bounds checks.
	defer func() {
		if p := recover(); p != nil {
			records = nil
			err = parseFault(fmt.Errorf("malformed workbook: %v", p), FormatLegacySpreadsheet, "read first sheet")
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, parseFault(err, FormatLegacySpreadsheet, "open workbook")
	}
	if wb == nil {
		return nil, parseFault(errNoWorkbookStream, FormatLegacySpreadsheet, "open workbook")
	}
	if wb.NumSheets() == 0 {
		return nil, apperrors.New(apperrors.ErrCodeParseFault, "workbook has no sheets").
			WithContext("format", FormatLegacySpreadsheet.String()).
			WithUserMessage(parseUserMessage).
			WithCause(ErrParse)
	}

	sheet := wb.GetSheet(0)
	header := sheetRow(sheet, 0)
	if header == nil {
		return []Record{}, nil
	}

	cols := mapColumns(header)
	records = []Record{}
	for i := 1; i <= int(sheet.MaxRow); i++ {
		row := sheetRow(sheet, i)
		if row == nil {
			continue
		}
		if rec, ok := cols.build(row); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// checkCompoundFile walks the OLE2 container and reads the workbook stream
// end to end. The BIFF decoder exits the process on a broken sector chain,
// so only containers that pass here are handed to it.
func checkCompoundFile(data []byte) error {
	doc, err := mscfb.New(bytes.NewReader(data))
	if err != nil {
		return err
	}
	for {
		entry, err := doc.Next()
		if errors.Is(err, io.EOF) {
			return errNoWorkbookStream
		}
		if err != nil {
			return err
		}
		if entry.Name != "Workbook" && entry.Name != "Book" {
			continue
		}
		n, err := io.Copy(io.Discard, entry)
		if err != nil {
			return err
		}
		if n != entry.Size {
			return fmt.Errorf("workbook stream truncated: read %d of %d bytes", n, entry.Size)
		}
		return nil
	}
}

// sheetRow returns the cells of row i, or nil when the sheet stores nothing
// for that row.
func sheetRow(sheet *xls.WorkSheet, i int) []string {
	row := storedRow(sheet, i)
	if row == nil {
		return nil
	}
	width := biffMaxColumns
	if last := row.LastCol(); last > 0 && last < width {
		width = last
	}
	cells := make([]string, width)
	for j := range cells {
		cells[j] = row.Col(j)
	}
	for len(cells) > 0 && strings.TrimSpace(cells[len(cells)-1]) == "" {
		cells = cells[:len(cells)-1]
	}
	return cells
}

// storedRow guards WorkSheet.Row, which dereferences rows that were never
// written.
func storedRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}
