// Package ingest turns uploaded contact sheets (CSV, XLSX or XLS) into
// normalized records. Column headers are matched loosely so that "First Name",
// "first_name" and "FIRSTNAME" all land in the same field; rows missing a
// first name or phone are dropped.
package ingest

import "strings"

// Record is one normalized contact entry.
type Record struct {
	FirstName string `json:"firstName"`
	Phone     string `json:"phone"`
	Notes     string `json:"notes"`
}

// HeaderClass is the logical field a source column maps to.
type HeaderClass int

const (
	HeaderUnrecognized HeaderClass = iota
	HeaderFirstName
	HeaderPhone
	HeaderNotes
)

func (c HeaderClass) String() string {
	switch c {
	case HeaderFirstName:
		return "first_name"
	case HeaderPhone:
		return "phone"
	case HeaderNotes:
		return "notes"
	default:
		return "unrecognized"
	}
}

var (
	firstNameMarkers = []string{"firstname", "first_name", "first name"}
	phoneMarkers     = []string{"phone", "mobile"}
	notesMarkers     = []string{"notes", "note"}
)

// ClassifyHeader maps a raw column header to a logical field. Matching is a
// case-insensitive substring test checked in first name, phone, notes order.
func ClassifyHeader(header string) HeaderClass {
	key := strings.ToLower(strings.TrimSpace(header))
	switch {
	case containsAny(key, firstNameMarkers):
		return HeaderFirstName
	case containsAny(key, phoneMarkers):
		return HeaderPhone
	case containsAny(key, notesMarkers):
		return HeaderNotes
	default:
		return HeaderUnrecognized
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// columnMap holds the source column index for each recognized field, or -1.
type columnMap struct {
	firstName int
	phone     int
	notes     int
}

// mapColumns classifies a header row. When several headers classify to the
// same field the right-most one wins.
func mapColumns(headers []string) columnMap {
	cols := columnMap{firstName: -1, phone: -1, notes: -1}
	for i, h := range headers {
		switch ClassifyHeader(h) {
		case HeaderFirstName:
			cols.firstName = i
		case HeaderPhone:
			cols.phone = i
		case HeaderNotes:
			cols.notes = i
		}
	}
	return cols
}

// build turns a data row into a record. ok is false when the row lacks a
// first name or phone and must be dropped.
func (c columnMap) build(cells []string) (Record, bool) {
	rec := Record{
		FirstName: cell(cells, c.firstName),
		Phone:     cell(cells, c.phone),
		Notes:     cell(cells, c.notes),
	}
	if rec.FirstName == "" || rec.Phone == "" {
		return Record{}, false
	}
	return rec, true
}

func cell(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[idx])
}
