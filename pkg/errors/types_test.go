package errors

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeNoAgents, "no eligible agents")

	if err == nil {
		t.Fatal("New should return non-nil error")
	}

	if err.Code != ErrCodeNoAgents {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeNoAgents)
	}

	if err.Message != "no eligible agents" {
		t.Errorf("Message = %v, want 'no eligible agents'", err.Message)
	}

	if err.Underlying != nil {
		t.Error("Underlying should be nil for New error")
	}

	if !strings.HasSuffix(err.Origin, ".TestNew") {
		t.Errorf("Origin = %q, want the calling test", err.Origin)
	}
}

func TestWrap(t *testing.T) {
	underlying := errors.New("disk on fire")
	err := Wrap(underlying, ErrCodeStorageRead, "failed to read agents")

	if err == nil {
		t.Fatal("Wrap should return non-nil error")
	}

	if err.Underlying != underlying {
		t.Error("Underlying should be preserved")
	}

	if !strings.Contains(err.Error(), "disk on fire") {
		t.Error("Error string should include underlying error")
	}
}

func TestWrap_Nil(t *testing.T) {
	if err := Wrap(nil, ErrCodeInternal, "test"); err != nil {
		t.Error("Wrap of nil should return nil")
	}
}

func TestWithContext_SortedInMessage(t *testing.T) {
	err := New(ErrCodeParseFault, "bad file").
		WithContext("format", "csv").
		WithContext("bytes", 12)

	if got := err.Error(); got != "[PARSE_FAULT] bad file {bytes: 12, format: csv}" {
		t.Errorf("Error() = %q", got)
	}
}

func TestWithUserMessageAndPublic(t *testing.T) {
	err := New(ErrCodeNoUsableRows, "parsed zero rows")
	if err.Public() != "parsed zero rows" {
		t.Errorf("Public() fallback = %q", err.Public())
	}

	err.WithUserMessage("No valid data found in file.")
	if err.Public() != "No valid data found in file." {
		t.Errorf("Public() = %q", err.Public())
	}
}

func TestWithRemediation(t *testing.T) {
	err := New(ErrCodeUnsupportedFormat, "xls").WithRemediation("convert to .xlsx")
	if len(err.Remediation) != 1 || err.Remediation[0] != "convert to .xlsx" {
		t.Errorf("Remediation = %v", err.Remediation)
	}

	same := err.WithRemediation()
	if len(same.Remediation) != 1 {
		t.Error("empty remediation should not reset tips")
	}
}

func TestWithCause_MatchesBoth(t *testing.T) {
	sentinel := errors.New("sentinel")

	err := Wrap(io.ErrUnexpectedEOF, ErrCodeParseFault, "read failed").WithCause(sentinel)
	if !errors.Is(err, sentinel) {
		t.Error("expected sentinel match")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("expected underlying match")
	}
	if strings.Contains(err.Error(), "sentinel") {
		t.Errorf("sentinel should not be printed: %q", err.Error())
	}

	bare := New(ErrCodeNoAgents, "none").WithCause(sentinel)
	if !errors.Is(bare, sentinel) {
		t.Error("expected sentinel match on bare error")
	}
}

func TestIsCodeAndGetCode(t *testing.T) {
	err := New(ErrCodeNotFound, "agent missing")
	wrapped := fmt.Errorf("handler: %w", err)

	if !IsCode(wrapped, ErrCodeNotFound) {
		t.Error("IsCode should see through fmt wrapping")
	}
	if IsCode(wrapped, ErrCodeConflict) {
		t.Error("IsCode matched the wrong code")
	}
	if IsCode(nil, ErrCodeNotFound) {
		t.Error("IsCode(nil) should be false")
	}

	if GetCode(wrapped) != ErrCodeNotFound {
		t.Errorf("GetCode = %v", GetCode(wrapped))
	}
	if GetCode(errors.New("plain")) != ErrCodeInternal {
		t.Error("plain errors should map to INTERNAL")
	}
	if GetCode(nil) != "" {
		t.Error("GetCode(nil) should be empty")
	}
}

func TestLogValue(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := Wrap(io.ErrUnexpectedEOF, ErrCodeParseFault, "read data row").WithContext("format", "csv")
	logger.Error("upload failed", "error", err)

	var line struct {
		Error map[string]any `json:"error"`
	}
	if jerr := json.Unmarshal(buf.Bytes(), &line); jerr != nil {
		t.Fatalf("decode log line: %v\n%s", jerr, buf.String())
	}
	if line.Error["code"] != "PARSE_FAULT" || line.Error["format"] != "csv" {
		t.Errorf("unexpected error group: %v", line.Error)
	}
	if line.Error["cause"] != io.ErrUnexpectedEOF.Error() {
		t.Errorf("cause = %v", line.Error["cause"])
	}
	if !strings.HasSuffix(line.Error["origin"].(string), ".TestLogValue") {
		t.Errorf("origin = %v", line.Error["origin"])
	}
}
