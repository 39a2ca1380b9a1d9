package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/odvcencio/leadsplit/pkg/config"
	"github.com/odvcencio/leadsplit/pkg/storage"
)

// isolateConfig points config discovery and the database at a temp dir.
func isolateConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	t.Setenv("LEADSPLIT_DB_PATH", filepath.Join(dir, "leadsplit.db"))
	return dir
}

func TestExitCodeForError(t *testing.T) {
	if got := exitCodeForError(nil); got != exitOK {
		t.Fatalf("nil error exit=%d", got)
	}
	if got := exitCodeForError(errors.New("boom")); got != exitError {
		t.Fatalf("plain error exit=%d", got)
	}
	wrapped := withExitCode(errors.New("bad config"), exitConfig)
	if got := exitCodeForError(wrapped); got != exitConfig {
		t.Fatalf("coded error exit=%d", got)
	}
	if got := exitCodeForError(errors.Join(errors.New("outer"), wrapped)); got != exitConfig {
		t.Fatalf("joined coded error exit=%d", got)
	}
	if withExitCode(nil, exitConfig) != nil {
		t.Fatalf("withExitCode(nil) should stay nil")
	}
}

func TestRunHelpVersionAndUnknown(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run([]string{"version"}, &out, &errOut); code != exitOK {
		t.Fatalf("version exit=%d", code)
	}
	if !strings.HasPrefix(out.String(), "leadsplit ") {
		t.Fatalf("version output=%q", out.String())
	}

	out.Reset()
	if code := run(nil, &out, &errOut); code != exitOK || !strings.Contains(out.String(), "COMMANDS:") {
		t.Fatalf("help exit=%d output=%q", code, out.String())
	}

	if code := run([]string{"frobnicate"}, &out, &errOut); code != exitError {
		t.Fatalf("unknown command exit=%d", code)
	}
	if !strings.Contains(errOut.String(), "unknown command: frobnicate") {
		t.Fatalf("stderr=%q", errOut.String())
	}
}

func TestSplitCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "leads.csv")
	csv := "First Name,Mobile Number,Notes\nAna,1,a\nBen,2,b\nCai,3,c\nDee,4,d\nEli,5,e\n"
	if err := os.WriteFile(path, []byte(csv), 0o600); err != nil {
		t.Fatal(err)
	}

	var out, errOut bytes.Buffer
	code := run([]string{"split", "-file", path, "-agents", "Ann, Bob ,"}, &out, &errOut)
	if code != exitOK {
		t.Fatalf("split exit=%d stderr=%s", code, errOut.String())
	}

	var got splitOutput
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out.String())
	}
	if got.FileName != "leads.csv" || got.TotalRecords != 5 || len(got.PlanDigest) != 64 {
		t.Fatalf("unexpected header: %+v", got)
	}
	if len(got.Shares) != 2 {
		t.Fatalf("shares=%d want 2", len(got.Shares))
	}
	if got.Shares[0].Agent.ID != "Ann" || len(got.Shares[0].Records) != 3 {
		t.Fatalf("first share=%+v", got.Shares[0])
	}
	if got.Shares[1].Agent.Name != "Bob" || got.Shares[1].Records[0].FirstName != "Dee" {
		t.Fatalf("second share=%+v", got.Shares[1])
	}
}

func TestSplitCommandErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "leads.csv")
	if err := os.WriteFile(path, []byte("FirstName,Phone\nAna,1\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := runSplitCommand(nil, &out); exitCodeForError(err) != exitConfig {
		t.Fatalf("missing -file err=%v", err)
	}

	err := runSplitCommand([]string{"-file", path}, &out)
	if err == nil || !strings.Contains(err.Error(), "No active agents found") {
		t.Fatalf("empty roster err=%v", err)
	}

	err = runSplitCommand([]string{"-file", filepath.Join(dir, "leads.txt"), "-agents", "Ann"}, &out)
	if err == nil || !strings.Contains(err.Error(), "hint:") {
		t.Fatalf("unsupported extension err=%v", err)
	}

	bad := filepath.Join(dir, "broken.xls")
	if err := os.WriteFile(bad, []byte("not a workbook"), 0o600); err != nil {
		t.Fatal(err)
	}
	err = runSplitCommand([]string{"-file", bad, "-agents", "Ann"}, &out)
	if err == nil || !strings.Contains(err.Error(), "valid CSV, XLSX, or XLS file") {
		t.Fatalf("corrupt xls err=%v", err)
	}

	err = runSplitCommand([]string{"-file", filepath.Join(dir, "missing.csv"), "-agents", "Ann"}, &out)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file err=%v", err)
	}
}

func TestSetupAdminIsIdempotent(t *testing.T) {
	dir := isolateConfig(t)

	var out, errOut bytes.Buffer
	args := []string{"setup-admin", "-email", "Admin@Example.com", "-password", "admin123"}
	if code := run(args, &out, &errOut); code != exitOK {
		t.Fatalf("first run exit=%d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "admin@example.com created") {
		t.Fatalf("stdout=%q", out.String())
	}

	out.Reset()
	if code := run(args, &out, &errOut); code != exitOK {
		t.Fatalf("second run exit=%d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "already exists") {
		t.Fatalf("stdout=%q", out.String())
	}

	store, err := storage.New(filepath.Join(dir, "leadsplit.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	n, err := store.CountUsers(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("users=%d err=%v", n, err)
	}
}

func TestSetupAdminValidation(t *testing.T) {
	isolateConfig(t)
	t.Setenv(envAdminPassword, "")

	var out bytes.Buffer
	if err := runSetupAdminCommand([]string{"-email", "a@example.com"}, &out); exitCodeForError(err) != exitConfig {
		t.Fatalf("missing password err=%v", err)
	}
	if err := runSetupAdminCommand([]string{"-email", "a@example.com", "-password", "123"}, &out); exitCodeForError(err) != exitConfig {
		t.Fatalf("short password err=%v", err)
	}

	t.Setenv(envAdminPassword, "from-env-1")
	if err := runSetupAdminCommand([]string{"-email", "a@example.com"}, &out); err != nil {
		t.Fatalf("env password err=%v", err)
	}
}

func TestLoadConfigFailureUsesConfigExitCode(t *testing.T) {
	isolateConfig(t)
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if exitCodeForError(err) != exitConfig {
		t.Fatalf("err=%v exit=%d", err, exitCodeForError(err))
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "serve.db")
	cfg.Logging.Level = "error"

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, l) }()

	url := "http://" + l.Addr().String() + "/healthz"
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("healthz status=%d", resp.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never became ready: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}
