package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"pkgcheck/config"
	"pkgcheck/logger"
)

func init() {
	logger.Init("error")
}

func testConfig(root, out string) *config.Config {
	return &config.Config{
		Path:             root,
		Mode:             config.ModeAuto,
		OutputFormat:     "json",
		OutputFileName:   out,
		ConcurrencyLevel: 2,
		LogLevel:         "error",
		NoColor:          true,
	}
}

func TestHandleSignalEventCancelsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)

	done := make(chan struct{})
	go func() {
		handleSignalEvent(cancel, sigChan)
		close(done)
	}()

	sigChan <- syscall.SIGTERM

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expected context to be canceled")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("signal handler did not return")
	}
}

func TestRunWritesReportAndTable(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"abc_test_v1.dll", "prod.dll", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	out := filepath.Join(t.TempDir(), "report.json")
	cfg := testConfig(root, out)
	cfg.Includes = []string{"file_path=*test*"}

	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), cfg, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout.String(), "Files shown: 1. Files hidden: 1.") {
		t.Fatalf("missing status line:\n%s", stdout.String())
	}
	if !strings.Contains(stdout.String(), "abc_test_v1.dll") || strings.Contains(stdout.String(), "prod.dll") {
		t.Fatalf("unexpected table:\n%s", stdout.String())
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var report struct {
		Files []struct {
			FilePath string `json:"file_path"`
		} `json:"files"`
		Summary struct {
			Status string `json:"status"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("report: %v\n%s", err, data)
	}
	if len(report.Files) != 1 || report.Files[0].FilePath != "abc_test_v1.dll" {
		t.Fatalf("unexpected files: %+v", report.Files)
	}
	if report.Summary.Status != "Files shown: 1. Files hidden: 1." {
		t.Fatalf("unexpected status %q", report.Summary.Status)
	}
}

func TestRunEmptyDirectory(t *testing.T) {
	var stdout bytes.Buffer
	if err := run(context.Background(), testConfig(t.TempDir(), ""), &stdout, &bytes.Buffer{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout.String(), "Files shown: 0. Files hidden: 0.") {
		t.Fatalf("missing status line:\n%s", stdout.String())
	}
}

func TestRunRejectsUnsupportedRoot(t *testing.T) {
	file := filepath.Join(t.TempDir(), "pkg.tar")
	os.WriteFile(file, nil, 0o644)
	if err := run(context.Background(), testConfig(file, ""), &bytes.Buffer{}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unsupported root")
	}
}
