package app

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCSVLogHeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "run.csv")
	l, err := openCSVLog(path, 10)
	if err != nil {
		t.Fatalf("openCSVLog: %v", err)
	}

	at := time.Date(2026, 3, 14, 15, 9, 26, 535_000_000, time.UTC)
	if err := l.append(at, 400, 600); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	if err != nil {
		t.Fatalf("parse log: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header plus one row, got %d records", len(records))
	}
	if got, want := strings.Join(records[0], ","), "Timestamp,Pressure1,Pressure2"; got != want {
		t.Fatalf("unexpected header %q", got)
	}
	if records[1][0] != "2026-03-14T15:09:26.535" {
		t.Fatalf("unexpected timestamp %q", records[1][0])
	}
	if records[1][1] != "400" || records[1][2] != "600" {
		t.Fatalf("unexpected values %v", records[1][1:])
	}
}

func TestCSVLogTruncatesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.csv")
	if err := os.WriteFile(path, []byte("stale content\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	l, err := openCSVLog(path, 10)
	if err != nil {
		t.Fatalf("openCSVLog: %v", err)
	}
	if err := l.close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if strings.Contains(string(data), "stale") {
		t.Fatalf("expected previous content to be overwritten")
	}
}

func TestCSVLogFlushPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.csv")
	l, err := openCSVLog(path, 1000)
	if err != nil {
		t.Fatalf("openCSVLog: %v", err)
	}

	at := time.Now()
	for i := 0; i < 2500; i++ {
		if err := l.append(at, uint16(i), uint16(i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if l.flushes < 2 {
		t.Fatalf("expected at least 2 flushes before close, got %d", l.flushes)
	}
	if err := l.close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Count(string(data), "\n")
	if lines != 2501 {
		t.Fatalf("expected 2501 lines (header + 2500 rows), got %d", lines)
	}
}

func TestCSVLogCloseTwice(t *testing.T) {
	l, err := openCSVLog(filepath.Join(t.TempDir(), "run.csv"), 10)
	if err != nil {
		t.Fatalf("openCSVLog: %v", err)
	}
	if err := l.close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := l.close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
