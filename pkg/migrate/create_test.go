package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCreateAtBumpsPastNewestVersion(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	first, err := createAt(dir, "add dealer index", now)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := createAt(dir, "add alert index", now)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if filepath.Base(first) != "20260301090000_add_dealer_index.sql" {
		t.Fatalf("unexpected first file %s", filepath.Base(first))
	}
	if filepath.Base(second) != "20260301090001_add_alert_index.sql" {
		t.Fatalf("unexpected second file %s", filepath.Base(second))
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("generated files failed validation: %v", err)
	}
}

func TestCreateAtRejectsEmptySlug(t *testing.T) {
	if _, err := createAt(t.TempDir(), "!!!", time.Now()); err == nil {
		t.Fatal("expected empty slug error")
	}
}

func TestCreateAtWritesBothDirections(t *testing.T) {
	path, err := createAt(t.TempDir(), "Backfill Rollups", time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, want := range []string{"-- +goose Up", "-- +goose Down", "-- rollback backfill_rollups"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("missing %q in template", want)
		}
	}
}
