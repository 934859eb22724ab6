package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/angelmondragon/fieldstock-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("ValidateDir: %v", err)
	}
}

func TestMigrationsContainGuards(t *testing.T) {
	tests := []struct {
		file   string
		checks []string
	}{
		{
			file: "create_stock_movement_events",
			checks: []string{
				"CONSTRAINT ux_stock_movement_events_idempotency_key UNIQUE (idempotency_key)",
				"CHECK (quantity_delta <> 0)",
				"DROP TABLE IF EXISTS stock_movement_events",
			},
		},
		{
			file: "create_demand_rollups",
			checks: []string{
				"PRIMARY KEY (location_id, part_id, day)",
				"CHECK (demand_count >= 0)",
			},
		},
		{
			file: "create_forecast_snapshots",
			checks: []string{
				"CHECK (window_days IN (7, 30, 90))",
				"CHECK (confidence_score BETWEEN 0 AND 100)",
				"CHECK (length(btrim(primary_reason)) > 0)",
			},
		},
		{
			file: "create_reorder_recommendations",
			checks: []string{
				"CHECK (recommended_qty > 0)",
				"CHECK (status <> 'rejected' OR length(btrim(coalesce(notes, ''))) > 0)",
				"CHECK (status NOT IN ('approved', 'ordered') OR approved_by IS NOT NULL)",
				"WHERE status = 'proposed'",
			},
		},
		{
			file: "create_inventory_alerts",
			checks: []string{
				"ux_inventory_alerts_open_pair",
				"WHERE resolved_at IS NULL",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			content := readMigration(t, tt.file)
			for _, sub := range tt.checks {
				if !strings.Contains(content, sub) {
					t.Errorf("missing expected statement %q", sub)
				}
			}
		})
	}
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Dealer Index!")
	if err != nil {
		t.Fatalf("CreateSQLMigration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_dealer_index.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration failed validation: %v", err)
	}
}

func TestEmbeddedMigrationsMatchDir(t *testing.T) {
	if err := migrate.ValidateFS(migrate.Embedded()); err != nil {
		t.Fatalf("ValidateFS(embedded): %v", err)
	}
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	embedded, err := fs.Glob(migrate.Embedded(), "*.sql")
	if err != nil {
		t.Fatalf("glob embedded: %v", err)
	}
	if len(onDisk) != len(embedded) {
		t.Fatalf("embedded set has %d files, dir has %d", len(embedded), len(onDisk))
	}
}

func TestValidateFSRejectsBrokenFiles(t *testing.T) {
	cases := map[string]string{
		"20260301090000_ok.sql":  "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose StatementEnd\n-- +goose Down\n",
		"20260301090100_bad.sql": "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n",
	}
	fsys := fstest.MapFS{}
	for name, body := range cases {
		fsys[name] = &fstest.MapFile{Data: []byte(body)}
	}
	err := migrate.ValidateFS(fsys)
	if err == nil || !strings.Contains(err.Error(), "StatementBegin") {
		t.Fatalf("expected unbalanced block error, got %v", err)
	}

	delete(fsys, "20260301090100_bad.sql")
	fsys["20260301090000_dup.sql"] = &fstest.MapFile{Data: []byte(cases["20260301090000_ok.sql"])}
	if err := migrate.ValidateFS(fsys); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate version error, got %v", err)
	}
}
