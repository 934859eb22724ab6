package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where `create` writes new files; it is the same tree the
// binaries embed.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Embedded returns the migration set compiled into the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(fmt.Sprintf("migrate: embedded migrations: %v", err))
	}
	return sub
}

// Result is one applied or rolled back migration.
type Result struct {
	Version int64
	Path    string
	Applied bool
}

// Runner applies the postgres migration set through a goose provider.
type Runner struct {
	provider *goose.Provider
}

// NewRunner binds migrations in fsys to db. A nil fsys uses the embedded set.
func NewRunner(db *sql.DB, fsys fs.FS) (*Runner, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if fsys == nil {
		fsys = Embedded()
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Runner{provider: provider}, nil
}

// Up applies every pending migration.
func (r *Runner) Up(ctx context.Context) ([]Result, error) {
	results, err := r.provider.Up(ctx)
	if err != nil {
		return toResults(results), fmt.Errorf("goose up: %w", err)
	}
	return toResults(results), nil
}

// Down rolls back the most recent migration.
func (r *Runner) Down(ctx context.Context) ([]Result, error) {
	result, err := r.provider.Down(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose down: %w", err)
	}
	return toResults([]*goose.MigrationResult{result}), nil
}

// Status reports every known migration and whether it is applied.
func (r *Runner) Status(ctx context.Context) ([]Result, error) {
	statuses, err := r.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose status: %w", err)
	}
	out := make([]Result, 0, len(statuses))
	for _, st := range statuses {
		if st == nil || st.Source == nil {
			continue
		}
		out = append(out, Result{
			Version: st.Source.Version,
			Path:    st.Source.Path,
			Applied: st.State == goose.StateApplied,
		})
	}
	return out, nil
}

// To moves the database up or down to target, formatted YYYYMMDDHHMMSS.
func (r *Runner) To(ctx context.Context, target string) ([]Result, error) {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil || len(target) != versionLen {
		return nil, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", target)
	}
	current, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("get db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current == version:
		return nil, nil
	case current < version:
		results, err = r.provider.UpTo(ctx, version)
	default:
		results, err = r.provider.DownTo(ctx, version)
	}
	if err != nil {
		return toResults(results), fmt.Errorf("goose migrate to %d: %w", version, err)
	}
	return toResults(results), nil
}

func toResults(results []*goose.MigrationResult) []Result {
	out := make([]Result, 0, len(results))
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		out = append(out, Result{
			Version: res.Source.Version,
			Path:    res.Source.Path,
			Applied: res.Direction == "up",
		})
	}
	return out
}
