package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/fieldstock-backend/pkg/config"
	"github.com/angelmondragon/fieldstock-backend/pkg/db"
	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
	"github.com/angelmondragon/fieldstock-backend/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

func main() {
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "migration command: up|down|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", "", "migrations directory (default: embedded set; create/validate use "+migrate.DefaultDir+")")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	os.Exit(run(opts, os.Stdout, os.Stderr))
}

func run(opts options, stdout, stderr io.Writer) int {
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			fmt.Fprintln(stderr, "missing -name for create")
			return 1
		}
		path, err := migrate.CreateSQLMigration(dirOrDefault(opts.dir), opts.name)
		if err != nil {
			fmt.Fprintf(stderr, "failed to create migration: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, "created migration:", path)
		return 0
	case "validate":
		err := migrate.ValidateFS(migrate.Embedded())
		if opts.dir != "" {
			err = migrate.ValidateDir(opts.dir)
		}
		if err != nil {
			fmt.Fprintf(stderr, "migration validation failed: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, "migration validation passed")
		return 0
	case "up", "down", "status", "version":
	default:
		fmt.Fprintln(stderr, "unknown -cmd value:", opts.cmd)
		return 1
	}
	if opts.cmd == "version" && opts.version == "" {
		fmt.Fprintln(stderr, "missing -version for version command")
		return 1
	}

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "resource not working: config", err)
		return 1
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": opts.cmd,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "resource not working: database", err)
		return 1
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		logg.Error(ctx, "resource not working: sql database", err)
		return 1
	}

	var source = migrate.Embedded()
	if opts.dir != "" {
		source = os.DirFS(opts.dir)
	}
	runner, err := migrate.NewRunner(sqlDB, source)
	if err != nil {
		logg.Error(ctx, "migration setup failed", err)
		return 1
	}

	var results []migrate.Result
	switch opts.cmd {
	case "up":
		results, err = runner.Up(ctx)
	case "down":
		results, err = runner.Down(ctx)
	case "status":
		results, err = runner.Status(ctx)
	case "version":
		results, err = runner.To(ctx, opts.version)
	}
	printResults(stdout, opts.cmd, results)
	if err != nil {
		fmt.Fprintf(stderr, "goose %s failed: %v\n", opts.cmd, err)
		return 1
	}
	logg.Info(logg.WithField(ctx, "migrations", len(results)), "migrate complete")
	return 0
}

func printResults(w io.Writer, cmd string, results []migrate.Result) {
	for _, res := range results {
		state := "pending"
		if res.Applied {
			state = "applied"
		}
		if cmd == "down" || (cmd == "version" && !res.Applied) {
			state = "rolled back"
		}
		fmt.Fprintf(w, "%-14d %-12s %s\n", res.Version, state, res.Path)
	}
}

func dirOrDefault(dir string) string {
	if dir == "" {
		return migrate.DefaultDir
	}
	return dir
}
