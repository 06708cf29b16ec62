package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/sareehub-backend/pkg/config"
	"github.com/angelmondragon/sareehub-backend/pkg/db"
	"github.com/angelmondragon/sareehub-backend/pkg/logger"
	"github.com/angelmondragon/sareehub-backend/pkg/migrate"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate")
	dir := flag.String("dir", migrate.DefaultDir, "goose migrations directory")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// create and validate only touch the filesystem.
	switch *cmd {
	case "create":
		if *name == "" {
			requireResource(ctx, logg, "create", errors.New("missing -name"))
		}
		path, err := migrate.CreateSQLMigration(*dir, *name)
		requireResource(ctx, logg, "create", err)
		fmt.Println("created migration:", path)
		return
	case "validate":
		requireResource(ctx, logg, "validate", migrate.ValidateDir(*dir))
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
		"dir": *dir,
	})

	if cfg.FeatureFlags.UseSQLite {
		requireResource(ctx, logg, "dialect", errors.New("goose migrations target postgres; sqlite builds its schema through dev auto-migrate"))
	}

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)

	// The embedded set is used unless -dir points somewhere else.
	source := migrate.Embedded()
	if *dir != migrate.DefaultDir {
		source = os.DirFS(*dir)
	}
	runner, err := migrate.NewRunner(sqlDB, source)
	requireResource(ctx, logg, "goose provider", err)

	switch *cmd {
	case "up":
		applied, err := runner.Up(ctx)
		requireResource(ctx, logg, "goose up", err)
		ctx = logg.WithField(ctx, "applied", applied)
	case "down":
		requireResource(ctx, logg, "goose down", runner.Down(ctx))
	case "status":
		statuses, err := runner.Status(ctx)
		requireResource(ctx, logg, "goose status", err)
		for _, st := range statuses {
			applied := "pending"
			if !st.AppliedAt.IsZero() {
				applied = st.AppliedAt.Format(time.RFC3339)
			}
			fmt.Printf("%-40s %s\n", filepath.Base(st.Source.Path), applied)
		}
	case "version":
		if *version == "" {
			requireResource(ctx, logg, "version", errors.New("missing -version"))
		}
		requireResource(ctx, logg, "goose version", runner.To(ctx, *version))
	default:
		requireResource(ctx, logg, "command", fmt.Errorf("unknown -cmd value %q", *cmd))
	}
	logg.Info(ctx, "migration command completed")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
