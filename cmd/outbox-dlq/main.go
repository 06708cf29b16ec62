// Command outbox-dlq inspects and redrives outbox events the publisher parked.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/angelmondragon/sareehub-backend/pkg/config"
	"github.com/angelmondragon/sareehub-backend/pkg/db"
	"github.com/angelmondragon/sareehub-backend/pkg/db/models"
	"github.com/angelmondragon/sareehub-backend/pkg/enums"
	"github.com/angelmondragon/sareehub-backend/pkg/logger"
	"github.com/angelmondragon/sareehub-backend/pkg/outbox"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "outbox-dlq"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "list", "dlq command: list|redrive")
	eventType := flag.String("event-type", "", "filter list by event type")
	reason := flag.String("reason", "", "filter list by reason (max_attempts|non_retryable)")
	limit := flag.Int("limit", 50, "rows to list")
	ids := flag.String("ids", "", "comma separated event ids to redrive")
	flag.Parse()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)
	logg = logger.New(logger.Options{
		ServiceName: "outbox-dlq",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()
	repo := outbox.NewDLQRepository(dbClient.DB())

	switch *cmd {
	case "list":
		filter, err := listFilter(*eventType, *reason, *limit)
		requireResource(ctx, logg, "filter", err)
		rows, err := repo.List(ctx, filter)
		requireResource(ctx, logg, "dlq list", err)
		printEntries(rows)
	case "redrive":
		eventIDs, err := parseIDs(*ids)
		requireResource(ctx, logg, "ids", err)
		for _, id := range eventIDs {
			err := dbClient.WithTx(ctx, func(tx *gorm.DB) error {
				return repo.Redrive(ctx, tx, id)
			})
			requireResource(logg.WithField(ctx, "event_id", id.String()), logg, "dlq redrive", err)
		}
		logg.Info(logg.WithField(ctx, "redriven", len(eventIDs)), "dlq events returned to the outbox")
	default:
		requireResource(ctx, logg, "command", fmt.Errorf("unknown -cmd value %q", *cmd))
	}
}

func listFilter(eventType, reason string, limit int) (outbox.DLQFilter, error) {
	filter := outbox.DLQFilter{Limit: limit}
	if eventType != "" {
		parsed, err := enums.ParseOutboxEventType(eventType)
		if err != nil {
			return filter, err
		}
		filter.EventType = parsed
	}
	if reason != "" {
		r := enums.OutboxDLQErrorReason(strings.TrimSpace(reason))
		if !r.IsValid() {
			return filter, fmt.Errorf("invalid reason %q", reason)
		}
		filter.Reason = r
	}
	return filter, nil
}

func parseIDs(raw string) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part == "" {
			continue
		}
		id, err := uuid.Parse(part)
		if err != nil {
			return nil, fmt.Errorf("event id %q: %w", part, err)
		}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, errors.New("missing -ids")
	}
	return out, nil
}

func printEntries(rows []models.OutboxDLQ) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EVENT ID\tTYPE\tREASON\tATTEMPTS\tFAILED AT\tERROR")
	for _, row := range rows {
		msg := ""
		if row.ErrorMessage != nil {
			msg = *row.ErrorMessage
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			row.EventID, row.EventType, row.ErrorReason, row.AttemptCount, row.FailedAt.Format(time.RFC3339), msg)
	}
	_ = w.Flush()
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
