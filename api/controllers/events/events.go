package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/sareehub-backend/api/responses"
	"github.com/angelmondragon/sareehub-backend/internal/realtime"
	pkgerrors "github.com/angelmondragon/sareehub-backend/pkg/errors"
	"github.com/angelmondragon/sareehub-backend/pkg/logger"
)

const defaultHeartbeat = 25 * time.Second

// Stream serves the admin Server-Sent-Events feed of domain events.
// An optional types query parameter (comma separated) filters by event type.
func Stream(hub *realtime.Hub, heartbeat time.Duration, logg *logger.Logger) http.HandlerFunc {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if hub == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "realtime disabled"))
			return
		}

		rc := http.NewResponseController(w)
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		if err := rc.Flush(); err != nil {
			if logg != nil {
				logg.Error(ctx, "sse flush unsupported", err)
			}
			return
		}

		filter := typeFilter(r.URL.Query().Get("types"))
		client := hub.Subscribe()
		defer hub.Unsubscribe(client)
		if logg != nil {
			logg.Info(ctx, "sse client connected")
		}

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				if err := rc.Flush(); err != nil {
					return
				}
			case event, open := <-client.Events():
				if !open {
					return
				}
				if len(filter) > 0 {
					if _, ok := filter[event.Type]; !ok {
						continue
					}
				}
				if err := writeFrame(w, event); err != nil {
					if logg != nil {
						logg.Warn(logg.WithField(ctx, "error", err.Error()), "sse write failed")
					}
					return
				}
				if err := rc.Flush(); err != nil {
					return
				}
			}
		}
	}
}

func writeFrame(w http.ResponseWriter, event realtime.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Type, data)
	return err
}

func typeFilter(raw string) map[string]struct{} {
	filter := map[string]struct{}{}
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			filter[trimmed] = struct{}{}
		}
	}
	return filter
}
