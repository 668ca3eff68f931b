package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fielddispatch/internal/api/response"
	"github.com/kiranshivaraju/fielddispatch/internal/realtime"
)

// DefaultHeartbeat keeps idle proxies from closing the stream.
const DefaultHeartbeat = 25 * time.Second

// Broadcaster is the subscription side of *realtime.Hub.
type Broadcaster interface {
	Subscribe(tenantID uuid.UUID, groups ...string) *realtime.Subscriber
	Unsubscribe(s *realtime.Subscriber)
}

// NewStreamHandler handles GET /api/v1/stream as a server-sent event stream.
// Every client joins its tenant group. Passing job_id also joins that job's
// group once the job is confirmed to belong to the caller's tenant.
func NewStreamHandler(hub Broadcaster, jobs JobService, heartbeat time.Duration) http.HandlerFunc {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOf(w, r)
		if !ok {
			return
		}

		groups := []string{realtime.TenantGroup(actor.TenantID)}
		if v := r.URL.Query().Get("job_id"); v != "" {
			jobID, err := uuid.Parse(v)
			if err != nil {
				response.BadRequest(w, "Invalid job ID format", nil)
				return
			}
			if _, err := jobs.GetJob(r.Context(), actor, jobID); err != nil {
				writeServiceError(w, r, err)
				return
			}
			groups = append(groups, realtime.JobGroup(jobID))
		}

		rc := http.NewResponseController(w)
		// Streams outlive the server's write timeout.
		_ = rc.SetWriteDeadline(time.Time{})

		sub := hub.Subscribe(actor.TenantID, groups...)
		defer hub.Unsubscribe(sub)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			slog.Warn("stream flush unsupported", "error", err)
			return
		}

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
			case n, ok := <-sub.C:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", n.Event, n.Payload); err != nil {
					return
				}
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
