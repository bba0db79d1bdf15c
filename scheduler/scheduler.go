package scheduler

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/weathermail/weathermail/processing"
	"github.com/weathermail/weathermail/webutil"
)

const runTimeout = 10 * time.Minute

// Scheduler triggers the daily digest pipeline on a cron expression in a
// configurable timezone. Overlapping runs are not locked out; at the daily
// cadence a run is expected to finish well inside the trigger interval.
type Scheduler struct {
	cronEngine *cron.Cron
	processor  *processing.DigestProcessor
	cronSpec   string
}

// New creates a Scheduler. An empty or invalid timezone name falls back to
// the server's local time.
func New(processor *processing.DigestProcessor, cronSpec, timezone string) *Scheduler {
	location := time.Local
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			log.Printf("WARN (Scheduler): Invalid CRON_TZ %q, using local time: %v", timezone, err)
		} else {
			location = loc
		}
	}

	return &Scheduler{
		cronEngine: cron.New(cron.WithLocation(location)),
		processor:  processor,
		cronSpec:   cronSpec,
	}
}

// Start registers the daily digest job and starts the cron engine.
func (s *Scheduler) Start() error {
	_, err := s.cronEngine.AddFunc(s.cronSpec, func() {
		log.Println("INFO (Scheduler): Cron job triggered for daily digest")
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		if _, err := s.processor.Run(ctx); err != nil {
			log.Printf("ERROR (Scheduler): Digest run failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("could not add daily digest cron job: %w", err)
	}

	s.cronEngine.Start()
	log.Printf("INFO (Scheduler): Daily digest scheduled with spec %q", s.cronSpec)
	return nil
}

// Stop halts the cron engine and waits for any in-flight run to finish.
func (s *Scheduler) Stop() {
	log.Println("INFO (Scheduler): Stopping scheduler...")
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
	log.Println("INFO (Scheduler): Scheduler stopped")
}

// HandleTick triggers one digest run over HTTP. Mounted behind the admin key
// middleware for manual or external-scheduler invocation.
func (s *Scheduler) HandleTick(w http.ResponseWriter, r *http.Request) error {
	log.Println("INFO (Scheduler): Digest tick triggered via HTTP")

	stats, err := s.processor.Run(r.Context())
	if err != nil {
		return webutil.ErrServiceUnavailableWrap("Digest run could not proceed.", err)
	}

	webutil.RespondWithJSON(w, http.StatusOK, map[string]any{
		"message":  "Digest run complete.",
		"eligible": stats.Eligible,
		"sent":     stats.Sent,
		"failed":   stats.Failed,
	})
	return nil
}
