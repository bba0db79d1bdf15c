package processing

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/weathermail/weathermail/models"
	"github.com/weathermail/weathermail/weather"
)

const defaultMaxConcurrentSends = 8

// SubscriberStore is the slice of the datastore the digest pipeline needs.
type SubscriberStore interface {
	Ping(ctx context.Context) error
	ListActive(ctx context.Context) ([]models.Subscriber, error)
	MarkDigestSent(ctx context.Context, email string) error
}

// WeatherLookup produces the weather bundle for a city. Implementations must
// degrade to fallback data rather than fail; the pipeline never blocks on
// this dependency being perfectly available.
type WeatherLookup interface {
	FetchForCity(ctx context.Context, city string) weather.Report
}

// DigestSender dispatches one rendered digest email.
type DigestSender interface {
	SendDailyWeatherEmail(ctx context.Context, recipient string, report weather.Report) error
}

// RunStats summarizes one digest batch run.
type RunStats struct {
	Eligible int
	Sent     int
	Failed   int
}

// DigestProcessor executes one batch run of the daily digest. One
// subscriber's failure never prevents delivery to others: each subscriber's
// lookup-send-stamp sequence is isolated, and the run completes after every
// sequence has settled.
type DigestProcessor struct {
	store          SubscriberStore
	weatherLookup  WeatherLookup
	sender         DigestSender
	maxConcurrency int
}

func NewDigestProcessor(store SubscriberStore, weatherLookup WeatherLookup, sender DigestSender) *DigestProcessor {
	return &DigestProcessor{
		store:          store,
		weatherLookup:  weatherLookup,
		sender:         sender,
		maxConcurrency: defaultMaxConcurrentSends,
	}
}

// Run performs one digest batch. It returns an error only when the run as a
// whole could not proceed (store unreachable, batch selection failed);
// per-subscriber failures are logged, counted, and contained.
func (p *DigestProcessor) Run(ctx context.Context) (RunStats, error) {
	runID := uuid.NewString()

	if err := p.store.Ping(ctx); err != nil {
		return RunStats{}, fmt.Errorf("store unreachable, skipping digest run: %w", err)
	}

	subscribers, err := p.store.ListActive(ctx)
	if err != nil {
		return RunStats{}, fmt.Errorf("failed to list active subscribers: %w", err)
	}

	stats := RunStats{Eligible: len(subscribers)}
	if len(subscribers) == 0 {
		log.Printf("INFO (Digest): Run %s: no active subscribers, nothing to send", runID)
		return stats, nil
	}

	log.Printf("INFO (Digest): Run %s: sending daily weather email to %d subscriber(s)", runID, len(subscribers))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxConcurrency)

	for _, sub := range subscribers {
		sub := sub
		g.Go(func() error {
			// Failures are contained here so sibling sends are never
			// cancelled and the batch always settles in full.
			if err := p.deliverOne(gctx, sub); err != nil {
				log.Printf("ERROR (Digest): Run %s: failed to send daily email to %s: %v", runID, sub.Email, err)
				mu.Lock()
				stats.Failed++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			stats.Sent++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	log.Printf("INFO (Digest): Run %s complete: %d sent, %d failed of %d eligible",
		runID, stats.Sent, stats.Failed, stats.Eligible)
	return stats, nil
}

// deliverOne runs the strictly ordered lookup-send-stamp sequence for a
// single subscriber. The digest timestamp is stamped only after a confirmed
// successful send, never speculatively.
func (p *DigestProcessor) deliverOne(ctx context.Context, sub models.Subscriber) error {
	report := p.weatherLookup.FetchForCity(ctx, sub.City)

	if err := p.sender.SendDailyWeatherEmail(ctx, sub.Email, report); err != nil {
		return err
	}

	if err := p.store.MarkDigestSent(ctx, sub.Email); err != nil {
		// The email went out; the missing stamp only means the subscriber
		// is retried on the next run.
		return fmt.Errorf("email sent but failed to stamp delivery: %w", err)
	}
	return nil
}
