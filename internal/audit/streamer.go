package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/erikldr/sortear/internal/canonical"
)

// Producer is the subset of Kafka producer behavior the streamer needs.
type Producer interface {
	Produce(ctx context.Context, key []byte, value []byte) (producedAt time.Time, err error)
	Close() error
}

// StreamSource is the claim/mark surface the streamer requires from the
// audit store. PGStore implements it.
type StreamSource interface {
	FetchPendingEvents(ctx context.Context, limit int) ([]*Event, error)
	MarkStreamResult(ctx context.Context, id string, archivedKey sql.NullString, ok bool, streamErr sql.NullString) error
}

// StreamerConfig configures the durable DB-first streamer.
type StreamerConfig struct {
	// BatchSize is how many events to claim per poll.
	BatchSize int

	// PollInterval when there is no work.
	PollInterval time.Duration

	// MaxConcurrency bounds concurrent processing of claimed events.
	MaxConcurrency int
}

// Streamer drains pending audit events from the database, produces the
// canonical envelope to Kafka, archives it to object storage, and marks the
// row so the database remains the source of truth for retries.
type Streamer struct {
	source   StreamSource
	producer Producer
	archiver Archiver
	cfg      StreamerConfig

	wg sync.WaitGroup
}

func NewStreamer(source StreamSource, producer Producer, archiver Archiver, cfg StreamerConfig) *Streamer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 5
	}
	return &Streamer{
		source:   source,
		producer: producer,
		archiver: archiver,
		cfg:      cfg,
	}
}

// Run polls for pending work until ctx is cancelled. Safe to run in a
// goroutine.
func (s *Streamer) Run(ctx context.Context) error {
	log.Printf("[audit.streamer] starting (batch=%d, concurrency=%d)", s.cfg.BatchSize, s.cfg.MaxConcurrency)
	defer log.Printf("[audit.streamer] stopped")

	sem := make(chan struct{}, s.cfg.MaxConcurrency)

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			if s.producer != nil {
				_ = s.producer.Close()
			}
			return ctx.Err()
		default:
		}

		events, err := s.source.FetchPendingEvents(ctx, s.cfg.BatchSize)
		if err != nil {
			log.Printf("[audit.streamer] fetch pending: %v", err)
			sleepOrDone(ctx, s.cfg.PollInterval)
			continue
		}
		if len(events) == 0 {
			sleepOrDone(ctx, s.cfg.PollInterval)
			continue
		}

		for _, ev := range events {
			sem <- struct{}{}
			s.wg.Add(1)
			go func(ev *Event) {
				defer func() {
					<-sem
					s.wg.Done()
				}()
				if err := s.processEvent(ctx, ev); err != nil {
					log.Printf("[audit.streamer] process event %s: %v", ev.ID, err)
				}
			}(ev)
		}

		// Drain the batch before claiming more, keeping per-batch ordering.
		s.wg.Wait()
	}
}

// processEvent performs the produce -> archive sequence for one event and
// records the result. Failures flip the row back to pending for a later
// attempt.
func (s *Streamer) processEvent(parentCtx context.Context, ev *Event) error {
	ctx, cancel := context.WithTimeout(parentCtx, 30*time.Second)
	defer cancel()

	envelope := map[string]interface{}{
		"id":        ev.ID,
		"eventType": ev.EventType,
		"payload":   ev.Payload,
		"actor":     ev.Actor,
		"prevHash":  ev.PrevHash,
		"hash":      ev.Hash,
		"ts":        ev.Ts.Format(time.RFC3339Nano),
	}
	canonBytes, err := canonical.Marshal(envelope)
	if err != nil {
		return s.markFailed(parentCtx, ev, fmt.Errorf("canonicalize envelope: %w", err))
	}

	if _, err := s.producer.Produce(ctx, []byte(ev.ID), canonBytes); err != nil {
		return s.markFailed(parentCtx, ev, fmt.Errorf("kafka produce: %w", err))
	}

	var archivedKey sql.NullString
	if s.archiver != nil {
		key, err := s.archiver.ArchiveEvent(ctx, ev)
		if err != nil {
			return s.markFailed(parentCtx, ev, fmt.Errorf("archive: %w", err))
		}
		archivedKey = sql.NullString{String: key, Valid: true}
	}

	if err := s.source.MarkStreamResult(parentCtx, ev.ID, archivedKey, true, sql.NullString{}); err != nil {
		return fmt.Errorf("mark stream success: %w", err)
	}
	return nil
}

func (s *Streamer) markFailed(ctx context.Context, ev *Event, cause error) error {
	errMsg := sql.NullString{String: cause.Error(), Valid: true}
	_ = s.source.MarkStreamResult(ctx, ev.ID, sql.NullString{}, false, errMsg)
	return cause
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
