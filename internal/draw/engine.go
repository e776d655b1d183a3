package draw

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/erikldr/sortear/internal/audit"
	"github.com/erikldr/sortear/internal/models"
	"github.com/erikldr/sortear/internal/store"
)

// EventSink receives append-only audit events for draw outcomes. Emission is
// best effort: the persisted winner rows are the record of truth, the event
// trail feeds the streaming/archival pipeline.
type EventSink interface {
	Append(ctx context.Context, ev *audit.Event) error
}

// Engine orchestrates draw execution: claim, eligibility, selection,
// recording. Safe to call concurrently; per draw the storage-backed
// compare-and-set admits exactly one executor, across server instances.
type Engine struct {
	store    store.Store
	recorder *Recorder
	events   EventSink
	seed     SeedSource
	now      func() time.Time
}

// Config carries the injectable collaborators of the engine. Zero values
// fall back to the production defaults (crypto seed, wall clock).
type Config struct {
	Seed SeedSource
	Now  func() time.Time
}

func New(st store.Store, events EventSink, cfg Config) *Engine {
	if cfg.Seed == nil {
		cfg.Seed = CryptoSeed
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		store:    st,
		recorder: NewRecorder(st),
		events:   events,
		seed:     cfg.Seed,
		now:      cfg.Now,
	}
}

// CreateDraw registers a new pending draw for an active promotion.
func (e *Engine) CreateDraw(ctx context.Context, promotionID uuid.UUID, description string, requestedCount int) (models.Draw, error) {
	if requestedCount < 0 {
		return models.Draw{}, fmt.Errorf("requested count must be non-negative")
	}
	promotion, err := e.store.GetPromotion(ctx, promotionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Draw{}, store.ErrNotFound
		}
		return models.Draw{}, &StorageError{Op: "get promotion", Err: err}
	}
	if promotion.Status != models.PromotionStatusActive {
		return models.Draw{}, fmt.Errorf("promotion %s is %s, draws require an active promotion", promotionID, promotion.Status)
	}
	d, err := e.store.CreateDraw(ctx, store.DrawInput{
		PromotionID:    promotionID,
		Description:    description,
		RequestedCount: requestedCount,
		CreatedAt:      e.now(),
	})
	if err != nil {
		return models.Draw{}, &StorageError{Op: "create draw", Err: err}
	}
	return d, nil
}

// Execute runs a pending draw to completion: it claims the draw, computes
// the eligible set, selects requestedCount winners under a fresh seed, and
// records the outcome. Exactly one concurrent caller proceeds past the
// claim; the rest get ErrDrawNotPending. Any failure after the claim is
// terminal for this draw — retries require a new draw.
func (e *Engine) Execute(ctx context.Context, drawID uuid.UUID, requestedCount int, operator string) ([]models.WinnerRecord, error) {
	if requestedCount < 0 {
		return nil, fmt.Errorf("requested count must be non-negative")
	}

	d, err := e.store.ClaimDraw(ctx, drawID, e.now())
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrDrawNotFound
		case errors.Is(err, store.ErrStateConflict):
			return nil, ErrDrawNotPending
		default:
			return nil, &StorageError{Op: "claim draw", Err: err}
		}
	}

	// Past this point the draw ran: every exit is completed or failed.
	records, seed, err := e.run(ctx, d, requestedCount, operator)
	if err != nil {
		e.fail(ctx, d, err.Error(), operator)
		return nil, err
	}

	e.emit(ctx, "draw.completed", map[string]interface{}{
		"drawId":      d.ID.String(),
		"promotionId": d.PromotionID.String(),
		"seed":        seed,
		"winners":     winnerPayload(records),
	}, operator)
	return records, nil
}

func (e *Engine) run(ctx context.Context, d models.Draw, requestedCount int, operator string) ([]models.WinnerRecord, uint64, error) {
	promotion, err := e.store.GetPromotion(ctx, d.PromotionID)
	if err != nil {
		return nil, 0, &StorageError{Op: "get promotion", Err: err}
	}
	participants, err := e.store.ListParticipants(ctx, d.PromotionID)
	if err != nil {
		return nil, 0, &StorageError{Op: "list participants", Err: err}
	}
	var priorWinners []models.WinnerRecord
	if promotion.Policy == models.RepeatWinForbid {
		priorWinners, err = e.store.ListPromotionWinners(ctx, d.PromotionID)
		if err != nil {
			return nil, 0, &StorageError{Op: "list prior winners", Err: err}
		}
	}

	eligible := EligibleParticipants(promotion, d, participants, priorWinners)

	seed, err := e.seed()
	if err != nil {
		return nil, 0, fmt.Errorf("generate seed: %w", err)
	}

	selected, err := Select(eligible, requestedCount, seed)
	if err != nil {
		return nil, 0, err
	}

	records, err := e.recorder.Record(ctx, d, selected, seed, operator, e.now())
	if err != nil {
		return nil, 0, err
	}
	return records, seed, nil
}

// fail forces the draw to failed with the reason recorded. The draw must not
// linger in running; if even this write fails we can only log and let the
// reconciler reap it later.
func (e *Engine) fail(ctx context.Context, d models.Draw, reason, operator string) {
	if err := e.store.FailDraw(ctx, d.ID, reason, e.now()); err != nil {
		log.Printf("[draw.engine] fail draw %s: %v", d.ID, err)
	}
	e.emit(ctx, "draw.failed", map[string]interface{}{
		"drawId":      d.ID.String(),
		"promotionId": d.PromotionID.String(),
		"reason":      reason,
	}, operator)
}

func (e *Engine) emit(ctx context.Context, eventType string, payload map[string]interface{}, operator string) {
	if e.events == nil {
		return
	}
	ev := &audit.Event{
		EventType: eventType,
		Payload:   payload,
		Actor:     operator,
		Ts:        e.now(),
	}
	if err := e.events.Append(ctx, ev); err != nil {
		log.Printf("[draw.engine] warning: append audit event %s: %v", eventType, err)
	}
}

// Winners returns the winner records of a draw ordered by rank.
func (e *Engine) Winners(ctx context.Context, drawID uuid.UUID) ([]models.WinnerRecord, error) {
	if _, err := e.store.GetDraw(ctx, drawID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrDrawNotFound
		}
		return nil, &StorageError{Op: "get draw", Err: err}
	}
	records, err := e.store.ListWinners(ctx, drawID)
	if err != nil {
		return nil, &StorageError{Op: "list winners", Err: err}
	}
	return records, nil
}

func winnerPayload(records []models.WinnerRecord) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		out = append(out, map[string]interface{}{
			"participantId": rec.ParticipantID.String(),
			"position":      rec.Position,
		})
	}
	return out
}
