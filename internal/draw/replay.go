package draw

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/erikldr/sortear/internal/models"
	"github.com/erikldr/sortear/internal/store"
)

// ReplayResult reports whether re-running the selection from the persisted
// seed reproduces the winner records on file.
type ReplayResult struct {
	DrawID   uuid.UUID   `json:"drawId"`
	Seed     uint64      `json:"seed"`
	Match    bool        `json:"match"`
	Expected []uuid.UUID `json:"expected"`
	Recorded []uuid.UUID `json:"recorded"`
}

// Replay reconstructs the eligible set as it stood when the draw executed —
// registrations up to the draw's creation time, prior winners from draws
// completed before it — and replays the selector with the stored seed. A
// mismatch means either the stored data was tampered with or the participant
// snapshot changed underneath the audit trail (e.g. deleted rows).
func (e *Engine) Replay(ctx context.Context, drawID uuid.UUID) (ReplayResult, error) {
	d, err := e.store.GetDraw(ctx, drawID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ReplayResult{}, ErrDrawNotFound
		}
		return ReplayResult{}, &StorageError{Op: "get draw", Err: err}
	}
	if d.State != models.DrawStateCompleted || d.Seed == nil {
		return ReplayResult{}, fmt.Errorf("draw %s is %s, only completed draws can be replayed", drawID, d.State)
	}

	promotion, err := e.store.GetPromotion(ctx, d.PromotionID)
	if err != nil {
		return ReplayResult{}, &StorageError{Op: "get promotion", Err: err}
	}
	participants, err := e.store.ListParticipants(ctx, d.PromotionID)
	if err != nil {
		return ReplayResult{}, &StorageError{Op: "list participants", Err: err}
	}
	recorded, err := e.store.ListWinners(ctx, drawID)
	if err != nil {
		return ReplayResult{}, &StorageError{Op: "list winners", Err: err}
	}

	var priorWinners []models.WinnerRecord
	if promotion.Policy == models.RepeatWinForbid {
		all, err := e.store.ListPromotionWinners(ctx, d.PromotionID)
		if err != nil {
			return ReplayResult{}, &StorageError{Op: "list prior winners", Err: err}
		}
		for _, w := range all {
			// Keep only records from draws completed before this one.
			if w.DrawID != drawID && d.CompletedAt != nil && w.CreatedAt.Before(*d.CompletedAt) {
				priorWinners = append(priorWinners, w)
			}
		}
	}

	eligible := EligibleParticipants(promotion, d, participants, priorWinners)
	expected, err := Select(eligible, len(recorded), *d.Seed)
	if err != nil {
		return ReplayResult{}, err
	}

	recordedIDs := make([]uuid.UUID, len(recorded))
	for _, rec := range recorded {
		if rec.Position < 0 || rec.Position >= len(recordedIDs) {
			return ReplayResult{}, fmt.Errorf("%w: winner position %d out of range", ErrInvariantViolation, rec.Position)
		}
		recordedIDs[rec.Position] = rec.ParticipantID
	}

	result := ReplayResult{
		DrawID:   drawID,
		Seed:     *d.Seed,
		Match:    true,
		Expected: expected,
		Recorded: recordedIDs,
	}
	for i := range expected {
		if expected[i] != recordedIDs[i] {
			result.Match = false
			break
		}
	}
	return result, nil
}
