package draw

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/erikldr/sortear/internal/models"
	"github.com/erikldr/sortear/internal/store"
)

// Recorder persists the immutable outcome of a draw. Winner rows and the
// completed transition commit as a single atomic unit via the store, so a
// reader never observes a partial result.
type Recorder struct {
	store store.Store
}

func NewRecorder(st store.Store) *Recorder {
	return &Recorder{store: st}
}

// Record validates the selection against the engine invariants and commits
// it. A duplicate participant or a broken rank sequence means the selector
// misbehaved; the recorder refuses to persist corrupt data and fails loudly.
func (r *Recorder) Record(ctx context.Context, d models.Draw, selected []uuid.UUID, seed uint64, operator string, at time.Time) ([]models.WinnerRecord, error) {
	seen := make(map[uuid.UUID]struct{}, len(selected))
	winners := make([]store.WinnerInput, 0, len(selected))
	for i, id := range selected {
		if id == uuid.Nil {
			return nil, fmt.Errorf("%w: nil participant at position %d", ErrInvariantViolation, i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: participant %s selected twice", ErrInvariantViolation, id)
		}
		seen[id] = struct{}{}
		winners = append(winners, store.WinnerInput{
			ParticipantID: id,
			Position:      i,
			Operator:      operator,
		})
	}

	records, err := r.store.CompleteDraw(ctx, d.ID, seed, winners, at)
	if err != nil {
		return nil, &StorageError{Op: "complete draw", Err: err}
	}
	return records, nil
}
