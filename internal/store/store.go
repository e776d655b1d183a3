package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/erikldr/sortear/internal/models"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStateConflict is returned when a conditional state transition
	// finds the draw in a different state than required.
	ErrStateConflict = errors.New("draw state conflict")
)

// Store is the persistence boundary of the draw engine. Promotion and
// participant data is read-only; draws and winner records are owned here.
type Store interface {
	// GetPromotion returns a promotion by id.
	GetPromotion(ctx context.Context, id uuid.UUID) (models.Promotion, error)

	// ListParticipants returns every participant registered for a promotion.
	ListParticipants(ctx context.Context, promotionID uuid.UUID) ([]models.Participant, error)

	// CreateDraw persists a new draw in state pending.
	CreateDraw(ctx context.Context, in DrawInput) (models.Draw, error)

	// GetDraw returns a draw by id.
	GetDraw(ctx context.Context, id uuid.UUID) (models.Draw, error)

	// ListDraws returns the draws of a promotion, newest first.
	ListDraws(ctx context.Context, promotionID uuid.UUID) ([]models.Draw, error)

	// ClaimDraw atomically transitions a draw from pending to running.
	// It returns ErrStateConflict if the draw already left pending, so
	// at most one caller ever claims a given draw.
	ClaimDraw(ctx context.Context, id uuid.UUID, startedAt time.Time) (models.Draw, error)

	// CompleteDraw writes the winner records and the completed transition
	// as a single atomic unit. The draw must be in state running.
	CompleteDraw(ctx context.Context, id uuid.UUID, seed uint64, winners []WinnerInput, completedAt time.Time) ([]models.WinnerRecord, error)

	// FailDraw transitions a running or pending draw to failed, recording
	// the reason. Terminal draws are left untouched.
	FailDraw(ctx context.Context, id uuid.UUID, reason string, failedAt time.Time) error

	// ListWinners returns the winner records of a draw ordered by position.
	ListWinners(ctx context.Context, drawID uuid.UUID) ([]models.WinnerRecord, error)

	// ListPromotionWinners returns every winner record across the completed
	// draws of a promotion, used for repeat-win exclusion.
	ListPromotionWinners(ctx context.Context, promotionID uuid.UUID) ([]models.WinnerRecord, error)

	// FailStaleRunning forces draws that have been running since before the
	// cutoff into failed, stamped with failedAt. Returns the number of draws
	// reaped.
	FailStaleRunning(ctx context.Context, cutoff time.Time, reason string, failedAt time.Time) (int64, error)

	// Ping validates the store is reachable.
	Ping(ctx context.Context) error
}

// DrawInput carries the fields needed to create a pending draw.
type DrawInput struct {
	ID             uuid.UUID
	PromotionID    uuid.UUID
	Description    string
	RequestedCount int
	CreatedAt      time.Time
}

// WinnerInput is one selected participant with its rank within the draw.
type WinnerInput struct {
	ParticipantID uuid.UUID
	Position      int
	Operator      string
}
