// package models contains the canonical entities of the draw execution engine.
package models

import (
	"time"

	"github.com/google/uuid"
)

// PromotionStatus is the lifecycle status of a promotion.
type PromotionStatus string

const (
	PromotionStatusDraft  PromotionStatus = "draft"
	PromotionStatusActive PromotionStatus = "active"
	PromotionStatusClosed PromotionStatus = "closed"
)

// RepeatWinPolicy controls whether a past winner of a promotion may win
// again in a later draw of the same promotion.
type RepeatWinPolicy string

const (
	RepeatWinAllow  RepeatWinPolicy = "allow"
	RepeatWinForbid RepeatWinPolicy = "forbid"
)

// DrawState is the execution state of a single draw. Transitions are
// monotonic: pending -> running -> completed | failed.
type DrawState string

const (
	DrawStatePending   DrawState = "pending"
	DrawStateRunning   DrawState = "running"
	DrawStateCompleted DrawState = "completed"
	DrawStateFailed    DrawState = "failed"
)

// Terminal reports whether no further transition is allowed out of s.
func (s DrawState) Terminal() bool {
	return s == DrawStateCompleted || s == DrawStateFailed
}

// Promotion is a read-only view of a promotion as the engine sees it.
// The engine never mutates promotions.
type Promotion struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Status    PromotionStatus `json:"status"`
	Policy    RepeatWinPolicy `json:"repeatWinPolicy"`
	StartsAt  time.Time       `json:"startsAt"`
	EndsAt    time.Time       `json:"endsAt"`
	OwnerID   uuid.UUID       `json:"ownerId"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Participant is a read-only view of a registration in a promotion.
type Participant struct {
	ID           uuid.UUID `json:"id"`
	PromotionID  uuid.UUID `json:"promotionId"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Email        string    `json:"email,omitempty"`
	Document     string    `json:"document,omitempty"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Draw is one execution attempt that selects winners for a promotion.
// It is the unit of idempotency: a draw executes at most once.
type Draw struct {
	ID             uuid.UUID  `json:"id"`
	PromotionID    uuid.UUID  `json:"promotionId"`
	Description    string     `json:"description,omitempty"`
	RequestedCount int        `json:"requestedCount"`
	State          DrawState  `json:"state"`
	Seed           *uint64    `json:"seed,omitempty"`
	FailureReason  string     `json:"failureReason,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

// WinnerRecord binds a participant to a draw and rank. Records are
// append-only: once written they are never mutated or deleted.
type WinnerRecord struct {
	ID            uuid.UUID `json:"id"`
	DrawID        uuid.UUID `json:"drawId"`
	ParticipantID uuid.UUID `json:"participantId"`
	Position      int       `json:"position"`
	Seed          uint64    `json:"seed"`
	Operator      string    `json:"operator,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}
