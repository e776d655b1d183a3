package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/erikldr/sortear/internal/models"
)

// MemoryStore provides an in-memory implementation useful for tests and
// local development. The mutex stands in for the conditional update the
// Postgres store uses, so claim semantics are identical.
type MemoryStore struct {
	mu           sync.RWMutex
	promotions   map[uuid.UUID]models.Promotion
	participants map[uuid.UUID][]models.Participant
	draws        map[uuid.UUID]models.Draw
	winners      map[uuid.UUID][]models.WinnerRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		promotions:   map[uuid.UUID]models.Promotion{},
		participants: map[uuid.UUID][]models.Participant{},
		draws:        map[uuid.UUID]models.Draw{},
		winners:      map[uuid.UUID][]models.WinnerRecord{},
	}
}

// PutPromotion seeds a promotion. The engine itself never writes promotions;
// this exists for tests and local fixtures.
func (m *MemoryStore) PutPromotion(p models.Promotion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promotions[p.ID] = p
}

// PutParticipant seeds a participant registration.
func (m *MemoryStore) PutParticipant(p models.Participant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.participants[p.PromotionID] = append(m.participants[p.PromotionID], p)
}

func (m *MemoryStore) GetPromotion(ctx context.Context, id uuid.UUID) (models.Promotion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.promotions[id]
	if !ok {
		return models.Promotion{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) ListParticipants(ctx context.Context, promotionID uuid.UUID) ([]models.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]models.Participant(nil), m.participants[promotionID]...)
	return out, nil
}

func (m *MemoryStore) CreateDraw(ctx context.Context, in DrawInput) (models.Draw, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	draw := models.Draw{
		ID:             in.ID,
		PromotionID:    in.PromotionID,
		Description:    in.Description,
		RequestedCount: in.RequestedCount,
		State:          models.DrawStatePending,
		CreatedAt:      in.CreatedAt,
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.draws[draw.ID] = draw
	return draw, nil
}

func (m *MemoryStore) GetDraw(ctx context.Context, id uuid.UUID) (models.Draw, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.draws[id]
	if !ok {
		return models.Draw{}, ErrNotFound
	}
	return d, nil
}

func (m *MemoryStore) ListDraws(ctx context.Context, promotionID uuid.UUID) ([]models.Draw, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Draw
	for _, d := range m.draws {
		if d.PromotionID == promotionID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ClaimDraw(ctx context.Context, id uuid.UUID, startedAt time.Time) (models.Draw, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.draws[id]
	if !ok {
		return models.Draw{}, ErrNotFound
	}
	if d.State != models.DrawStatePending {
		return models.Draw{}, ErrStateConflict
	}
	d.State = models.DrawStateRunning
	t := startedAt
	d.StartedAt = &t
	m.draws[id] = d
	return d, nil
}

func (m *MemoryStore) CompleteDraw(ctx context.Context, id uuid.UUID, seed uint64, winners []WinnerInput, completedAt time.Time) ([]models.WinnerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.draws[id]
	if !ok {
		return nil, ErrNotFound
	}
	if d.State != models.DrawStateRunning {
		return nil, ErrStateConflict
	}

	records := make([]models.WinnerRecord, 0, len(winners))
	for _, w := range winners {
		records = append(records, models.WinnerRecord{
			ID:            uuid.New(),
			DrawID:        id,
			ParticipantID: w.ParticipantID,
			Position:      w.Position,
			Seed:          seed,
			Operator:      w.Operator,
			CreatedAt:     completedAt,
		})
	}

	d.State = models.DrawStateCompleted
	s := seed
	d.Seed = &s
	t := completedAt
	d.CompletedAt = &t
	m.draws[id] = d
	m.winners[id] = records

	return append([]models.WinnerRecord(nil), records...), nil
}

func (m *MemoryStore) FailDraw(ctx context.Context, id uuid.UUID, reason string, failedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.draws[id]
	if !ok {
		return ErrNotFound
	}
	if d.State.Terminal() {
		return ErrStateConflict
	}
	d.State = models.DrawStateFailed
	d.FailureReason = reason
	t := failedAt
	d.CompletedAt = &t
	m.draws[id] = d
	return nil
}

func (m *MemoryStore) ListWinners(ctx context.Context, drawID uuid.UUID) ([]models.WinnerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]models.WinnerRecord(nil), m.winners[drawID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *MemoryStore) ListPromotionWinners(ctx context.Context, promotionID uuid.UUID) ([]models.WinnerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.WinnerRecord
	for drawID, recs := range m.winners {
		d, ok := m.draws[drawID]
		if !ok || d.PromotionID != promotionID || d.State != models.DrawStateCompleted {
			continue
		}
		out = append(out, recs...)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Position < out[j].Position
	})
	return out, nil
}

func (m *MemoryStore) FailStaleRunning(ctx context.Context, cutoff time.Time, reason string, failedAt time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, d := range m.draws {
		if d.State == models.DrawStateRunning && d.StartedAt != nil && d.StartedAt.Before(cutoff) {
			d.State = models.DrawStateFailed
			d.FailureReason = reason
			t := failedAt
			d.CompletedAt = &t
			m.draws[id] = d
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
