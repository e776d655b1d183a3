package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/erikldr/sortear/internal/models"
)

// PGStore is the Postgres-backed implementation of Store.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) GetPromotion(ctx context.Context, id uuid.UUID) (models.Promotion, error) {
	const query = `
		SELECT name, status, repeat_win_policy, starts_at, ends_at, owner_id, created_at
		FROM promotions
		WHERE id=$1
	`
	var p models.Promotion
	if err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.Name, &p.Status, &p.Policy, &p.StartsAt, &p.EndsAt, &p.OwnerID, &p.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Promotion{}, ErrNotFound
		}
		return models.Promotion{}, fmt.Errorf("get promotion: %w", err)
	}
	p.ID = id
	return p, nil
}

func (s *PGStore) ListParticipants(ctx context.Context, promotionID uuid.UUID) ([]models.Participant, error) {
	const query = `
		SELECT id, name, phone, COALESCE(email,''), COALESCE(document,''), created_at
		FROM participants
		WHERE promotion_id=$1
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, promotionID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []models.Participant
	for rows.Next() {
		p := models.Participant{PromotionID: promotionID}
		if err := rows.Scan(&p.ID, &p.Name, &p.Phone, &p.Email, &p.Document, &p.RegisteredAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return out, nil
}

func (s *PGStore) CreateDraw(ctx context.Context, in DrawInput) (models.Draw, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	const query = `
		INSERT INTO draws (id, promotion_id, description, requested_count, state, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`
	_, err := s.db.ExecContext(ctx, query,
		in.ID, in.PromotionID, in.Description, in.RequestedCount, models.DrawStatePending, in.CreatedAt)
	if err != nil {
		return models.Draw{}, fmt.Errorf("insert draw: %w", err)
	}
	return models.Draw{
		ID:             in.ID,
		PromotionID:    in.PromotionID,
		Description:    in.Description,
		RequestedCount: in.RequestedCount,
		State:          models.DrawStatePending,
		CreatedAt:      in.CreatedAt,
	}, nil
}

func (s *PGStore) GetDraw(ctx context.Context, id uuid.UUID) (models.Draw, error) {
	const query = `
		SELECT promotion_id, COALESCE(description,''), requested_count, state, seed,
		       COALESCE(failure_reason,''), created_at, started_at, completed_at
		FROM draws
		WHERE id=$1
	`
	var (
		d         models.Draw
		seed      sql.NullInt64
		startedAt sql.NullTime
		completed sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&d.PromotionID, &d.Description, &d.RequestedCount, &d.State, &seed,
		&d.FailureReason, &d.CreatedAt, &startedAt, &completed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Draw{}, ErrNotFound
		}
		return models.Draw{}, fmt.Errorf("get draw: %w", err)
	}
	d.ID = id
	if seed.Valid {
		v := uint64(seed.Int64)
		d.Seed = &v
	}
	if startedAt.Valid {
		t := startedAt.Time
		d.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		d.CompletedAt = &t
	}
	return d, nil
}

func (s *PGStore) ListDraws(ctx context.Context, promotionID uuid.UUID) ([]models.Draw, error) {
	const query = `
		SELECT id, COALESCE(description,''), requested_count, state, seed,
		       COALESCE(failure_reason,''), created_at, started_at, completed_at
		FROM draws
		WHERE promotion_id=$1
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, promotionID)
	if err != nil {
		return nil, fmt.Errorf("list draws: %w", err)
	}
	defer rows.Close()

	var out []models.Draw
	for rows.Next() {
		var (
			d         models.Draw
			seed      sql.NullInt64
			startedAt sql.NullTime
			completed sql.NullTime
		)
		if err := rows.Scan(&d.ID, &d.Description, &d.RequestedCount, &d.State, &seed,
			&d.FailureReason, &d.CreatedAt, &startedAt, &completed); err != nil {
			return nil, fmt.Errorf("scan draw: %w", err)
		}
		d.PromotionID = promotionID
		if seed.Valid {
			v := uint64(seed.Int64)
			d.Seed = &v
		}
		if startedAt.Valid {
			t := startedAt.Time
			d.StartedAt = &t
		}
		if completed.Valid {
			t := completed.Time
			d.CompletedAt = &t
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list draws: %w", err)
	}
	return out, nil
}

// ClaimDraw is the critical section of the state machine: a conditional
// update keyed on state='pending' so that concurrent callers race on the
// database row, not on an in-process lock.
func (s *PGStore) ClaimDraw(ctx context.Context, id uuid.UUID, startedAt time.Time) (models.Draw, error) {
	const query = `
		UPDATE draws
		SET state=$2, started_at=$3
		WHERE id=$1 AND state=$4
	`
	res, err := s.db.ExecContext(ctx, query, id, models.DrawStateRunning, startedAt, models.DrawStatePending)
	if err != nil {
		return models.Draw{}, fmt.Errorf("claim draw: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Draw{}, fmt.Errorf("claim draw: %w", err)
	}
	if affected == 0 {
		// Either the draw does not exist or it already left pending.
		if _, err := s.GetDraw(ctx, id); err != nil {
			return models.Draw{}, err
		}
		return models.Draw{}, ErrStateConflict
	}
	return s.GetDraw(ctx, id)
}

func (s *PGStore) CompleteDraw(ctx context.Context, id uuid.UUID, seed uint64, winners []WinnerInput, completedAt time.Time) ([]models.WinnerRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("complete draw: begin: %w", err)
	}
	defer tx.Rollback()

	records := make([]models.WinnerRecord, 0, len(winners))
	const insertWinner = `
		INSERT INTO winner_records (id, draw_id, participant_id, position, seed, operator, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`
	for _, w := range winners {
		rec := models.WinnerRecord{
			ID:            uuid.New(),
			DrawID:        id,
			ParticipantID: w.ParticipantID,
			Position:      w.Position,
			Seed:          seed,
			Operator:      w.Operator,
			CreatedAt:     completedAt,
		}
		if _, err := tx.ExecContext(ctx, insertWinner,
			rec.ID, rec.DrawID, rec.ParticipantID, rec.Position, int64(seed), rec.Operator, rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("insert winner record: %w", err)
		}
		records = append(records, rec)
	}

	const markCompleted = `
		UPDATE draws
		SET state=$2, seed=$3, completed_at=$4
		WHERE id=$1 AND state=$5
	`
	res, err := tx.ExecContext(ctx, markCompleted,
		id, models.DrawStateCompleted, int64(seed), completedAt, models.DrawStateRunning)
	if err != nil {
		return nil, fmt.Errorf("mark draw completed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("mark draw completed: %w", err)
	}
	if affected == 0 {
		return nil, ErrStateConflict
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("complete draw: commit: %w", err)
	}
	return records, nil
}

func (s *PGStore) FailDraw(ctx context.Context, id uuid.UUID, reason string, failedAt time.Time) error {
	const query = `
		UPDATE draws
		SET state=$2, failure_reason=$3, completed_at=$4
		WHERE id=$1 AND state IN ($5, $6)
	`
	res, err := s.db.ExecContext(ctx, query,
		id, models.DrawStateFailed, reason, failedAt, models.DrawStatePending, models.DrawStateRunning)
	if err != nil {
		return fmt.Errorf("fail draw: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("fail draw: %w", err)
	}
	if affected == 0 {
		return ErrStateConflict
	}
	return nil
}

func (s *PGStore) ListWinners(ctx context.Context, drawID uuid.UUID) ([]models.WinnerRecord, error) {
	const query = `
		SELECT id, participant_id, position, seed, COALESCE(operator,''), created_at
		FROM winner_records
		WHERE draw_id=$1
		ORDER BY position
	`
	rows, err := s.db.QueryContext(ctx, query, drawID)
	if err != nil {
		return nil, fmt.Errorf("list winners: %w", err)
	}
	defer rows.Close()

	var out []models.WinnerRecord
	for rows.Next() {
		rec := models.WinnerRecord{DrawID: drawID}
		var seed int64
		if err := rows.Scan(&rec.ID, &rec.ParticipantID, &rec.Position, &seed, &rec.Operator, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan winner record: %w", err)
		}
		rec.Seed = uint64(seed)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list winners: %w", err)
	}
	return out, nil
}

func (s *PGStore) ListPromotionWinners(ctx context.Context, promotionID uuid.UUID) ([]models.WinnerRecord, error) {
	const query = `
		SELECT w.id, w.draw_id, w.participant_id, w.position, w.seed, COALESCE(w.operator,''), w.created_at
		FROM winner_records w
		JOIN draws d ON d.id = w.draw_id
		WHERE d.promotion_id=$1 AND d.state=$2
		ORDER BY w.created_at, w.position
	`
	rows, err := s.db.QueryContext(ctx, query, promotionID, models.DrawStateCompleted)
	if err != nil {
		return nil, fmt.Errorf("list promotion winners: %w", err)
	}
	defer rows.Close()

	var out []models.WinnerRecord
	for rows.Next() {
		var rec models.WinnerRecord
		var seed int64
		if err := rows.Scan(&rec.ID, &rec.DrawID, &rec.ParticipantID, &rec.Position, &seed, &rec.Operator, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan winner record: %w", err)
		}
		rec.Seed = uint64(seed)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list promotion winners: %w", err)
	}
	return out, nil
}

func (s *PGStore) FailStaleRunning(ctx context.Context, cutoff time.Time, reason string, failedAt time.Time) (int64, error) {
	const query = `
		UPDATE draws
		SET state=$1, failure_reason=$2, completed_at=$3
		WHERE state=$4 AND started_at < $5
	`
	res, err := s.db.ExecContext(ctx, query, models.DrawStateFailed, reason, failedAt, models.DrawStateRunning, cutoff)
	if err != nil {
		return 0, fmt.Errorf("fail stale running: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("fail stale running: %w", err)
	}
	return affected, nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	return nil
}
