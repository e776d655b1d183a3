package audit

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PGStore persists audit events into Postgres. Events carry a stream_status
// column so the streamer can claim pending rows and record produce/archive
// results, keeping the database the source of truth for retries.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (p *PGStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// appendLock is the advisory lock key serializing audit_events appends, so
// two concurrent writers can never chain onto the same head and fork the log.
const appendLock int64 = 824_160_001

func (p *PGStore) Append(ctx context.Context, ev *Event) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, appendLock); err != nil {
		return fmt.Errorf("acquire append lock: %w", err)
	}

	var head sql.NullString
	const headQ = `SELECT hash FROM audit_events ORDER BY ts DESC, id DESC LIMIT 1`
	if err := tx.QueryRowContext(ctx, headQ).Scan(&head); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("fetch last hash: %w", err)
	}
	prev := ""
	if head.Valid {
		prev = head.String
	}

	hash, err := chainHash(ev.Payload, prev)
	if err != nil {
		return err
	}

	if ev.ID == "" {
		ev.ID = NewUUID()
	}
	if ev.Ts.IsZero() {
		ev.Ts = time.Now().UTC()
	}
	ev.PrevHash = prev
	ev.Hash = hash

	payloadJSON, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	metadataJSON := []byte("null")
	if ev.Metadata != nil {
		if metadataJSON, err = json.Marshal(ev.Metadata); err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}

	const q = `
		INSERT INTO audit_events
		  (id, event_type, actor, payload, prev_hash, hash, ts, metadata, stream_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'pending')
	`
	if _, err := tx.ExecContext(ctx, q,
		ev.ID, ev.EventType, ev.Actor, payloadJSON, ev.PrevHash, ev.Hash, ev.Ts, metadataJSON); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append: commit: %w", err)
	}
	return nil
}

func (p *PGStore) GetEvent(ctx context.Context, id string) (*Event, error) {
	const q = `
		SELECT event_type, COALESCE(actor,''), payload, COALESCE(prev_hash,''), hash, ts, metadata
		FROM audit_events
		WHERE id=$1
	`
	var (
		ev       = Event{ID: id}
		payload  []byte
		metadata []byte
	)
	err := p.db.QueryRowContext(ctx, q, id).Scan(
		&ev.EventType, &ev.Actor, &payload, &ev.PrevHash, &ev.Hash, &ev.Ts, &metadata)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get audit event: %w", err)
	}
	if err := json.Unmarshal(payload, &ev.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if len(metadata) > 0 && string(metadata) != "null" {
		if err := json.Unmarshal(metadata, &ev.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &ev, nil
}

// ListEvents returns every audit event in chain order, oldest first.
func (p *PGStore) ListEvents(ctx context.Context) ([]*Event, error) {
	const q = `
		SELECT id, event_type, COALESCE(actor,''), payload, COALESCE(prev_hash,''), hash, ts
		FROM audit_events
		ORDER BY ts ASC, id ASC
	`
	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var (
			ev      Event
			payload []byte
		)
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.Actor, &payload, &ev.PrevHash, &ev.Hash, &ev.Ts); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.UseNumber()
		if err := dec.Decode(&ev.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload for event %s: %w", ev.ID, err)
		}
		out = append(out, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return out, nil
}

// FetchPendingEvents claims up to limit pending events for streaming using
// FOR UPDATE SKIP LOCKED, marking them in_progress so concurrent streamer
// instances never double-process a row.
func (p *PGStore) FetchPendingEvents(ctx context.Context, limit int) ([]*Event, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch pending: begin: %w", err)
	}
	defer tx.Rollback()

	const selectQ = `
		SELECT id, event_type, COALESCE(actor,''), payload, COALESCE(prev_hash,''), hash, ts
		FROM audit_events
		WHERE stream_status='pending'
		ORDER BY ts ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	rows, err := tx.QueryContext(ctx, selectQ, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending events: %w", err)
	}

	var out []*Event
	for rows.Next() {
		var (
			ev      Event
			payload []byte
		)
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.Actor, &payload, &ev.PrevHash, &ev.Hash, &ev.Ts); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan pending event: %w", err)
		}
		if err := json.Unmarshal(payload, &ev.Payload); err != nil {
			rows.Close()
			return nil, fmt.Errorf("unmarshal payload for event %s: %w", ev.ID, err)
		}
		out = append(out, &ev)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("select pending events: %w", err)
	}
	rows.Close()

	const claimQ = `
		UPDATE audit_events
		SET stream_status='in_progress', stream_attempts=stream_attempts+1
		WHERE id=$1
	`
	for _, ev := range out {
		if _, err := tx.ExecContext(ctx, claimQ, ev.ID); err != nil {
			return nil, fmt.Errorf("claim event %s: %w", ev.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("fetch pending: commit: %w", err)
	}
	return out, nil
}

// MarkStreamResult records the outcome of a streaming attempt. Successful
// events store the archive object key; failures go back to pending with the
// error kept for diagnostics.
func (p *PGStore) MarkStreamResult(ctx context.Context, id string, archivedKey sql.NullString, ok bool, streamErr sql.NullString) error {
	status := "streamed"
	if !ok {
		status = "pending"
	}
	const q = `
		UPDATE audit_events
		SET stream_status=$2, archived_key=$3, stream_error=$4, streamed_at=CASE WHEN $2='streamed' THEN NOW() ELSE streamed_at END
		WHERE id=$1
	`
	res, err := p.db.ExecContext(ctx, q, id, status, archivedKey, streamErr)
	if err != nil {
		return fmt.Errorf("mark stream result: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
