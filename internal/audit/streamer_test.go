package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu      sync.Mutex
	batches [][]*Event
	marks   []markCall
}

type markCall struct {
	id          string
	archivedKey sql.NullString
	ok          bool
	streamErr   sql.NullString
}

func (f *fakeSource) FetchPendingEvents(ctx context.Context, limit int) ([]*Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakeSource) MarkStreamResult(ctx context.Context, id string, archivedKey sql.NullString, ok bool, streamErr sql.NullString) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks = append(f.marks, markCall{id: id, archivedKey: archivedKey, ok: ok, streamErr: streamErr})
	return nil
}

func (f *fakeSource) markFor(id string) (markCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.marks {
		if m.id == id {
			return m, true
		}
	}
	return markCall{}, false
}

type fakeProducer struct {
	mu       sync.Mutex
	messages map[string][]byte
	err      error
	closed   bool
}

func (f *fakeProducer) Produce(ctx context.Context, key []byte, value []byte) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return time.Time{}, f.err
	}
	if f.messages == nil {
		f.messages = map[string][]byte{}
	}
	f.messages[string(key)] = value
	return time.Now().UTC(), nil
}

func (f *fakeProducer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeArchiver struct {
	err error
}

func (f *fakeArchiver) ArchiveEvent(ctx context.Context, ev *Event) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "audit/draws/2026/08/28/" + ev.ID + ".json", nil
}

func testEvent(id string) *Event {
	return &Event{
		ID:        id,
		EventType: "draw.completed",
		Payload:   map[string]interface{}{"drawId": id},
		Hash:      "abc123",
		Ts:        time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
	}
}

func TestProcessEventProducesAndArchives(t *testing.T) {
	source := &fakeSource{}
	producer := &fakeProducer{}
	s := NewStreamer(source, producer, &fakeArchiver{}, StreamerConfig{})

	ev := testEvent("ev-1")
	require.NoError(t, s.processEvent(context.Background(), ev))

	raw, ok := producer.messages["ev-1"]
	require.True(t, ok, "event must be produced keyed by id")

	var envelope map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &envelope))
	assert.Equal(t, "ev-1", envelope["id"])
	assert.Equal(t, "draw.completed", envelope["eventType"])
	assert.Equal(t, "abc123", envelope["hash"])

	mark, ok := source.markFor("ev-1")
	require.True(t, ok)
	assert.True(t, mark.ok)
	assert.True(t, mark.archivedKey.Valid)
	assert.Contains(t, mark.archivedKey.String, "ev-1")
}

func TestProcessEventProduceFailureFlipsBackToPending(t *testing.T) {
	source := &fakeSource{}
	producer := &fakeProducer{err: errors.New("broker unavailable")}
	s := NewStreamer(source, producer, &fakeArchiver{}, StreamerConfig{})

	err := s.processEvent(context.Background(), testEvent("ev-2"))
	require.Error(t, err)

	mark, ok := source.markFor("ev-2")
	require.True(t, ok)
	assert.False(t, mark.ok)
	assert.True(t, mark.streamErr.Valid)
	assert.Contains(t, mark.streamErr.String, "broker unavailable")
	assert.False(t, mark.archivedKey.Valid)
}

func TestProcessEventArchiveFailureFlipsBackToPending(t *testing.T) {
	source := &fakeSource{}
	producer := &fakeProducer{}
	s := NewStreamer(source, producer, &fakeArchiver{err: errors.New("s3 timeout")}, StreamerConfig{})

	err := s.processEvent(context.Background(), testEvent("ev-3"))
	require.Error(t, err)

	mark, ok := source.markFor("ev-3")
	require.True(t, ok)
	assert.False(t, mark.ok)
	assert.Contains(t, mark.streamErr.String, "s3 timeout")
}

func TestProcessEventWithoutArchiver(t *testing.T) {
	source := &fakeSource{}
	producer := &fakeProducer{}
	s := NewStreamer(source, producer, nil, StreamerConfig{})

	require.NoError(t, s.processEvent(context.Background(), testEvent("ev-4")))

	mark, ok := source.markFor("ev-4")
	require.True(t, ok)
	assert.True(t, mark.ok)
	assert.False(t, mark.archivedKey.Valid)
}

func TestStreamerRunDrainsBatchesAndStops(t *testing.T) {
	source := &fakeSource{batches: [][]*Event{
		{testEvent("ev-a"), testEvent("ev-b")},
		{testEvent("ev-c")},
	}}
	producer := &fakeProducer{}
	s := NewStreamer(source, producer, &fakeArchiver{}, StreamerConfig{
		BatchSize:      2,
		PollInterval:   5 * time.Millisecond,
		MaxConcurrency: 2,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		producer.mu.Lock()
		defer producer.mu.Unlock()
		return len(producer.messages) == 3
	}, 2*time.Second, 10*time.Millisecond, "streamer must drain all pending batches")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("streamer did not stop after cancellation")
	}

	producer.mu.Lock()
	defer producer.mu.Unlock()
	assert.True(t, producer.closed, "producer must be closed on shutdown")
}
