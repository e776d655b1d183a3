package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileStore is a file-backed audit log for dev and tests. Events land as
// JSON files in the archive directory; head.hash tracks the chain head.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	_ = os.MkdirAll(dir, 0o755)
	return &FileStore{dir: dir}
}

func (f *FileStore) Ping(ctx context.Context) error { return nil }

func (f *FileStore) Append(ctx context.Context, ev *Event) error {
	prev := f.readHead()
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

	b, err := json.MarshalIndent(ev, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	path := filepath.Join(f.dir, fmt.Sprintf("event_%s.json", ev.ID))
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write event file: %w", err)
	}
	if err := os.WriteFile(filepath.Join(f.dir, "head.hash"), []byte(hash), 0o644); err != nil {
		return fmt.Errorf("write head.hash: %w", err)
	}
	return nil
}

func (f *FileStore) GetEvent(ctx context.Context, id string) (*Event, error) {
	path := filepath.Join(f.dir, fmt.Sprintf("event_%s.json", id))
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read event file: %w", err)
	}
	var ev Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return &ev, nil
}

func (f *FileStore) readHead() string {
	b, err := os.ReadFile(filepath.Join(f.dir, "head.hash"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
