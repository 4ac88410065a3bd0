// Package registry persists the set of chat ids subscribed to scheduled
// digests. The JSON file is the sole durable state: it is re-read before
// every scheduled send, so manual edits take effect without a restart.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"
)

type fileShape struct {
	ChatIDs []int64 `json:"chat_ids"`
}

type Registry struct {
	path string
	log  *zap.Logger

	mu  sync.Mutex
	ids map[int64]struct{}
}

func New(path string, log *zap.Logger) *Registry {
	return &Registry{path: path, log: log, ids: map[int64]struct{}{}}
}

// Load reads the file into memory. A missing or corrupt file is an empty
// registry, not an error: the bot must come up regardless.
func (r *Registry) Load() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loadLocked()
}

// Reload re-reads the file and returns the fresh sorted snapshot.
func (r *Registry) Reload() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loadLocked()
	return r.snapshotLocked()
}

// IDs returns a sorted snapshot of the in-memory set.
func (r *Registry) IDs() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

// Track adds a chat id if absent and persists the addition immediately.
// Tracking an already known id is a no-op without a rewrite.
func (r *Registry) Track(id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; ok {
		return false, nil
	}
	r.ids[id] = struct{}{}
	return true, r.flushLocked()
}

// Remove drops a chat id and persists the removal.
func (r *Registry) Remove(id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; !ok {
		return false, nil
	}
	delete(r.ids, id)
	return true, r.flushLocked()
}

func (r *Registry) loadLocked() {
	r.ids = map[int64]struct{}{}
	b, err := os.ReadFile(r.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.log.Warn("failed to read chat registry", zap.String("path", r.path), zap.Error(err))
		}
		return
	}
	var data fileShape
	if err := json.Unmarshal(b, &data); err != nil {
		r.log.Warn("failed to parse chat registry", zap.String("path", r.path), zap.Error(err))
		return
	}
	for _, id := range data.ChatIDs {
		r.ids[id] = struct{}{}
	}
}

func (r *Registry) snapshotLocked() []int64 {
	out := make([]int64, 0, len(r.ids))
	for id := range r.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) flushLocked() error {
	b, err := json.MarshalIndent(fileShape{ChatIDs: r.snapshotLocked()}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal chat registry: %w", err)
	}
	if err := os.WriteFile(r.path, b, 0o644); err != nil {
		return fmt.Errorf("write chat registry: %w", err)
	}
	return nil
}
