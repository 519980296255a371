package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/maltedev/dealer-portal-scraper/internal/models"
)

// Entry is one catalog row of the file store.
type Entry struct {
	Result    models.Result `json:"result"`
	Category  string        `json:"category,omitempty"`
	AddedAt   time.Time     `json:"added_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// FileStore is a JSON catalog keyed by item code, used when no database is
// configured. Every write rewrites the file atomically.
type FileStore struct {
	mu       sync.RWMutex
	entries  map[string]*Entry
	filename string
	now      func() time.Time
}

func NewFileStore(filename string) (*FileStore, error) {
	fs := &FileStore{
		entries:  make(map[string]*Entry),
		filename: filename,
		now:      time.Now,
	}

	if err := fs.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load catalog %s: %w", filename, err)
	}

	return fs, nil
}

var sameResult = cmpopts.EquateEmpty()

// Upsert stores result and reports whether it was new or differs from the
// stored copy.
func (fs *FileStore) Upsert(_ context.Context, result *models.Result) (bool, error) {
	if result == nil || result.ItemCode == "" {
		return false, fmt.Errorf("item code is required")
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	now := fs.now()
	entry, exists := fs.entries[result.ItemCode]
	if exists && cmp.Equal(entry.Result, *result, sameResult) {
		return false, nil
	}
	if !exists {
		entry = &Entry{AddedAt: now}
		fs.entries[result.ItemCode] = entry
	}
	entry.Result = *result
	entry.UpdatedAt = now

	if err := fs.save(); err != nil {
		return false, err
	}
	return true, nil
}

// RegisterItems adds placeholder entries for items not yet in the catalog.
func (fs *FileStore) RegisterItems(_ context.Context, items []models.WorkItem) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	added := 0
	now := fs.now()
	for _, item := range items {
		if item.Code == "" {
			continue
		}
		if _, exists := fs.entries[item.Code]; exists {
			continue
		}
		fs.entries[item.Code] = &Entry{
			Result:    models.Result{ItemCode: item.Code},
			Category:  item.Category,
			AddedAt:   now,
			UpdatedAt: now,
		}
		added++
	}

	if added == 0 {
		return 0, nil
	}
	return added, fs.save()
}

func (fs *FileStore) Get(code string) (models.Result, bool) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	entry, exists := fs.entries[code]
	if !exists {
		return models.Result{}, false
	}
	return entry.Result, true
}

// ItemsMissingPrice returns up to limit items without a positive price,
// least recently updated first.
func (fs *FileStore) ItemsMissingPrice(_ context.Context, limit int) ([]models.WorkItem, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var missing []*Entry
	for _, entry := range fs.entries {
		if !entry.Result.HasPrice() {
			missing = append(missing, entry)
		}
	}
	sort.Slice(missing, func(i, j int) bool {
		if !missing[i].UpdatedAt.Equal(missing[j].UpdatedAt) {
			return missing[i].UpdatedAt.Before(missing[j].UpdatedAt)
		}
		return missing[i].Result.ItemCode < missing[j].Result.ItemCode
	})
	if limit > 0 && len(missing) > limit {
		missing = missing[:limit]
	}

	items := make([]models.WorkItem, 0, len(missing))
	for _, entry := range missing {
		items = append(items, models.WorkItem{Code: entry.Result.ItemCode, Category: entry.Category})
	}
	return items, nil
}

func (fs *FileStore) Stats() map[string]int {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	stats := map[string]int{"total": len(fs.entries)}
	for _, entry := range fs.entries {
		if entry.Result.HasPrice() {
			stats["priced"]++
		}
	}
	return stats
}

func (fs *FileStore) save() error {
	data, err := json.MarshalIndent(fs.entries, "", "  ")
	if err != nil {
		return err
	}

	tmpFile := fs.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write catalog: %w", err)
	}

	return os.Rename(tmpFile, fs.filename)
}

func (fs *FileStore) load() error {
	data, err := os.ReadFile(fs.filename)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, &fs.entries)
}
