package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maltedev/dealer-portal-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func price(v float64) *float64 { return &v }

func newStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	fs, err := NewFileStore(path)
	require.NoError(t, err)

	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	fs.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return fs, path
}

func TestUpsertReportsChanges(t *testing.T) {
	ctx := context.Background()
	fs, path := newStore(t)

	result := &models.Result{ItemCode: "TILE-1", Price: price(3.49), PriceBasis: "SF"}

	changed, err := fs.Upsert(ctx, result)
	require.NoError(t, err)
	assert.True(t, changed)

	same := &models.Result{ItemCode: "TILE-1", Price: price(3.49), PriceBasis: "SF", Fields: map[string]string{}}
	changed, err = fs.Upsert(ctx, same)
	require.NoError(t, err)
	assert.False(t, changed, "empty fields equal nil fields")

	changed, err = fs.Upsert(ctx, &models.Result{ItemCode: "TILE-1", Price: price(3.29), PriceBasis: "SF"})
	require.NoError(t, err)
	assert.True(t, changed)

	_, err = fs.Upsert(ctx, &models.Result{})
	assert.Error(t, err)

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	got, ok := reopened.Get("TILE-1")
	require.True(t, ok)
	assert.Equal(t, 3.29, *got.Price)
}

func TestItemsMissingPrice(t *testing.T) {
	ctx := context.Background()
	fs, _ := newStore(t)

	added, err := fs.RegisterItems(ctx, []models.WorkItem{
		{Code: "A", Category: "tile"}, {Code: "B"}, {Code: "C"}, {Code: ""},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	added, err = fs.RegisterItems(ctx, []models.WorkItem{{Code: "A"}})
	require.NoError(t, err)
	assert.Zero(t, added)

	_, err = fs.Upsert(ctx, &models.Result{ItemCode: "B", Price: price(9.99)})
	require.NoError(t, err)

	items, err := fs.ItemsMissingPrice(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []models.WorkItem{{Code: "A", Category: "tile"}, {Code: "C"}}, items)

	items, err = fs.ItemsMissingPrice(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	assert.Equal(t, map[string]int{"total": 3, "priced": 1}, fs.Stats())
}

func TestNewFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	_, err := NewFileStore(path)
	assert.Error(t, err)
}
