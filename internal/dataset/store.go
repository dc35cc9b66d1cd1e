// Package dataset keeps the analysis inputs the API serves.
package dataset

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rawblock/wallet-anomaly-engine/internal/observability"
	"github.com/rawblock/wallet-anomaly-engine/pkg/models"
)

// ErrNotFound is returned when no dataset has the requested id.
var ErrNotFound = errors.New("dataset not found")

// Store is a source of datasets.
type Store interface {
	Get(ctx context.Context, id string) (*models.Dataset, error)
	Put(ctx context.Context, ds *models.Dataset) error
	List(ctx context.Context) ([]models.DatasetSummary, error)
}

// MemoryStore holds datasets for the lifetime of the process.
type MemoryStore struct {
	mu       sync.RWMutex
	datasets map[string]*models.Dataset
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{datasets: make(map[string]*models.Dataset)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, ok := s.datasets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ds, nil
}

// Put stores ds under its id, replacing any previous dataset with that id.
// Datasets are treated as immutable once stored.
func (s *MemoryStore) Put(_ context.Context, ds *models.Dataset) error {
	if ds == nil || ds.ID == "" {
		return errors.New("dataset id is required")
	}
	s.mu.Lock()
	s.datasets[ds.ID] = ds
	n := len(s.datasets)
	s.mu.Unlock()

	observability.DatasetsLoaded.Set(float64(n))
	return nil
}

// List returns summaries, newest first.
func (s *MemoryStore) List(_ context.Context) ([]models.DatasetSummary, error) {
	s.mu.RLock()
	out := make([]models.DatasetSummary, 0, len(s.datasets))
	for _, ds := range s.datasets {
		out = append(out, ds.Summary())
	}
	s.mu.RUnlock()

	sortSummaries(out)
	return out, nil
}

func sortSummaries(out []models.DatasetSummary) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
}

// Layered serves from memory and falls back to a read-only feed, caching
// what it finds there. Writes only ever reach memory.
type Layered struct {
	cache *MemoryStore
	feed  Store
}

// NewLayered returns a store over cache and feed. A nil feed makes it a plain
// memory store.
func NewLayered(cache *MemoryStore, feed Store) *Layered {
	return &Layered{cache: cache, feed: feed}
}

func (l *Layered) Get(ctx context.Context, id string) (*models.Dataset, error) {
	ds, err := l.cache.Get(ctx, id)
	if err == nil || l.feed == nil || !errors.Is(err, ErrNotFound) {
		return ds, err
	}
	ds, err = l.feed.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	_ = l.cache.Put(ctx, ds)
	return ds, nil
}

func (l *Layered) Put(ctx context.Context, ds *models.Dataset) error {
	return l.cache.Put(ctx, ds)
}

// List merges both sources; the memory copy wins on id clashes.
func (l *Layered) List(ctx context.Context) ([]models.DatasetSummary, error) {
	out, err := l.cache.List(ctx)
	if err != nil || l.feed == nil {
		return out, err
	}
	remote, err := l.feed.List(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(out))
	for _, s := range out {
		seen[s.ID] = true
	}
	for _, s := range remote {
		if !seen[s.ID] {
			out = append(out, s)
		}
	}
	sortSummaries(out)
	return out, nil
}
