package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/boddenberg/security-assessment-go/internal/domain"
	"github.com/boddenberg/security-assessment-go/internal/port"

	"go.uber.org/zap"
)

// IndexKey is the KV key holding the assessment listing.
const IndexKey = "assessment-index"

// Index is the explicit list of assessments used by the admin listing and
// the export-all task. All users share one document, so writes are
// serialized here.
type Index struct {
	mu     sync.Mutex
	store  port.KVStore
	logger *zap.Logger
}

// NewIndex creates an index over store.
func NewIndex(store port.KVStore, logger *zap.Logger) *Index {
	return &Index{store: store, logger: logger}
}

// EntryFor builds the index row of an assessment.
func EntryFor(a *domain.Assessment) domain.IndexEntry {
	return domain.IndexEntry{
		ID:          a.ID,
		UserID:      a.UserID,
		CompanyName: a.Company.RazaoSocial,
		CNPJ:        a.Company.CNPJ,
		Status:      a.Status,
		Progress:    a.Progress,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
		CompletedAt: a.CompletedAt,
	}
}

// Upsert inserts or replaces the entry with the same id.
func (i *Index) Upsert(ctx context.Context, entry domain.IndexEntry) error {
	ctx, span := tracer.Start(ctx, "Index.Upsert")
	defer span.End()

	i.mu.Lock()
	defer i.mu.Unlock()

	entries, err := i.load(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for n := range entries {
		if entries[n].ID == entry.ID {
			entries[n] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, entry)
	}
	return i.save(ctx, entries)
}

// RemoveDrafts drops the draft entries of userID. Completed entries stay.
func (i *Index) RemoveDrafts(ctx context.Context, userID string) error {
	ctx, span := tracer.Start(ctx, "Index.RemoveDrafts")
	defer span.End()

	i.mu.Lock()
	defer i.mu.Unlock()

	entries, err := i.load(ctx)
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.UserID == userID && e.Status == domain.StatusDraft {
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) == len(entries) {
		return nil
	}
	return i.save(ctx, kept)
}

// List returns the entries whose company name, CNPJ or user id contains
// query (case-insensitive), most recently updated first. An empty query
// matches everything.
func (i *Index) List(ctx context.Context, query string) ([]domain.IndexEntry, error) {
	ctx, span := tracer.Start(ctx, "Index.List")
	defer span.End()

	i.mu.Lock()
	entries, err := i.load(ctx)
	i.mu.Unlock()
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]domain.IndexEntry, 0, len(entries))
	for _, e := range entries {
		if q == "" ||
			strings.Contains(strings.ToLower(e.CompanyName), q) ||
			strings.Contains(strings.ToLower(e.CNPJ), q) ||
			strings.Contains(strings.ToLower(e.UserID), q) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].UpdatedAt.After(out[b].UpdatedAt)
	})
	return out, nil
}

// Completed returns the completed entries.
func (i *Index) Completed(ctx context.Context) ([]domain.IndexEntry, error) {
	all, err := i.List(ctx, "")
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, e := range all {
		if e.Status == domain.StatusCompleted {
			out = append(out, e)
		}
	}
	return out, nil
}

func (i *Index) load(ctx context.Context) ([]domain.IndexEntry, error) {
	data, err := i.store.Get(ctx, IndexKey)
	if errors.Is(err, port.ErrKeyNotFound) {
		return []domain.IndexEntry{}, nil
	}
	if err != nil {
		return nil, &domain.ErrPersistence{Op: "get", Key: IndexKey, Err: err}
	}
	var entries []domain.IndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		i.logger.Warn("malformed assessment index, starting empty", zap.Error(err))
		return []domain.IndexEntry{}, nil
	}
	return entries, nil
}

func (i *Index) save(ctx context.Context, entries []domain.IndexEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	if err := i.store.Put(ctx, IndexKey, data); err != nil {
		return &domain.ErrPersistence{Op: "put", Key: IndexKey, Err: err}
	}
	return nil
}
