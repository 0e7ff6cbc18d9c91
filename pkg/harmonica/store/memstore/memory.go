package memstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/cognicore/harmonica/pkg/harmonica/internalerr"
	"github.com/cognicore/harmonica/pkg/harmonica/store"
)

// Store is an in-memory implementation of store.Store for tests.
type Store struct {
	mu        sync.RWMutex
	runs      map[string]store.Run
	sentences map[string]map[int]store.Sentence
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		runs:      make(map[string]store.Run),
		sentences: make(map[string]map[int]store.Sentence),
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// BeginRun implements store.Store.
func (s *Store) BeginRun(ctx context.Context, r store.Run) (store.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = store.NewID()
	}
	if _, ok := s.runs[r.ID]; ok {
		return store.Run{}, fmt.Errorf("run %s already exists: %w", r.ID, internalerr.ErrInvalidInput)
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = store.StatusRunning
	}
	r.Explained, r.Skipped = 0, 0
	s.runs[r.ID] = r
	s.sentences[r.ID] = make(map[int]store.Sentence)
	return r, nil
}

// RecordSentence implements store.Store.
func (s *Store) RecordSentence(ctx context.Context, runID string, sent store.Sentence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.sentences[runID]
	if !ok {
		return fmt.Errorf("run %s: %w", runID, internalerr.ErrNotFound)
	}
	mae := make(map[int]float64, len(sent.MAE))
	for r, v := range sent.MAE {
		mae[r] = v
	}
	sent.MAE = mae
	rows[sent.Index] = sent
	return nil
}

// FinishRun implements store.Store.
func (s *Store) FinishRun(ctx context.Context, runID, status string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("run %s: %w", runID, internalerr.ErrNotFound)
	}
	r.Status = status
	r.FinishedAt = at.UTC()
	s.runs[runID] = r
	return nil
}

// GetRun implements store.Store.
func (s *Store) GetRun(ctx context.Context, runID string) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[runID]
	if !ok {
		return store.Run{}, fmt.Errorf("run %s: %w", runID, internalerr.ErrNotFound)
	}
	for _, sent := range s.sentences[runID] {
		if sent.Skipped {
			r.Skipped++
		} else {
			r.Explained++
		}
	}
	return r, nil
}

// RadiusSummary implements store.Store.
func (s *Store) RadiusSummary(ctx context.Context, runID string) ([]store.RadiusStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, ok := s.sentences[runID]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, internalerr.ErrNotFound)
	}

	byRadius := make(map[int]*store.RadiusStat)
	for _, sent := range rows {
		if sent.Skipped {
			continue
		}
		for r, v := range sent.MAE {
			st, ok := byRadius[r]
			if !ok {
				st = &store.RadiusStat{Radius: r, MaxMAE: math.Inf(-1)}
				byRadius[r] = st
			}
			st.Sentences++
			st.MeanMAE += v
			st.MaxMAE = math.Max(st.MaxMAE, v)
		}
	}

	out := make([]store.RadiusStat, 0, len(byRadius))
	for _, st := range byRadius {
		st.MeanMAE /= float64(st.Sentences)
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Radius < out[j].Radius })
	return out, nil
}
