// Package memory implements the bond and production stores in process memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/greenbond-oracle/internal/domain"
)

// Store implements domain.BondStore and domain.ProductionStore. Every mutation
// happens under a single RWMutex; reads hand out deep copies.
type Store struct {
	mu         sync.RWMutex
	bonds      map[string]*domain.Bond
	order      []string
	production map[string]map[string]domain.ProductionSample
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		bonds:      make(map[string]*domain.Bond),
		production: make(map[string]map[string]domain.ProductionSample),
	}
}

// Create inserts a new bond. It fails with domain.ErrAlreadyExists when the ID
// is taken.
func (s *Store) Create(_ context.Context, bond domain.Bond) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bonds[bond.ID]; ok {
		return fmt.Errorf("memory: bond %s: %w", bond.ID, domain.ErrAlreadyExists)
	}
	b := bond.Clone()
	s.bonds[bond.ID] = &b
	s.order = append(s.order, bond.ID)
	return nil
}

// Get returns a copy of the bond with the given ID.
func (s *Store) Get(_ context.Context, id string) (domain.Bond, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bonds[id]
	if !ok {
		return domain.Bond{}, fmt.Errorf("memory: bond %s: %w", id, domain.ErrNotFound)
	}
	return b.Clone(), nil
}

// List returns copies of all bonds in creation order.
func (s *Store) List(_ context.Context) ([]domain.Bond, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Bond, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.bonds[id].Clone())
	}
	return out, nil
}

// Count returns the number of bonds.
func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bonds), nil
}

// Update applies fn to a working copy of the bond under the write lock and
// commits it only when fn succeeds.
func (s *Store) Update(_ context.Context, id string, fn func(*domain.Bond) error) (domain.Bond, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bonds[id]
	if !ok {
		return domain.Bond{}, fmt.Errorf("memory: bond %s: %w", id, domain.ErrNotFound)
	}
	work := b.Clone()
	if err := fn(&work); err != nil {
		return domain.Bond{}, err
	}
	work.ID = id
	s.bonds[id] = &work
	return work.Clone(), nil
}

// AppendSamples adds production samples. A sample for an existing
// (bond, date) pair replaces the previous one.
func (s *Store) AppendSamples(_ context.Context, samples []domain.ProductionSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sample := range samples {
		if sample.BondID == "" || sample.Date == "" {
			return fmt.Errorf("memory: sample missing bond id or date: %w", domain.ErrValidation)
		}
		byDate, ok := s.production[sample.BondID]
		if !ok {
			byDate = make(map[string]domain.ProductionSample)
			s.production[sample.BondID] = byDate
		}
		byDate[sample.Date] = sample
	}
	return nil
}

// Sample returns the production sample for a bond on a date.
func (s *Store) Sample(_ context.Context, bondID, date string) (domain.ProductionSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sample, ok := s.production[bondID][date]
	if !ok {
		return domain.ProductionSample{}, fmt.Errorf("memory: production %s/%s: %w", bondID, date, domain.ErrNotFound)
	}
	return sample, nil
}

// Samples returns every production sample for a bond in date order.
func (s *Store) Samples(_ context.Context, bondID string) ([]domain.ProductionSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byDate := s.production[bondID]
	out := make([]domain.ProductionSample, 0, len(byDate))
	for _, sample := range byDate {
		out = append(out, sample)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}
