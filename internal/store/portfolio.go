// Package store holds the in-memory reference data backing the API:
// portfolio snapshots and historical return series.
package store

import (
	"sort"
	"sync"

	"github.com/quantrisk/risk-engine/pkg/models"
	"github.com/quantrisk/risk-engine/pkg/utils/errors"
)

// PortfolioStore is a thread-safe in-memory snapshot store keyed by
// portfolio ID. Stored snapshots are copied on the way in and out so
// callers can never alias internal state.
type PortfolioStore struct {
	mu        sync.RWMutex
	snapshots map[string]*models.PortfolioSnapshot
}

// NewPortfolioStore creates an empty portfolio store
func NewPortfolioStore() *PortfolioStore {
	return &PortfolioStore{snapshots: make(map[string]*models.PortfolioSnapshot)}
}

// Save validates and stores a snapshot, replacing any existing snapshot
// with the same portfolio ID
func (s *PortfolioStore) Save(snapshot *models.PortfolioSnapshot) error {
	if snapshot.PortfolioID == "" {
		return errors.Validation("portfolioId", "portfolio id is required")
	}
	if err := snapshot.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.PortfolioID] = copySnapshot(snapshot)
	return nil
}

// Get returns a copy of the stored snapshot
func (s *PortfolioStore) Get(portfolioID string) (*models.PortfolioSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.snapshots[portfolioID]
	if !ok {
		return nil, errors.NotFoundf("portfolio %q not found", portfolioID)
	}
	return copySnapshot(snapshot), nil
}

// Delete removes a snapshot; deleting a missing portfolio is an error
func (s *PortfolioStore) Delete(portfolioID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snapshots[portfolioID]; !ok {
		return errors.NotFoundf("portfolio %q not found", portfolioID)
	}
	delete(s.snapshots, portfolioID)
	return nil
}

// List returns all stored portfolio IDs in lexical order
func (s *PortfolioStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.snapshots))
	for id := range s.snapshots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func copySnapshot(snapshot *models.PortfolioSnapshot) *models.PortfolioSnapshot {
	out := &models.PortfolioSnapshot{
		PortfolioID: snapshot.PortfolioID,
		AsOfDate:    snapshot.AsOfDate,
		Positions:   make([]models.Position, len(snapshot.Positions)),
	}
	copy(out.Positions, snapshot.Positions)
	for i := range out.Positions {
		if out.Positions[i].MaturityDate != nil {
			d := *out.Positions[i].MaturityDate
			out.Positions[i].MaturityDate = &d
		}
	}
	return out
}
