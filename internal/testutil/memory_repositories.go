// Package testutil provides in-memory collaborators for service tests.
// The stores honor the same contracts as the postgres repositories: not
// found errors, uniqueness constraints, atomic opening, and the frozen
// ranking backstop.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/approval"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/bid"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/scoring"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/tender"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// TenderStore is an in-memory tender repository.
type TenderStore struct {
	mu      sync.Mutex
	tenders map[uuid.UUID]*tender.Tender
}

// NewTenderStore creates an empty store seeded with the given tenders.
func NewTenderStore(seed ...*tender.Tender) *TenderStore {
	s := &TenderStore{tenders: make(map[uuid.UUID]*tender.Tender)}
	for _, t := range seed {
		s.tenders[t.ID] = t
	}
	return s
}

func (s *TenderStore) Create(_ context.Context, t *tender.Tender) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenders[t.ID]; ok {
		return fmt.Errorf("tender %s already exists", t.ID)
	}
	s.tenders[t.ID] = t
	return nil
}

func (s *TenderStore) GetByID(_ context.Context, id uuid.UUID) (*tender.Tender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

func (s *TenderStore) Update(_ context.Context, t *tender.Tender) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenders[t.ID]; !ok {
		return ErrNotFound
	}
	s.tenders[t.ID] = t
	return nil
}

// BidStore is an in-memory bid repository.
type BidStore struct {
	mu   sync.Mutex
	bids map[uuid.UUID]*bid.Bid
}

// NewBidStore creates an empty store seeded with the given bids.
func NewBidStore(seed ...*bid.Bid) *BidStore {
	s := &BidStore{bids: make(map[uuid.UUID]*bid.Bid)}
	for _, b := range seed {
		s.bids[b.ID] = b
	}
	return s
}

func (s *BidStore) Create(_ context.Context, b *bid.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.bids {
		if existing.TenderID == b.TenderID && existing.ParticipantID == b.ParticipantID {
			return fmt.Errorf("participant %s already has a bid on tender %s", b.ParticipantID, b.TenderID)
		}
	}
	s.bids[b.ID] = b
	return nil
}

func (s *BidStore) GetByID(_ context.Context, id uuid.UUID) (*bid.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bids[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

func (s *BidStore) Update(_ context.Context, b *bid.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bids[b.ID]; !ok {
		return ErrNotFound
	}
	s.bids[b.ID] = b
	return nil
}

func (s *BidStore) GetByTender(_ context.Context, tenderID uuid.UUID) ([]*bid.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*bid.Bid
	for _, b := range s.bids {
		if b.TenderID == tenderID {
			out = append(out, b)
		}
	}
	sortBySubmission(out)
	return out, nil
}

func (s *BidStore) OpenAll(_ context.Context, tenderID uuid.UUID, openedAt time.Time) ([]*bid.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var opened []*bid.Bid
	for _, b := range s.bids {
		if b.TenderID != tenderID {
			continue
		}
		if b.Status == bid.StatusSubmitted {
			if err := b.Open(openedAt); err != nil {
				return nil, err
			}
		}
		if b.IsOpened() {
			opened = append(opened, b)
		}
	}
	sortBySubmission(opened)
	return opened, nil
}

func sortBySubmission(bids []*bid.Bid) {
	sort.Slice(bids, func(i, j int) bool {
		return bids[i].SubmittedAt.Before(bids[j].SubmittedAt)
	})
}

// ScoreStore is an in-memory technical score ledger keyed by the
// (bid, criterion, evaluator) composite.
type ScoreStore struct {
	mu      sync.Mutex
	entries map[scoring.EntryKey]*scoring.TechnicalScoreEntry
}

// NewScoreStore creates an empty ledger seeded with the given entries.
func NewScoreStore(seed ...*scoring.TechnicalScoreEntry) *ScoreStore {
	s := &ScoreStore{entries: make(map[scoring.EntryKey]*scoring.TechnicalScoreEntry)}
	for _, e := range seed {
		s.entries[e.Key()] = e
	}
	return s
}

func (s *ScoreStore) Upsert(_ context.Context, entry *scoring.TechnicalScoreEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Key()] = entry
	return nil
}

func (s *ScoreStore) GetByTender(_ context.Context, tenderID uuid.UUID) ([]*scoring.TechnicalScoreEntry, error) {
	return s.filter(func(e *scoring.TechnicalScoreEntry) bool { return e.TenderID == tenderID }), nil
}

func (s *ScoreStore) GetByBid(_ context.Context, bidID uuid.UUID) ([]*scoring.TechnicalScoreEntry, error) {
	return s.filter(func(e *scoring.TechnicalScoreEntry) bool { return e.BidID == bidID }), nil
}

func (s *ScoreStore) GetByBidEvaluator(_ context.Context, bidID, evaluatorID uuid.UUID) ([]*scoring.TechnicalScoreEntry, error) {
	return s.filter(func(e *scoring.TechnicalScoreEntry) bool {
		return e.BidID == bidID && e.EvaluatorID == evaluatorID
	}), nil
}

func (s *ScoreStore) filter(keep func(*scoring.TechnicalScoreEntry) bool) []*scoring.TechnicalScoreEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*scoring.TechnicalScoreEntry
	for _, e := range s.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// ProjectionStore is an in-memory projection repository. Like the postgres
// implementation it refuses to overwrite a frozen ranking.
type ProjectionStore struct {
	mu         sync.Mutex
	commercial map[uuid.UUID]*scoring.CommercialResult
	combined   map[uuid.UUID]*scoring.CombinedResult
}

// NewProjectionStore creates an empty projection store.
func NewProjectionStore() *ProjectionStore {
	return &ProjectionStore{
		commercial: make(map[uuid.UUID]*scoring.CommercialResult),
		combined:   make(map[uuid.UUID]*scoring.CombinedResult),
	}
}

func (s *ProjectionStore) SaveCommercial(_ context.Context, result *scoring.CommercialResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commercial[result.TenderID] = result
	return nil
}

func (s *ProjectionStore) GetCommercial(_ context.Context, tenderID uuid.UUID) (*scoring.CommercialResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commercial[tenderID], nil
}

func (s *ProjectionStore) SaveCombined(_ context.Context, result *scoring.CombinedResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.combined[result.TenderID]; ok && existing.Frozen {
		return fmt.Errorf("combined ranking for tender %s is frozen", result.TenderID)
	}
	s.combined[result.TenderID] = result
	return nil
}

func (s *ProjectionStore) GetCombined(_ context.Context, tenderID uuid.UUID) (*scoring.CombinedResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.combined[tenderID], nil
}

func (s *ProjectionStore) FreezeCombined(_ context.Context, tenderID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.combined[tenderID]
	if !ok {
		return ErrNotFound
	}
	result.Frozen = true
	return nil
}

// WorkflowStore is an in-memory approval workflow repository enforcing at
// most one in-progress workflow per tender.
type WorkflowStore struct {
	mu        sync.Mutex
	workflows map[uuid.UUID]*approval.Workflow
}

// NewWorkflowStore creates an empty workflow store.
func NewWorkflowStore() *WorkflowStore {
	return &WorkflowStore{workflows: make(map[uuid.UUID]*approval.Workflow)}
}

func (s *WorkflowStore) Create(_ context.Context, w *approval.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.workflows {
		if existing.TenderID == w.TenderID && existing.Status == approval.WorkflowInProgress {
			return fmt.Errorf("tender %s already has an in-progress workflow", w.TenderID)
		}
	}
	s.workflows[w.ID] = w
	return nil
}

func (s *WorkflowStore) Update(_ context.Context, w *approval.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[w.ID]; !ok {
		return ErrNotFound
	}
	return nil
}

func (s *WorkflowStore) GetActiveByTender(_ context.Context, tenderID uuid.UUID) (*approval.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.workflows {
		if w.TenderID == tenderID && w.Status == approval.WorkflowInProgress {
			return w, nil
		}
	}
	return nil, nil
}
