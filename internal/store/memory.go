package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/foresight/event-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
//
// A single mutex serializes every admission and settlement, which gives the
// same guarantees the PostgreSQL row locks do.
type MemoryStore struct {
	mu          sync.RWMutex
	events      map[string]*model.Event
	predictions map[string]*model.Prediction // by prediction ID
	byUserEvent map[string]string            // userID|eventID → prediction ID
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:      make(map[string]*model.Event),
		predictions: make(map[string]*model.Prediction),
		byUserEvent: make(map[string]string),
	}
}

func userEventKey(userID, eventID string) string { return userID + "|" + eventID }

func (s *MemoryStore) CreateEvent(_ context.Context, ev *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[ev.ID]; ok {
		return fmt.Errorf("%w: event %s already exists", model.ErrConflict, ev.ID)
	}
	s.events[ev.ID] = ev.Clone()
	return nil
}

func (s *MemoryStore) GetEvent(_ context.Context, id string) (*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return ev.Clone(), nil
}

func (s *MemoryStore) ListUpcomingEvents(_ context.Context, now time.Time) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []model.Event
	for _, ev := range s.events {
		if ev.StartTime.After(now) {
			events = append(events, *ev.Clone())
		}
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].StartTime.Before(events[j].StartTime)
	})
	return events, nil
}

func (s *MemoryStore) ListEventsByCreator(_ context.Context, creatorID string) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []model.Event
	for _, ev := range s.events {
		if ev.CreatorID == creatorID {
			events = append(events, *ev.Clone())
		}
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
	return events, nil
}

func (s *MemoryStore) GetPrediction(_ context.Context, userID, eventID string) (*model.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := s.lookupPrediction(userID, eventID)
	if p == nil {
		return nil, fmt.Errorf("prediction %s on %s: %w", userID, eventID, ErrNotFound)
	}
	return p, nil
}

func (s *MemoryStore) ListPredictionsByEvent(_ context.Context, eventID string) ([]model.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.eventPredictions(eventID), nil
}

func (s *MemoryStore) ListPredictionsByUser(_ context.Context, userID string) ([]model.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Prediction
	for _, p := range s.predictions {
		if p.UserID == userID {
			result = append(result, *p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) AdmitPrediction(_ context.Context, eventID, userID string, admit AdmitFunc) (*model.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[eventID]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}

	p, err := admit(ev.Clone(), s.lookupPrediction(userID, eventID))
	if err != nil {
		return nil, err
	}

	// Uniqueness is enforced at the insert itself, not only by admit.
	key := userEventKey(p.UserID, p.EventID)
	if _, dup := s.byUserEvent[key]; dup {
		return nil, fmt.Errorf("%w: prediction for %s on %s", model.ErrConflict, p.UserID, p.EventID)
	}
	if _, dup := s.predictions[p.ID]; dup {
		return nil, fmt.Errorf("%w: prediction id %s", model.ErrConflict, p.ID)
	}

	stored := *p
	s.predictions[p.ID] = &stored
	s.byUserEvent[key] = p.ID
	return p, nil
}

func (s *MemoryStore) SettleEvent(_ context.Context, eventID string, settle SettleFunc) (*model.Event, []model.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[eventID]
	if !ok {
		return nil, nil, fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}

	settled, preds, err := settle(ev.Clone(), s.eventPredictions(eventID))
	if err != nil {
		return nil, nil, err
	}

	// Compare-and-swap on the open settlement state.
	if ev.SettlementState != model.SettlementOpen {
		return nil, nil, fmt.Errorf("%w: event %s settled concurrently", model.ErrConflict, eventID)
	}
	for _, p := range preds {
		if stored, ok := s.predictions[p.ID]; !ok || stored.EventID != eventID {
			return nil, nil, fmt.Errorf("prediction %s on %s: %w", p.ID, eventID, ErrNotFound)
		}
	}

	s.events[eventID] = settled.Clone()
	for _, p := range preds {
		stored := p
		s.predictions[p.ID] = &stored
	}
	return settled, preds, nil
}

// lookupPrediction must be called with mu held.
func (s *MemoryStore) lookupPrediction(userID, eventID string) *model.Prediction {
	id, ok := s.byUserEvent[userEventKey(userID, eventID)]
	if !ok {
		return nil
	}
	p := *s.predictions[id]
	return &p
}

// eventPredictions must be called with mu held.
func (s *MemoryStore) eventPredictions(eventID string) []model.Prediction {
	var result []model.Prediction
	for _, p := range s.predictions {
		if p.EventID == eventID {
			result = append(result, *p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}
