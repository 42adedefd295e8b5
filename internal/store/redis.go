package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/foresight/event-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
//
// Admission and settlement always run against the primary, so the cache
// only ever serves display reads.
type CachedStore struct {
	primary Store
	rdb     redis.Cmdable
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb redis.Cmdable, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateEvent(ctx context.Context, ev *model.Event) error {
	if err := s.primary.CreateEvent(ctx, ev); err != nil {
		return err
	}
	s.cacheJSON(ctx, eventKey(ev.ID), ev)
	return nil
}

func (s *CachedStore) AdmitPrediction(ctx context.Context, eventID, userID string, admit AdmitFunc) (*model.Prediction, error) {
	p, err := s.primary.AdmitPrediction(ctx, eventID, userID, admit)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, eventPredictionsKey(eventID))
	return p, nil
}

func (s *CachedStore) SettleEvent(ctx context.Context, eventID string, settle SettleFunc) (*model.Event, []model.Prediction, error) {
	ev, preds, err := s.primary.SettleEvent(ctx, eventID, settle)
	if err != nil {
		return nil, nil, err
	}
	s.invalidate(ctx, eventKey(eventID), eventPredictionsKey(eventID))
	return ev, preds, nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	var ev model.Event
	if s.readJSON(ctx, eventKey(id), &ev) {
		return &ev, nil
	}

	// Cache miss: read from primary.
	fresh, err := s.primary.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, eventKey(id), fresh)
	return fresh, nil
}

func (s *CachedStore) ListPredictionsByEvent(ctx context.Context, eventID string) ([]model.Prediction, error) {
	var preds []model.Prediction
	if s.readJSON(ctx, eventPredictionsKey(eventID), &preds) {
		return preds, nil
	}

	preds, err := s.primary.ListPredictionsByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, eventPredictionsKey(eventID), preds)
	return preds, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListUpcomingEvents(ctx context.Context, now time.Time) ([]model.Event, error) {
	return s.primary.ListUpcomingEvents(ctx, now)
}

func (s *CachedStore) ListEventsByCreator(ctx context.Context, creatorID string) ([]model.Event, error) {
	return s.primary.ListEventsByCreator(ctx, creatorID)
}

func (s *CachedStore) GetPrediction(ctx context.Context, userID, eventID string) (*model.Prediction, error) {
	return s.primary.GetPrediction(ctx, userID, eventID)
}

func (s *CachedStore) ListPredictionsByUser(ctx context.Context, userID string) ([]model.Prediction, error) {
	return s.primary.ListPredictionsByUser(ctx, userID)
}

// --- Cache helpers ---

func (s *CachedStore) readJSON(ctx context.Context, key string, dst any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *CachedStore) cacheJSON(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func (s *CachedStore) invalidate(ctx context.Context, keys ...string) {
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		slog.Warn("cache invalidation failed", "keys", keys, "err", err)
	}
}

func eventKey(id string) string            { return fmt.Sprintf("event:%s", id) }
func eventPredictionsKey(id string) string { return fmt.Sprintf("event:%s:predictions", id) }
