// Package prediction provides the application service and HTTP handlers for
// creating events, admitting predictions, reporting live odds and settling
// events.
//
// All stake and payout values use shopspring/decimal, never float64.
package prediction

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/foresight/event-engine/internal/clock"
	"github.com/foresight/event-engine/internal/event"
	"github.com/foresight/event-engine/internal/metrics"
	"github.com/foresight/event-engine/internal/model"
	"github.com/foresight/event-engine/internal/odds"
	"github.com/foresight/event-engine/internal/settlement"
	"github.com/foresight/event-engine/internal/staking"
	"github.com/foresight/event-engine/internal/store"
)

// Service wires the pure engine packages to a Store. It holds no state of
// its own beyond its collaborators; every serialization guarantee comes
// from the store's units of work.
type Service struct {
	store    store.Store
	clock    clock.Clock
	defaults event.Defaults
	hub      *WSHub // optional WebSocket hub for live pushes
	newID    func() string
}

// NewService creates a new prediction service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, clk clock.Clock, defaults event.Defaults, hub *WSHub) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{
		store:    st,
		clock:    clk,
		defaults: defaults,
		hub:      hub,
		newID:    func() string { return uuid.New().String() },
	}
}

// EventView is an event as exposed to callers: its lifecycle state is the
// effective one at read time, alongside the separate settlement flags.
type EventView struct {
	model.Event
	AcceptingPredictions bool `json:"accepting_predictions"`
	AwaitingSettlement   bool `json:"awaiting_settlement"`
}

func (s *Service) view(ev *model.Event, now time.Time) EventView {
	st := event.StatusAt(ev, now)
	v := EventView{
		Event:                *ev,
		AcceptingPredictions: st.AcceptingPredictions,
		AwaitingSettlement:   st.AwaitingSettlement,
	}
	v.LifecycleState = st.Lifecycle
	return v
}

// CreateEvent validates spec and persists a new event owned by creatorID.
func (s *Service) CreateEvent(ctx context.Context, creatorID string, spec event.Spec) (*EventView, error) {
	now := s.clock.Now()
	ev, err := event.New(spec, s.newID(), creatorID, s.defaults, now)
	if err != nil {
		recordRejection(err)
		return nil, err
	}

	if err := s.store.CreateEvent(ctx, ev); err != nil {
		recordRejection(err)
		return nil, err
	}

	metrics.EventsCreated.WithLabelValues(string(ev.Visibility)).Inc()
	slog.Info("event created",
		"event_id", ev.ID,
		"creator", ev.CreatorID,
		"outcomes", len(ev.Outcomes),
		"visibility", ev.Visibility,
		"min_stake", ev.MinStake.String(),
		"max_stake", ev.MaxStake.String(),
	)

	v := s.view(ev, now)
	return &v, nil
}

// GetEvent returns an event with its effective state.
func (s *Service) GetEvent(ctx context.Context, eventID string) (*EventView, error) {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	v := s.view(ev, s.clock.Now())
	return &v, nil
}

// ListUpcomingEvents returns events that have not started yet, soonest first.
func (s *Service) ListUpcomingEvents(ctx context.Context) ([]EventView, error) {
	now := s.clock.Now()
	events, err := s.store.ListUpcomingEvents(ctx, now)
	if err != nil {
		return nil, err
	}
	return s.views(events, now), nil
}

// ListEventsByCreator returns a user's own events, newest first.
func (s *Service) ListEventsByCreator(ctx context.Context, creatorID string) ([]EventView, error) {
	events, err := s.store.ListEventsByCreator(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	return s.views(events, s.clock.Now()), nil
}

func (s *Service) views(events []model.Event, now time.Time) []EventView {
	out := make([]EventView, 0, len(events))
	for i := range events {
		out = append(out, s.view(&events[i], now))
	}
	return out
}

// SubmitPrediction admits a stake by userID on one outcome of eventID.
//
// The staking rules run inside the store's admission unit of work against
// the event row it locked, so a prediction can never slip in after
// settlement has started reading the prediction set.
func (s *Service) SubmitPrediction(ctx context.Context, userID, eventID string, outcomeIndex int, stake decimal.Decimal) (*model.Prediction, error) {
	candidate := staking.Candidate{UserID: userID, OutcomeIndex: outcomeIndex, Stake: stake}

	p, err := s.store.AdmitPrediction(ctx, eventID, userID,
		func(ev *model.Event, existing *model.Prediction) (*model.Prediction, error) {
			now := s.clock.Now()
			if err := staking.Validate(ev, existing, candidate, now); err != nil {
				return nil, err
			}
			return &model.Prediction{
				ID:           s.newID(),
				UserID:       userID,
				EventID:      eventID,
				OutcomeIndex: outcomeIndex,
				Stake:        stake,
				Status:       model.StatusPending,
				Payout:       decimal.Zero,
				CreatedAt:    now,
			}, nil
		})
	if err != nil {
		recordRejection(err)
		return nil, err
	}

	metrics.PredictionsAdmitted.Inc()
	metrics.StakeVolume.Add(stake.InexactFloat64())
	slog.Info("prediction admitted",
		"prediction_id", p.ID,
		"event_id", eventID,
		"user", userID,
		"outcome", outcomeIndex,
		"stake", stake.String(),
	)

	if s.hub != nil {
		if stats, err := s.GetOutcomeStats(ctx, eventID); err == nil {
			s.hub.Broadcast(WSMessage{Type: MsgOddsUpdated, EventID: eventID, Stats: &stats})
		}
	}
	return p, nil
}

// GetOutcomeStats returns the live stake distribution for an event.
func (s *Service) GetOutcomeStats(ctx context.Context, eventID string) (model.EventStats, error) {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return model.EventStats{}, err
	}
	preds, err := s.store.ListPredictionsByEvent(ctx, eventID)
	if err != nil {
		return model.EventStats{}, err
	}
	return odds.Aggregate(ev, preds), nil
}

// ListPredictionsByEvent returns every prediction on an event, oldest first.
func (s *Service) ListPredictionsByEvent(ctx context.Context, eventID string) ([]model.Prediction, error) {
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.store.ListPredictionsByEvent(ctx, eventID)
}

// ListPredictionsByUser returns a user's predictions, newest first.
func (s *Service) ListPredictionsByUser(ctx context.Context, userID string) ([]model.Prediction, error) {
	return s.store.ListPredictionsByUser(ctx, userID)
}

// SettleEvent runs settlement for eventID. Authorizing actingUserID is the
// caller's job; the service only enforces the settlement rules.
func (s *Service) SettleEvent(ctx context.Context, eventID string, req settlement.Request, actingUserID string) (*settlement.Result, error) {
	start := time.Now()

	var result *settlement.Result
	_, _, err := s.store.SettleEvent(ctx, eventID,
		func(ev *model.Event, preds []model.Prediction) (*model.Event, []model.Prediction, error) {
			res, err := settlement.Settle(ev, preds, req, s.clock.Now())
			if err != nil {
				return nil, nil, err
			}
			result = res
			return res.Event, res.Predictions, nil
		})
	if err != nil {
		recordRejection(err)
		return nil, err
	}

	metrics.SettlementLatency.Observe(time.Since(start).Seconds())
	kind := "winner"
	if result.Refunded {
		kind = "refund"
	}
	metrics.Settlements.WithLabelValues(kind).Inc()
	payoutTotal := result.PayoutTotal()
	metrics.PayoutVolume.Add(payoutTotal.InexactFloat64())

	slog.Info("event settled",
		"event_id", eventID,
		"actor", actingUserID,
		"winning_outcome", *result.Event.WinningOutcome,
		"refunded", result.Refunded,
		"predictions", len(result.Predictions),
		"total_pool", result.TotalPool.String(),
		"payout_total", payoutTotal.String(),
	)

	if s.hub != nil {
		s.hub.Broadcast(WSMessage{
			Type:           MsgEventSettled,
			EventID:        eventID,
			WinningOutcome: result.Event.WinningOutcome,
			Refunded:       result.Refunded,
		})
	}
	return result, nil
}

// recordRejection counts typed rejections; infrastructure errors are not
// rejections and are left to the caller to log.
func recordRejection(err error) {
	if rej, ok := model.AsRejection(err); ok {
		metrics.Rejections.WithLabelValues(rej.Kind.Error(), string(rej.Reason)).Inc()
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		metrics.Rejections.WithLabelValues("not_found", "not_found").Inc()
	}
}
