package event

import (
	"time"

	"github.com/foresight/event-engine/internal/model"
)

// EffectiveState derives the display phase from now. Nothing ticks the
// stored state forward, so readers must call this rather than trust
// Event.LifecycleState, which only ever holds upcoming or completed.
//
// An unsettled event past its end time stays live here; use
// AwaitingSettlement to tell "voting closed" apart from "payouts computed".
func EffectiveState(e *model.Event, now time.Time) model.LifecycleState {
	if e.Settled() || e.LifecycleState == model.StateCompleted {
		return model.StateCompleted
	}
	if now.Before(e.StartTime) {
		return model.StateUpcoming
	}
	return model.StateLive
}

// AcceptingPredictions reports whether new stakes may still be admitted.
func AcceptingPredictions(e *model.Event, now time.Time) bool {
	return !e.Settled() && e.LifecycleState != model.StateCompleted && now.Before(e.EndTime)
}

// AwaitingSettlement reports whether the staking window has closed but no
// settlement has run yet.
func AwaitingSettlement(e *model.Event, now time.Time) bool {
	return !e.Settled() && !now.Before(e.EndTime)
}

// Status is the pair of states exposed to callers.
type Status struct {
	Lifecycle            model.LifecycleState  `json:"lifecycle_state"`
	Settlement           model.SettlementState `json:"settlement_state"`
	AcceptingPredictions bool                  `json:"accepting_predictions"`
	AwaitingSettlement   bool                  `json:"awaiting_settlement"`
}

// StatusAt evaluates e against now.
func StatusAt(e *model.Event, now time.Time) Status {
	return Status{
		Lifecycle:            EffectiveState(e, now),
		Settlement:           e.SettlementState,
		AcceptingPredictions: AcceptingPredictions(e, now),
		AwaitingSettlement:   AwaitingSettlement(e, now),
	}
}
