// Package staking decides whether a candidate prediction may be admitted
// against an event's current state. It has no side effects; the store
// re-runs it inside the admission unit of work so the decision and the
// insert see the same event row.
package staking

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/foresight/event-engine/internal/model"
)

// Candidate is a prediction that has not been admitted yet.
type Candidate struct {
	UserID       string
	OutcomeIndex int
	Stake        decimal.Decimal
}

// Validate checks c against ev and the user's existing prediction on ev
// (nil when there is none). Rules run in a fixed order and the first
// failure wins:
//
//  1. event not completed and now < end time → event_closed
//  2. outcome index in range → invalid_outcome
//  3. stake within [min, max] inclusive → stake_out_of_bounds
//  4. no existing prediction → duplicate_prediction
//  5. private events admit only the creator and invitees → not_invited
func Validate(ev *model.Event, existing *model.Prediction, c Candidate, now time.Time) error {
	if ev.Settled() || ev.LifecycleState == model.StateCompleted || !now.Before(ev.EndTime) {
		return fmt.Errorf("%w: event %s stopped accepting predictions at %s",
			model.ErrEventClosed, ev.ID, ev.EndTime.Format(time.RFC3339))
	}

	if c.OutcomeIndex < 0 || c.OutcomeIndex >= len(ev.Outcomes) {
		return fmt.Errorf("%w: index %d not in [0, %d)",
			model.ErrInvalidOutcome, c.OutcomeIndex, len(ev.Outcomes))
	}

	if c.Stake.LessThan(ev.MinStake) || c.Stake.GreaterThan(ev.MaxStake) {
		return fmt.Errorf("%w: stake must be between %s and %s",
			model.ErrStakeOutOfBounds, ev.MinStake, ev.MaxStake)
	}

	if existing != nil {
		return fmt.Errorf("%w: user %s already staked on event %s",
			model.ErrDuplicatePrediction, c.UserID, ev.ID)
	}

	if ev.Visibility == model.VisibilityPrivate && !ev.IsInvited(c.UserID) {
		return fmt.Errorf("%w: user %s", model.ErrNotInvited, c.UserID)
	}

	return nil
}
