// Package settlement turns an event's pool of stakes into winners, losers
// and payouts using pari-mutuel redistribution.
//
// Settle is a pure function over a fully loaded event and its predictions.
// It never mutates its inputs; the store persists the returned copies in a
// single unit of work.
package settlement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/foresight/event-engine/internal/model"
)

// Request describes a settlement call.
type Request struct {
	// WinningOutcome is an index into the event's outcomes. Ignored when
	// Cancel is set.
	WinningOutcome int

	// Cancel refunds every stake instead of declaring a winner.
	Cancel bool

	// Force allows a cancellation before the event's end time. It has no
	// effect on settlements with a winner.
	Force bool
}

// Cancel returns a refund-everything request.
func Cancel(force bool) Request {
	return Request{WinningOutcome: model.Cancelled, Cancel: true, Force: force}
}

// Winner returns a request declaring outcome idx the winner.
func Winner(idx int) Request {
	return Request{WinningOutcome: idx}
}

// Result is the settled event and every prediction under it.
type Result struct {
	Event       *model.Event
	Predictions []model.Prediction
	TotalPool   decimal.Decimal
	WinningPool decimal.Decimal
	// Refunded is true when every stake was returned, either because the
	// event was cancelled or because nobody backed the winning outcome.
	Refunded bool
}

// Settle validates req against ev and computes each prediction's final
// status and payout.
//
// Winners split the whole pool in proportion to their own stake:
// payout = stake * totalPool / winningPool. Losers get 0. When the winning
// pool is empty the event settles exactly like a cancellation so nothing
// divides by zero.
func Settle(ev *model.Event, predictions []model.Prediction, req Request, now time.Time) (*Result, error) {
	if ev.Settled() || ev.LifecycleState == model.StateCompleted {
		return nil, fmt.Errorf("%w: event %s", model.ErrAlreadySettled, ev.ID)
	}

	cancel := req.Cancel
	if now.Before(ev.EndTime) && !(cancel && req.Force) {
		return nil, fmt.Errorf("%w: event %s ends at %s",
			model.ErrEventNotEnded, ev.ID, ev.EndTime.Format(time.RFC3339))
	}

	if !cancel && (req.WinningOutcome < 0 || req.WinningOutcome >= len(ev.Outcomes)) {
		return nil, fmt.Errorf("%w: index %d not in [0, %d)",
			model.ErrInvalidWinningOutcome, req.WinningOutcome, len(ev.Outcomes))
	}

	totalPool := decimal.Zero
	winningPool := decimal.Zero
	for _, p := range predictions {
		totalPool = totalPool.Add(p.Stake)
		if !cancel && p.OutcomeIndex == req.WinningOutcome {
			winningPool = winningPool.Add(p.Stake)
		}
	}

	refund := cancel || winningPool.IsZero()

	settled := make([]model.Prediction, len(predictions))
	for i, p := range predictions {
		switch {
		case refund:
			p.Status = model.StatusCancelled
			p.Payout = p.Stake
		case p.OutcomeIndex == req.WinningOutcome:
			p.Status = model.StatusWon
			p.Payout = p.Stake.Mul(totalPool).Div(winningPool)
		default:
			p.Status = model.StatusLost
			p.Payout = decimal.Zero
		}
		settled[i] = p
	}

	out := ev.Clone()
	winner := req.WinningOutcome
	if refund {
		winner = model.Cancelled
	}
	out.WinningOutcome = &winner
	out.SettlementState = model.SettlementSettled
	out.LifecycleState = model.StateCompleted
	settledAt := now
	out.SettledAt = &settledAt
	out.UpdatedAt = now

	return &Result{
		Event:       out,
		Predictions: settled,
		TotalPool:   totalPool,
		WinningPool: winningPool,
		Refunded:    refund,
	}, nil
}

// PayoutTotal sums every payout in r.
func (r *Result) PayoutTotal() decimal.Decimal {
	total := decimal.Zero
	for _, p := range r.Predictions {
		total = total.Add(p.Payout)
	}
	return total
}
