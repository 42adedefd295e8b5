// Package odds computes the live stake distribution across an event's
// outcomes. It is read-only and safe at any lifecycle state.
package odds

import (
	"github.com/shopspring/decimal"

	"github.com/foresight/event-engine/internal/model"
)

var hundred = decimal.NewFromInt(100)

// MultiplierPlaces is the precision of the informational payout multiplier.
const MultiplierPlaces = 4

// Aggregate sums stake and counts predictions per outcome of ev.
//
// Percentage is round(100 * stakeSum / totalPool) per outcome, so the
// column may not add up to exactly 100. With no stake at all every outcome
// reports 0. Multiplier is what one unit staked on the outcome would return
// if it won now (totalPool / stakeSum), 0 when nobody backs the outcome.
func Aggregate(ev *model.Event, predictions []model.Prediction) model.EventStats {
	stats := model.EventStats{
		EventID:   ev.ID,
		TotalPool: decimal.Zero,
		Outcomes:  make([]model.OutcomeStats, len(ev.Outcomes)),
	}
	for i, label := range ev.Outcomes {
		stats.Outcomes[i] = model.OutcomeStats{
			OutcomeIndex: i,
			Label:        label,
			StakeSum:     decimal.Zero,
			Percentage:   decimal.Zero,
			Multiplier:   decimal.Zero,
		}
	}

	for _, p := range predictions {
		if p.OutcomeIndex < 0 || p.OutcomeIndex >= len(stats.Outcomes) {
			continue
		}
		o := &stats.Outcomes[p.OutcomeIndex]
		o.StakeSum = o.StakeSum.Add(p.Stake)
		o.Count++
		stats.TotalPool = stats.TotalPool.Add(p.Stake)
		stats.Count++
	}

	if stats.TotalPool.IsZero() {
		return stats
	}

	for i := range stats.Outcomes {
		o := &stats.Outcomes[i]
		o.Percentage = o.StakeSum.Mul(hundred).Div(stats.TotalPool).Round(0)
		if o.StakeSum.IsPositive() {
			o.Multiplier = stats.TotalPool.Div(o.StakeSum).Round(MultiplierPlaces)
		}
	}
	return stats
}
