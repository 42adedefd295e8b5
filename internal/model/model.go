// Package model defines the core domain types shared across the event engine.
// All stake and payout values use shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category is one of the fixed event categories.
type Category string

const (
	CategoryDailyLife     Category = "Daily Life"
	CategoryTech          Category = "Tech"
	CategoryGaming        Category = "Gaming"
	CategoryWork          Category = "Work"
	CategoryRelationships Category = "Relationships"
	CategoryOther         Category = "Other"
)

var validCategories = map[Category]bool{
	CategoryDailyLife:     true,
	CategoryTech:          true,
	CategoryGaming:        true,
	CategoryWork:          true,
	CategoryRelationships: true,
	CategoryOther:         true,
}

// Valid reports whether c is one of the enumerated categories.
func (c Category) Valid() bool { return validCategories[c] }

// Visibility controls who may stake on an event.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// LifecycleState is the time-derived phase of an event.
type LifecycleState string

const (
	StateUpcoming  LifecycleState = "upcoming"
	StateLive      LifecycleState = "live"
	StateCompleted LifecycleState = "completed"
)

// SettlementState records whether settlement has run. It is tracked apart
// from LifecycleState so "voting closed" and "payouts computed" never blur.
type SettlementState string

const (
	SettlementOpen    SettlementState = "open"
	SettlementSettled SettlementState = "settled"
)

// Cancelled is the winning-outcome sentinel for a settled-cancelled event.
const Cancelled = -1

// Event is a user-defined proposition with enumerated outcomes and a staking
// window. Outcomes are addressed by index and never reordered after creation.
type Event struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Category        Category        `json:"category"`
	Outcomes        []string        `json:"outcomes"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         time.Time       `json:"end_time"`
	Visibility      Visibility      `json:"visibility"`
	InvitedUsers    []string        `json:"invited_users"`
	MinStake        decimal.Decimal `json:"min_stake"`
	MaxStake        decimal.Decimal `json:"max_stake"`
	CreatorID       string          `json:"creator_id"`
	LifecycleState  LifecycleState  `json:"lifecycle_state"`  // stored: upcoming or completed
	SettlementState SettlementState `json:"settlement_state"` // open or settled
	WinningOutcome  *int            `json:"winning_outcome"`  // nil until settled; Cancelled when refunded
	SettledAt       *time.Time      `json:"settled_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Settled reports whether the event has reached its terminal settlement state.
func (e *Event) Settled() bool {
	return e.SettlementState == SettlementSettled
}

// IsInvited reports whether userID may stake on the event when it is private.
// The creator is always allowed.
func (e *Event) IsInvited(userID string) bool {
	if userID == e.CreatorID {
		return true
	}
	for _, u := range e.InvitedUsers {
		if u == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so stores never hand out shared slices.
func (e *Event) Clone() *Event {
	c := *e
	c.Outcomes = append([]string(nil), e.Outcomes...)
	if e.InvitedUsers != nil {
		c.InvitedUsers = append([]string{}, e.InvitedUsers...)
	}
	if e.WinningOutcome != nil {
		w := *e.WinningOutcome
		c.WinningOutcome = &w
	}
	if e.SettledAt != nil {
		t := *e.SettledAt
		c.SettledAt = &t
	}
	return &c
}

// PredictionStatus is the settlement outcome of a single prediction.
type PredictionStatus string

const (
	StatusPending   PredictionStatus = "pending"
	StatusWon       PredictionStatus = "won"
	StatusLost      PredictionStatus = "lost"
	StatusCancelled PredictionStatus = "cancelled"
)

// Prediction is one user's stake on one outcome of one event.
// At most one exists per (UserID, EventID).
type Prediction struct {
	ID           string           `json:"id"`
	UserID       string           `json:"user_id"`
	EventID      string           `json:"event_id"`
	OutcomeIndex int              `json:"outcome_index"`
	Stake        decimal.Decimal  `json:"stake"`
	Status       PredictionStatus `json:"status"`
	Payout       decimal.Decimal  `json:"payout"`
	CreatedAt    time.Time        `json:"created_at"`
}

// OutcomeStats is the live stake distribution for one outcome.
type OutcomeStats struct {
	OutcomeIndex int             `json:"outcome_index"`
	Label        string          `json:"label"`
	StakeSum     decimal.Decimal `json:"stake_sum"`
	Count        int             `json:"count"`
	Percentage   decimal.Decimal `json:"percentage"` // rounded per outcome; may not sum to 100
	Multiplier   decimal.Decimal `json:"multiplier"` // totalPool / StakeSum, 0 when StakeSum is 0
}

// EventStats aggregates OutcomeStats for an event.
type EventStats struct {
	EventID   string          `json:"event_id"`
	TotalPool decimal.Decimal `json:"total_pool"`
	Count     int             `json:"count"`
	Outcomes  []OutcomeStats  `json:"outcomes"`
}
