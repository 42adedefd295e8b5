// Package event builds new events from caller input, enforcing every
// creation-time invariant, and derives an event's effective lifecycle phase.
package event

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/foresight/event-engine/internal/model"
)

// MinTitleLen is the minimum trimmed title length.
const MinTitleLen = 5

// ErrInvalid is the validation_error returned for malformed creation input.
var ErrInvalid = &model.Rejection{Kind: model.ErrValidation, Reason: model.ReasonInvalidInput}

// Spec is the caller-supplied description of a new event. Zero values fall
// back to the defaults documented on each field.
type Spec struct {
	Title        string           `json:"title"`
	Category     model.Category   `json:"category"`   // "" → Daily Life
	Outcomes     []string         `json:"outcomes"`   // empty → ["Yes", "No"]
	StartTime    time.Time        `json:"start_time"` // required
	EndTime      time.Time        `json:"end_time"`   // required
	Visibility   model.Visibility `json:"visibility"` // "" → public
	InvitedUsers []string         `json:"invited_users"`
	MinStake     *decimal.Decimal `json:"min_stake"` // nil → Defaults.MinStake
	MaxStake     *decimal.Decimal `json:"max_stake"` // nil → Defaults.MaxStake
}

// Defaults holds the stake bounds applied when a Spec omits them.
type Defaults struct {
	MinStake decimal.Decimal
	MaxStake decimal.Decimal
}

// DefaultBounds returns the stock 0..100 stake window.
func DefaultBounds() Defaults {
	return Defaults{MinStake: decimal.Zero, MaxStake: decimal.NewFromInt(100)}
}

// New validates spec and returns a fresh upcoming event owned by creatorID.
// Errors wrap ErrInvalid and leave nothing behind.
func New(spec Spec, id, creatorID string, defaults Defaults, now time.Time) (*model.Event, error) {
	if strings.TrimSpace(creatorID) == "" {
		return nil, fmt.Errorf("%w: creator is required", ErrInvalid)
	}

	title := strings.TrimSpace(spec.Title)
	if len([]rune(title)) < MinTitleLen {
		return nil, fmt.Errorf("%w: title must be at least %d characters", ErrInvalid, MinTitleLen)
	}

	category := spec.Category
	if category == "" {
		category = model.CategoryDailyLife
	}
	if !category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalid, category)
	}

	outcomes, err := normalizeOutcomes(spec.Outcomes)
	if err != nil {
		return nil, err
	}

	if spec.StartTime.IsZero() || spec.EndTime.IsZero() {
		return nil, fmt.Errorf("%w: start_time and end_time are required", ErrInvalid)
	}
	if !spec.StartTime.After(now) {
		return nil, fmt.Errorf("%w: event must start in the future", ErrInvalid)
	}
	if !spec.EndTime.After(spec.StartTime) {
		return nil, fmt.Errorf("%w: end_time must be after start_time", ErrInvalid)
	}

	visibility := spec.Visibility
	if visibility == "" {
		visibility = model.VisibilityPublic
	}
	invited := []string{}
	switch visibility {
	case model.VisibilityPublic:
		// Invites are meaningless on public events.
	case model.VisibilityPrivate:
		invited = normalizeInvites(spec.InvitedUsers)
		if len(invited) == 0 {
			return nil, fmt.Errorf("%w: private events require at least one invited user", ErrInvalid)
		}
	default:
		return nil, fmt.Errorf("%w: unknown visibility %q", ErrInvalid, visibility)
	}

	minStake := defaults.MinStake
	if spec.MinStake != nil {
		minStake = *spec.MinStake
	}
	maxStake := defaults.MaxStake
	if spec.MaxStake != nil {
		maxStake = *spec.MaxStake
	}
	if minStake.IsNegative() {
		return nil, fmt.Errorf("%w: min_stake must be non-negative", ErrInvalid)
	}
	if maxStake.LessThan(minStake) {
		return nil, fmt.Errorf("%w: max_stake %s is below min_stake %s", ErrInvalid, maxStake, minStake)
	}

	return &model.Event{
		ID:              id,
		Title:           title,
		Category:        category,
		Outcomes:        outcomes,
		StartTime:       spec.StartTime.UTC(),
		EndTime:         spec.EndTime.UTC(),
		Visibility:      visibility,
		InvitedUsers:    invited,
		MinStake:        minStake,
		MaxStake:        maxStake,
		CreatorID:       creatorID,
		LifecycleState:  model.StateUpcoming,
		SettlementState: model.SettlementOpen,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func normalizeOutcomes(in []string) ([]string, error) {
	if len(in) == 0 {
		return []string{"Yes", "No"}, nil
	}
	if len(in) < 2 {
		return nil, fmt.Errorf("%w: at least two outcomes are required", ErrInvalid)
	}
	out := make([]string, len(in))
	for i, o := range in {
		o = strings.TrimSpace(o)
		if o == "" {
			return nil, fmt.Errorf("%w: outcome %d is empty", ErrInvalid, i)
		}
		out[i] = o
	}
	return out, nil
}

func normalizeInvites(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, u := range in {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
