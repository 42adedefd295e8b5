package event

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/foresight/event-engine/internal/model"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func d(f float64) *decimal.Decimal {
	v := decimal.NewFromFloat(f)
	return &v
}

func validSpec() Spec {
	return Spec{
		Title:     "Will it rain on Friday?",
		Category:  model.CategoryDailyLife,
		Outcomes:  []string{"Yes", "No"},
		StartTime: now.Add(time.Hour),
		EndTime:   now.Add(24 * time.Hour),
		MinStake:  d(10),
		MaxStake:  d(100),
	}
}

func mustReject(t *testing.T, spec Spec) {
	t.Helper()
	_, err := New(spec, "ev-1", "alice", DefaultBounds(), now)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected validation_error kind, got %v", err)
	}
}

// --- Creation ---

func TestNew_Valid(t *testing.T) {
	e, err := New(validSpec(), "ev-1", "alice", DefaultBounds(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ID != "ev-1" || e.CreatorID != "alice" {
		t.Errorf("unexpected identity: %s / %s", e.ID, e.CreatorID)
	}
	if len(e.Outcomes) < 2 {
		t.Errorf("expected at least two outcomes, got %v", e.Outcomes)
	}
	if e.MaxStake.LessThan(e.MinStake) {
		t.Errorf("max_stake %s below min_stake %s", e.MaxStake, e.MinStake)
	}
	if !e.EndTime.After(e.StartTime) {
		t.Error("end_time must be after start_time")
	}
	if e.LifecycleState != model.StateUpcoming || e.SettlementState != model.SettlementOpen {
		t.Errorf("unexpected initial states: %s / %s", e.LifecycleState, e.SettlementState)
	}
	if e.WinningOutcome != nil {
		t.Error("winning outcome must be absent at creation")
	}
}

func TestNew_Defaults(t *testing.T) {
	spec := validSpec()
	spec.Category = ""
	spec.Outcomes = nil
	spec.Visibility = ""
	spec.MinStake = nil
	spec.MaxStake = nil
	spec.InvitedUsers = []string{"bob"}

	e, err := New(spec, "ev-1", "alice", DefaultBounds(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Category != model.CategoryDailyLife {
		t.Errorf("expected default category, got %s", e.Category)
	}
	if len(e.Outcomes) != 2 || e.Outcomes[0] != "Yes" || e.Outcomes[1] != "No" {
		t.Errorf("expected default outcomes, got %v", e.Outcomes)
	}
	if e.Visibility != model.VisibilityPublic {
		t.Errorf("expected public, got %s", e.Visibility)
	}
	if e.InvitedUsers == nil || len(e.InvitedUsers) != 0 {
		t.Errorf("public events must carry an empty invite list, got %#v", e.InvitedUsers)
	}
	if !e.MinStake.IsZero() || !e.MaxStake.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected 0..100 bounds, got %s..%s", e.MinStake, e.MaxStake)
	}
}

func TestNew_TrimsOutcomesAndTitle(t *testing.T) {
	spec := validSpec()
	spec.Title = "   Ship the release   "
	spec.Outcomes = []string{" Monday ", "Tuesday", " Never"}

	e, err := New(spec, "ev-1", "alice", DefaultBounds(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Title != "Ship the release" {
		t.Errorf("title not trimmed: %q", e.Title)
	}
	want := []string{"Monday", "Tuesday", "Never"}
	for i := range want {
		if e.Outcomes[i] != want[i] {
			t.Errorf("outcome %d: want %q, got %q", i, want[i], e.Outcomes[i])
		}
	}
}

func TestNew_ShortTitle(t *testing.T) {
	spec := validSpec()
	spec.Title = "  Hi  "
	mustReject(t, spec)
}

func TestNew_UnknownCategory(t *testing.T) {
	spec := validSpec()
	spec.Category = "Sports"
	mustReject(t, spec)
}

func TestNew_SingleOutcome(t *testing.T) {
	spec := validSpec()
	spec.Outcomes = []string{"Yes"}
	mustReject(t, spec)
}

func TestNew_BlankOutcome(t *testing.T) {
	spec := validSpec()
	spec.Outcomes = []string{"Yes", "   "}
	mustReject(t, spec)
}

func TestNew_StartInPast(t *testing.T) {
	spec := validSpec()
	spec.StartTime = now.Add(-time.Minute)
	mustReject(t, spec)
}

func TestNew_StartNowIsNotFuture(t *testing.T) {
	spec := validSpec()
	spec.StartTime = now
	mustReject(t, spec)
}

func TestNew_EndBeforeStart(t *testing.T) {
	spec := validSpec()
	spec.EndTime = spec.StartTime
	mustReject(t, spec)
}

func TestNew_MissingTimes(t *testing.T) {
	spec := validSpec()
	spec.EndTime = time.Time{}
	mustReject(t, spec)
}

func TestNew_PrivateWithoutInvites(t *testing.T) {
	spec := validSpec()
	spec.Visibility = model.VisibilityPrivate
	spec.InvitedUsers = []string{"", "  "}
	mustReject(t, spec)
}

func TestNew_PrivateWithInvites(t *testing.T) {
	spec := validSpec()
	spec.Visibility = model.VisibilityPrivate
	spec.InvitedUsers = []string{"bob", " bob ", "carol"}

	e, err := New(spec, "ev-1", "alice", DefaultBounds(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(e.InvitedUsers) != 2 {
		t.Errorf("expected deduplicated invites, got %v", e.InvitedUsers)
	}
}

func TestNew_UnknownVisibility(t *testing.T) {
	spec := validSpec()
	spec.Visibility = "friends"
	mustReject(t, spec)
}

func TestNew_NegativeMinStake(t *testing.T) {
	spec := validSpec()
	spec.MinStake = d(-1)
	mustReject(t, spec)
}

func TestNew_MaxBelowMin(t *testing.T) {
	spec := validSpec()
	spec.MinStake = d(50)
	spec.MaxStake = d(49.99)
	mustReject(t, spec)
}

func TestNew_EqualBoundsAllowed(t *testing.T) {
	spec := validSpec()
	spec.MinStake = d(25)
	spec.MaxStake = d(25)
	if _, err := New(spec, "ev-1", "alice", DefaultBounds(), now); err != nil {
		t.Fatalf("equal bounds should be accepted: %v", err)
	}
}

func TestNew_MissingCreator(t *testing.T) {
	_, err := New(validSpec(), "ev-1", " ", DefaultBounds(), now)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

// --- Lifecycle ---

func TestEffectiveState_DerivedFromTime(t *testing.T) {
	e, err := New(validSpec(), "ev-1", "alice", DefaultBounds(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s := EffectiveState(e, now); s != model.StateUpcoming {
		t.Errorf("before start: expected upcoming, got %s", s)
	}
	if s := EffectiveState(e, e.StartTime); s != model.StateLive {
		t.Errorf("at start: expected live, got %s", s)
	}
	// Past the end but unsettled: still live, awaiting settlement.
	after := e.EndTime.Add(time.Minute)
	if s := EffectiveState(e, after); s != model.StateLive {
		t.Errorf("after end: expected live, got %s", s)
	}
	if !AwaitingSettlement(e, after) {
		t.Error("expected awaiting settlement after end")
	}
	if AcceptingPredictions(e, e.EndTime) {
		t.Error("end time itself must not accept predictions")
	}
}

func TestStatusAt_Settled(t *testing.T) {
	e, _ := New(validSpec(), "ev-1", "alice", DefaultBounds(), now)
	w := model.Cancelled
	e.SettlementState = model.SettlementSettled
	e.LifecycleState = model.StateCompleted
	e.WinningOutcome = &w

	st := StatusAt(e, now)
	if st.Lifecycle != model.StateCompleted {
		t.Errorf("expected completed, got %s", st.Lifecycle)
	}
	if st.AcceptingPredictions || st.AwaitingSettlement {
		t.Errorf("settled event should neither accept nor await: %+v", st)
	}
}
