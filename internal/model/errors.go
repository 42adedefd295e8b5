package model

import (
	"errors"
	"fmt"
)

// Error kinds. Every Rejection unwraps to exactly one of these, so callers
// can match a whole class with errors.Is(err, ErrAdmissionRejected).
var (
	ErrValidation         = errors.New("validation_error")
	ErrAdmissionRejected  = errors.New("admission_rejected")
	ErrSettlementRejected = errors.New("settlement_rejected")
	ErrStorageConflict    = errors.New("storage_conflict")
)

// Reason names the specific rule that rejected an operation.
type Reason string

const (
	ReasonInvalidInput        Reason = "invalid_input"
	ReasonEventClosed         Reason = "event_closed"
	ReasonInvalidOutcome      Reason = "invalid_outcome"
	ReasonStakeOutOfBounds    Reason = "stake_out_of_bounds"
	ReasonDuplicatePrediction Reason = "duplicate_prediction"
	ReasonNotInvited          Reason = "not_invited"
	ReasonAlreadySettled      Reason = "already_settled"
	ReasonEventNotEnded       Reason = "event_not_ended"
	ReasonConflict            Reason = "storage_conflict"
)

// Rejection is a typed, locally recoverable refusal. No state has changed
// when one is returned.
type Rejection struct {
	Kind   error
	Reason Reason
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Kind, r.Reason)
}

func (r *Rejection) Unwrap() error { return r.Kind }

// Retryable reports whether retrying the whole operation from scratch may succeed.
func (r *Rejection) Retryable() bool { return r.Kind == ErrStorageConflict }

// Admission rejections.
var (
	ErrEventClosed         = &Rejection{Kind: ErrAdmissionRejected, Reason: ReasonEventClosed}
	ErrInvalidOutcome      = &Rejection{Kind: ErrAdmissionRejected, Reason: ReasonInvalidOutcome}
	ErrStakeOutOfBounds    = &Rejection{Kind: ErrAdmissionRejected, Reason: ReasonStakeOutOfBounds}
	ErrDuplicatePrediction = &Rejection{Kind: ErrAdmissionRejected, Reason: ReasonDuplicatePrediction}
	ErrNotInvited          = &Rejection{Kind: ErrAdmissionRejected, Reason: ReasonNotInvited}
)

// Settlement rejections.
var (
	ErrAlreadySettled        = &Rejection{Kind: ErrSettlementRejected, Reason: ReasonAlreadySettled}
	ErrEventNotEnded         = &Rejection{Kind: ErrSettlementRejected, Reason: ReasonEventNotEnded}
	ErrInvalidWinningOutcome = &Rejection{Kind: ErrSettlementRejected, Reason: ReasonInvalidOutcome}
)

// ErrConflict is returned when a uniqueness constraint or settlement
// compare-and-swap fails at the storage boundary.
var ErrConflict = &Rejection{Kind: ErrStorageConflict, Reason: ReasonConflict}

// AsRejection extracts the Rejection carried by err, if any.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
