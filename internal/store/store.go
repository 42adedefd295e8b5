// Package store defines the persistence interface for the event engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/foresight/event-engine/internal/model"
)

// ErrNotFound is returned when an event or prediction does not exist.
var ErrNotFound = errors.New("store: not found")

// AdmitFunc decides, against the event row and the user's existing
// prediction as seen inside the admission unit of work, what to insert.
// Returning an error aborts the unit of work with nothing written.
type AdmitFunc func(ev *model.Event, existing *model.Prediction) (*model.Prediction, error)

// SettleFunc computes the terminal event and predictions from the full
// prediction set read inside the settlement unit of work.
type SettleFunc func(ev *model.Event, predictions []model.Prediction) (*model.Event, []model.Prediction, error)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Event operations ---

	// CreateEvent persists a new event.
	CreateEvent(ctx context.Context, ev *model.Event) error

	// GetEvent retrieves an event by its ID.
	GetEvent(ctx context.Context, id string) (*model.Event, error)

	// ListUpcomingEvents returns events starting after now, soonest first.
	ListUpcomingEvents(ctx context.Context, now time.Time) ([]model.Event, error)

	// ListEventsByCreator returns a user's events, newest first.
	ListEventsByCreator(ctx context.Context, creatorID string) ([]model.Event, error)

	// --- Prediction queries ---

	// GetPrediction returns the user's prediction on an event.
	GetPrediction(ctx context.Context, userID, eventID string) (*model.Prediction, error)

	// ListPredictionsByEvent returns all predictions on an event, oldest first.
	ListPredictionsByEvent(ctx context.Context, eventID string) ([]model.Prediction, error)

	// ListPredictionsByUser returns a user's predictions, newest first.
	ListPredictionsByUser(ctx context.Context, userID string) ([]model.Prediction, error)

	// --- Atomic units of work ---

	// AdmitPrediction serializes against settlement of the same event, runs
	// admit and inserts its result. A uniqueness violation on
	// (user_id, event_id) surfaces as model.ErrConflict.
	AdmitPrediction(ctx context.Context, eventID, userID string, admit AdmitFunc) (*model.Prediction, error)

	// SettleEvent locks the event, reads every prediction on it, runs settle
	// and writes the event and all predictions back, or nothing. The event
	// transition is a compare-and-swap on its open settlement state; losing
	// that race surfaces as model.ErrConflict.
	SettleEvent(ctx context.Context, eventID string, settle SettleFunc) (*model.Event, []model.Prediction, error)
}
