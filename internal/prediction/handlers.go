package prediction

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/foresight/event-engine/internal/event"
	"github.com/foresight/event-engine/internal/model"
	"github.com/foresight/event-engine/internal/settlement"
	"github.com/foresight/event-engine/internal/store"
)

// UserHeader carries the caller identity set by the upstream auth layer.
const UserHeader = "X-User-ID"

// --- Request/Response types ---

// SubmitPredictionRequest is the JSON body for POST /predictions.
type SubmitPredictionRequest struct {
	EventID      string          `json:"event_id"`
	OutcomeIndex *int            `json:"outcome_index"`
	Stake        decimal.Decimal `json:"stake"`
}

// SettleRequest is the JSON body for POST /events/{eventID}/settle.
// Either WinningOutcome is set, or Cancel is true.
type SettleRequest struct {
	WinningOutcome *int `json:"winning_outcome"`
	Cancel         bool `json:"cancel"`
	Force          bool `json:"force"`
}

// SettleResponse is returned from a successful settlement.
type SettleResponse struct {
	Event       EventView          `json:"event"`
	Predictions []model.Prediction `json:"predictions"`
	TotalPool   decimal.Decimal    `json:"total_pool"`
	WinningPool decimal.Decimal    `json:"winning_pool"`
	PayoutTotal decimal.Decimal    `json:"payout_total"`
	Refunded    bool               `json:"refunded"`
}

// Routes mounts every handler on r under /api/v1.
func (s *Service) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/events", s.HandleCreateEvent)
		r.Get("/events", s.HandleListUpcoming)
		r.Get("/events/mine", s.HandleListMine)
		r.Get("/events/{eventID}", s.HandleGetEvent)
		r.Get("/events/{eventID}/stats", s.HandleGetStats)
		r.Get("/events/{eventID}/predictions", s.HandleListEventPredictions)
		r.Post("/events/{eventID}/settle", s.HandleSettle)
		r.Post("/predictions", s.HandleSubmitPrediction)
		r.Get("/predictions/mine", s.HandleListMyPredictions)
		if s.hub != nil {
			r.Get("/ws", s.hub.HandleWS)
		}
	})
}

// --- HTTP Handlers ---

// HandleCreateEvent handles POST /api/v1/events
func (s *Service) HandleCreateEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var spec event.Spec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ev, err := s.CreateEvent(r.Context(), userID, spec)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// HandleListUpcoming handles GET /api/v1/events
func (s *Service) HandleListUpcoming(w http.ResponseWriter, r *http.Request) {
	events, err := s.ListUpcomingEvents(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// HandleListMine handles GET /api/v1/events/mine
func (s *Service) HandleListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	events, err := s.ListEventsByCreator(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// HandleGetEvent handles GET /api/v1/events/{eventID}
func (s *Service) HandleGetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.GetEvent(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// HandleGetStats handles GET /api/v1/events/{eventID}/stats
func (s *Service) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.GetOutcomeStats(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleListEventPredictions handles GET /api/v1/events/{eventID}/predictions
func (s *Service) HandleListEventPredictions(w http.ResponseWriter, r *http.Request) {
	preds, err := s.ListPredictionsByEvent(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preds)
}

// HandleSettle handles POST /api/v1/events/{eventID}/settle. Only the
// event's creator may settle it.
func (s *Service) HandleSettle(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	eventID := chi.URLParam(r, "eventID")

	var body SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var req settlement.Request
	switch {
	case body.Cancel && body.WinningOutcome != nil:
		writeError(w, "winning_outcome and cancel are mutually exclusive", http.StatusBadRequest)
		return
	case body.Cancel:
		req = settlement.Cancel(body.Force)
	case body.WinningOutcome != nil:
		req = settlement.Winner(*body.WinningOutcome)
	default:
		writeError(w, "winning_outcome or cancel is required", http.StatusBadRequest)
		return
	}

	ev, err := s.store.GetEvent(r.Context(), eventID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if ev.CreatorID != userID {
		writeError(w, "only the event creator can settle it", http.StatusForbidden)
		return
	}

	res, err := s.SettleEvent(r.Context(), eventID, req, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SettleResponse{
		Event:       s.view(res.Event, s.clock.Now()),
		Predictions: res.Predictions,
		TotalPool:   res.TotalPool,
		WinningPool: res.WinningPool,
		PayoutTotal: res.PayoutTotal(),
		Refunded:    res.Refunded,
	})
}

// HandleSubmitPrediction handles POST /api/v1/predictions
func (s *Service) HandleSubmitPrediction(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req SubmitPredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.EventID == "" {
		writeError(w, "event_id is required", http.StatusBadRequest)
		return
	}
	if req.OutcomeIndex == nil {
		writeError(w, "outcome_index is required", http.StatusBadRequest)
		return
	}

	p, err := s.SubmitPrediction(r.Context(), userID, req.EventID, *req.OutcomeIndex, req.Stake)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// HandleListMyPredictions handles GET /api/v1/predictions/mine
func (s *Service) HandleListMyPredictions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	preds, err := s.ListPredictionsByUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preds)
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get(UserHeader))
	if userID == "" {
		writeError(w, UserHeader+" header is required", http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// writeServiceError maps a service error onto an HTTP status.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if rej, ok := model.AsRejection(err); ok {
		slog.Warn("request rejected",
			"method", r.Method,
			"path", r.URL.Path,
			"kind", rej.Kind.Error(),
			"reason", rej.Reason,
			"err", err,
		)
		writeJSON(w, statusFor(rej), errorBody{
			Error:     err.Error(),
			Kind:      rej.Kind.Error(),
			Reason:    string(rej.Reason),
			Retryable: rej.Retryable(),
		})
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "event not found", http.StatusNotFound)
		return
	}
	slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	writeError(w, "internal error", http.StatusInternalServerError)
}

func statusFor(rej *model.Rejection) int {
	switch {
	case rej.Kind == model.ErrValidation:
		return http.StatusBadRequest
	case rej.Reason == model.ReasonNotInvited:
		return http.StatusForbidden
	default:
		return http.StatusConflict
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, errorBody{Error: message})
}
