package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/foresight/event-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
//
// Admissions hold the event row FOR SHARE and settlement holds it FOR
// UPDATE, so a prediction is either committed before settlement reads the
// prediction set or it sees the settled row and is rejected.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// PostgreSQL error codes.
const pgErrUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation
}

const eventColumns = `id, title, category, outcomes, start_time, end_time,
	visibility, invited_users, min_stake::TEXT, max_stake::TEXT, creator_id,
	lifecycle_state, settlement_state, winning_outcome, settled_at,
	created_at, updated_at`

const predictionColumns = `id, user_id, event_id, outcome_index, stake::TEXT,
	status, payout::TEXT, created_at`

func (s *PostgresStore) CreateEvent(ctx context.Context, ev *model.Event) error {
	invited := ev.InvitedUsers
	if invited == nil {
		invited = []string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO events (id, title, category, outcomes, start_time, end_time,
		                     visibility, invited_users, min_stake, max_stake, creator_id,
		                     lifecycle_state, settlement_state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::NUMERIC, $10::NUMERIC, $11, $12, $13, $14, $15)`,
		ev.ID, ev.Title, string(ev.Category), ev.Outcomes, ev.StartTime, ev.EndTime,
		string(ev.Visibility), invited, ev.MinStake.String(), ev.MaxStake.String(), ev.CreatorID,
		string(ev.LifecycleState), string(ev.SettlementState), ev.CreatedAt, ev.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: event %s already exists", model.ErrConflict, ev.ID)
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	ev, err := scanEvent(s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return ev, nil
}

func (s *PostgresStore) ListUpcomingEvents(ctx context.Context, now time.Time) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM events WHERE start_time > $1 ORDER BY start_time, id`, now)
	if err != nil {
		return nil, fmt.Errorf("list upcoming events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *PostgresStore) ListEventsByCreator(ctx context.Context, creatorID string) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM events WHERE creator_id = $1 ORDER BY created_at DESC, id`, creatorID)
	if err != nil {
		return nil, fmt.Errorf("list events by creator: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *PostgresStore) GetPrediction(ctx context.Context, userID, eventID string) (*model.Prediction, error) {
	p, err := scanPrediction(s.pool.QueryRow(ctx,
		`SELECT `+predictionColumns+` FROM predictions WHERE user_id = $1 AND event_id = $2`,
		userID, eventID))
	if err != nil {
		return nil, fmt.Errorf("get prediction %s on %s: %w", userID, eventID, err)
	}
	return p, nil
}

func (s *PostgresStore) ListPredictionsByEvent(ctx context.Context, eventID string) ([]model.Prediction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+predictionColumns+` FROM predictions WHERE event_id = $1 ORDER BY created_at, id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list predictions by event: %w", err)
	}
	defer rows.Close()
	return scanPredictions(rows)
}

func (s *PostgresStore) ListPredictionsByUser(ctx context.Context, userID string) ([]model.Prediction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+predictionColumns+` FROM predictions WHERE user_id = $1 ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list predictions by user: %w", err)
	}
	defer rows.Close()
	return scanPredictions(rows)
}

func (s *PostgresStore) AdmitPrediction(ctx context.Context, eventID, userID string, admit AdmitFunc) (*model.Prediction, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin admission: %w", err)
	}
	defer tx.Rollback(ctx)

	ev, err := scanEvent(tx.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR SHARE`, eventID))
	if err != nil {
		return nil, fmt.Errorf("lock event %s: %w", eventID, err)
	}

	existing, err := scanPrediction(tx.QueryRow(ctx,
		`SELECT `+predictionColumns+` FROM predictions WHERE user_id = $1 AND event_id = $2`,
		userID, eventID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("load existing prediction: %w", err)
	}

	p, err := admit(ev, existing)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO predictions (id, user_id, event_id, outcome_index, stake, status, payout, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7::NUMERIC, $8)`,
		p.ID, p.UserID, p.EventID, p.OutcomeIndex, p.Stake.String(),
		string(p.Status), p.Payout.String(), p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: prediction for %s on %s", model.ErrConflict, p.UserID, p.EventID)
		}
		return nil, fmt.Errorf("insert prediction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit admission: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) SettleEvent(ctx context.Context, eventID string, settle SettleFunc) (*model.Event, []model.Prediction, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin settlement: %w", err)
	}
	defer tx.Rollback(ctx)

	ev, err := scanEvent(tx.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, eventID))
	if err != nil {
		return nil, nil, fmt.Errorf("lock event %s: %w", eventID, err)
	}

	rows, err := tx.Query(ctx,
		`SELECT `+predictionColumns+` FROM predictions WHERE event_id = $1 ORDER BY created_at, id`, eventID)
	if err != nil {
		return nil, nil, fmt.Errorf("load predictions: %w", err)
	}
	preds, err := scanPredictions(rows)
	rows.Close()
	if err != nil {
		return nil, nil, err
	}

	settled, out, err := settle(ev, preds)
	if err != nil {
		return nil, nil, err
	}

	tag, err := tx.Exec(ctx,
		`UPDATE events
		 SET lifecycle_state = $2, settlement_state = $3, winning_outcome = $4,
		     settled_at = $5, updated_at = $6
		 WHERE id = $1 AND settlement_state = 'open'`,
		eventID, string(settled.LifecycleState), string(settled.SettlementState),
		settled.WinningOutcome, settled.SettledAt, settled.UpdatedAt,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return nil, nil, fmt.Errorf("%w: event %s settled concurrently", model.ErrConflict, eventID)
	}

	if len(out) > 0 {
		batch := &pgx.Batch{}
		for _, p := range out {
			batch.Queue(
				`UPDATE predictions SET status = $3, payout = $4::NUMERIC
				 WHERE id = $1 AND event_id = $2 AND status = 'pending'`,
				p.ID, eventID, string(p.Status), p.Payout.String(),
			)
		}
		br := tx.SendBatch(ctx, batch)
		for _, p := range out {
			tag, err := br.Exec()
			if err != nil {
				br.Close()
				return nil, nil, fmt.Errorf("update prediction %s: %w", p.ID, err)
			}
			if tag.RowsAffected() != 1 {
				br.Close()
				return nil, nil, fmt.Errorf("%w: prediction %s already settled", model.ErrConflict, p.ID)
			}
		}
		if err := br.Close(); err != nil {
			return nil, nil, fmt.Errorf("update predictions: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit settlement: %w", err)
	}
	return settled, out, nil
}

// --- Scanning ---

func scanEvent(row pgx.Row) (*model.Event, error) {
	var ev model.Event
	var category, visibility, lifecycle, settlement string
	var minStake, maxStake string

	err := row.Scan(&ev.ID, &ev.Title, &category, &ev.Outcomes, &ev.StartTime, &ev.EndTime,
		&visibility, &ev.InvitedUsers, &minStake, &maxStake, &ev.CreatorID,
		&lifecycle, &settlement, &ev.WinningOutcome, &ev.SettledAt,
		&ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	ev.Category = model.Category(category)
	ev.Visibility = model.Visibility(visibility)
	ev.LifecycleState = model.LifecycleState(lifecycle)
	ev.SettlementState = model.SettlementState(settlement)
	if ev.MinStake, err = decimal.NewFromString(minStake); err != nil {
		return nil, fmt.Errorf("parse min_stake: %w", err)
	}
	if ev.MaxStake, err = decimal.NewFromString(maxStake); err != nil {
		return nil, fmt.Errorf("parse max_stake: %w", err)
	}
	return &ev, nil
}

func scanEvents(rows pgx.Rows) ([]model.Event, error) {
	var events []model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

func scanPrediction(row pgx.Row) (*model.Prediction, error) {
	var p model.Prediction
	var status, stake, payout string

	err := row.Scan(&p.ID, &p.UserID, &p.EventID, &p.OutcomeIndex, &stake,
		&status, &payout, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	p.Status = model.PredictionStatus(status)
	if p.Stake, err = decimal.NewFromString(stake); err != nil {
		return nil, fmt.Errorf("parse stake: %w", err)
	}
	if p.Payout, err = decimal.NewFromString(payout); err != nil {
		return nil, fmt.Errorf("parse payout: %w", err)
	}
	return &p, nil
}

func scanPredictions(rows pgx.Rows) ([]model.Prediction, error) {
	var preds []model.Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		preds = append(preds, *p)
	}
	return preds, rows.Err()
}
