package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/foresight/event-engine/internal/model"
)

// setupPostgres starts a PostgreSQL container and applies migrations from
// sql/postgres. Skipped in -short mode or without a container runtime.
func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("events"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	applyMigrations(t, ctx, pool)
	return pool
}

func applyMigrations(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	dir := filepath.Join(projectRoot(t), "sql", "postgres")
	applied, err := Migrate(ctx, pool, os.DirFS(dir))
	require.NoError(t, err)
	require.NotEmpty(t, applied)
}

// projectRoot walks up from the working directory to the go.mod.
func projectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find go.mod")
		}
		dir = parent
	}
}

func TestPostgresStore_EventRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewPostgresStore(setupPostgres(t))

	ev := testEvent("ev-pg-1")
	ev.Visibility = model.VisibilityPrivate
	ev.InvitedUsers = []string{"bob", "carol"}
	ev.MinStake = decimal.RequireFromString("2.50")
	require.NoError(t, s.CreateEvent(ctx, ev))

	got, err := s.GetEvent(ctx, "ev-pg-1")
	require.NoError(t, err)
	assert.Equal(t, ev.Outcomes, got.Outcomes)
	assert.Equal(t, ev.InvitedUsers, got.InvitedUsers)
	assert.True(t, got.MinStake.Equal(ev.MinStake))
	assert.Nil(t, got.WinningOutcome)
	assert.Equal(t, model.SettlementOpen, got.SettlementState)

	err = s.CreateEvent(ctx, ev)
	assert.ErrorIs(t, err, model.ErrConflict)

	_, err = s.GetEvent(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	upcoming, err := s.ListUpcomingEvents(ctx, base)
	require.NoError(t, err)
	assert.Len(t, upcoming, 1)
}

func TestPostgresStore_ConcurrentAdmission(t *testing.T) {
	ctx := context.Background()
	s := NewPostgresStore(setupPostgres(t))
	require.NoError(t, s.CreateEvent(ctx, testEvent("ev-pg-2")))

	const n = 10
	var ok, dup atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := testPrediction(fmt.Sprintf("p-%d", i), "bob", "ev-pg-2", 0, 10)
			_, err := s.AdmitPrediction(ctx, "ev-pg-2", "bob", admitOnce(p))
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, model.ErrDuplicatePrediction), errors.Is(err, model.ErrConflict):
				dup.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(n-1), dup.Load())
}

func TestPostgresStore_SettleOnce(t *testing.T) {
	ctx := context.Background()
	s := NewPostgresStore(setupPostgres(t))
	require.NoError(t, s.CreateEvent(ctx, testEvent("ev-pg-3")))
	for _, user := range []string{"a", "b"} {
		_, err := s.AdmitPrediction(ctx, "ev-pg-3", user,
			admitOnce(testPrediction("p-"+user, user, "ev-pg-3", 0, 25)))
		require.NoError(t, err)
	}

	ev, preds, err := s.SettleEvent(ctx, "ev-pg-3", settleAll(model.StatusCancelled))
	require.NoError(t, err)
	assert.True(t, ev.Settled())
	assert.Len(t, preds, 2)

	stored, err := s.GetEvent(ctx, "ev-pg-3")
	require.NoError(t, err)
	require.NotNil(t, stored.WinningOutcome)
	assert.Equal(t, model.Cancelled, *stored.WinningOutcome)

	for _, user := range []string{"a", "b"} {
		p, err := s.GetPrediction(ctx, user, "ev-pg-3")
		require.NoError(t, err)
		assert.Equal(t, model.StatusCancelled, p.Status)
		assert.True(t, p.Payout.Equal(decimal.NewFromInt(25)))
	}

	_, _, err = s.SettleEvent(ctx, "ev-pg-3", settleAll(model.StatusCancelled))
	assert.ErrorIs(t, err, model.ErrAlreadySettled)
}

func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t)

	dir := filepath.Join(projectRoot(t), "sql", "postgres")
	applied, err := Migrate(ctx, pool, os.DirFS(dir))
	require.NoError(t, err)
	assert.Contains(t, applied, "001_init.sql")
}

func TestMigrate_EmptyDir(t *testing.T) {
	_, err := Migrate(context.Background(), nil, os.DirFS(t.TempDir()))
	assert.ErrorContains(t, err, "no .sql files")
}
