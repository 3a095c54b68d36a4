package server

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"dilemma-server/internal/chat"
	"dilemma-server/internal/payoff"
	"dilemma-server/internal/session"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	ctx := context.Background()
	dbContainer, err := postgres.Run(
		ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("dilemma"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("could not start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(dbContainer); err != nil {
			t.Logf("could not terminate postgres container: %v", err)
		}
	})

	dsn, err := dbContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, goose.SetDialect("postgres"))
	require.NoError(t, goose.Up(db, "../../db/migrations"))

	return NewStore(db, zerolog.Nop())
}

func storeTestConfig() session.Config {
	return session.Config{
		Seats:                 3,
		Rounds:                5,
		AnnouncementDuration:  10 * time.Second,
		CommunicationDuration: 30 * time.Second,
		ActionDuration:        20 * time.Second,
		RevelationDuration:    10 * time.Second,
		RefusalBudget:         2,
		Payoff:                payoff.DefaultParams(3),
	}
}

func TestStore_ExperimentRoundTrip(t *testing.T) {
	assert := assert.New(t)
	store := newTestStore(t)
	ctx := context.Background()

	exp, err := store.CreateExperiment(ctx, "three seat baseline", storeTestConfig())
	require.NoError(t, err)
	assert.NotEmpty(exp.ID)
	assert.Equal(exp.ID, exp.Config.ExperimentID)

	got, err := store.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal("three seat baseline", got.Name)
	assert.Equal("active", got.Status)
	assert.Equal(exp.Config, got.Config)

	cfg, err := store.LoadConfig(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(5, cfg.Rounds)
	assert.Equal(2, cfg.RefusalBudget)
}

func TestStore_ExperimentNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetExperiment(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, ErrExperimentNotFound)
}

func TestStore_CreateExperimentRejectsBadConfig(t *testing.T) {
	store := newTestStore(t)

	bad := storeTestConfig()
	bad.Rounds = 0
	_, err := store.CreateExperiment(context.Background(), "broken", bad)
	assert.Error(t, err)
	assert.Equal(t, session.CodeInvalid, session.CodeOf(err))
}

func TestStore_SessionArchive(t *testing.T) {
	assert := assert.New(t)
	store := newTestStore(t)
	ctx := context.Background()

	exp, err := store.CreateExperiment(ctx, "archive test", storeTestConfig())
	require.NoError(t, err)

	require.NoError(t, store.CreateSession(ctx, "sess-1", exp.ID))
	// Idempotent on replay
	require.NoError(t, store.CreateSession(ctx, "sess-1", exp.ID))

	status, err := store.SessionStatus(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal("running", status)

	for round := 1; round <= 3; round++ {
		rec := session.RoundRecord{
			Round: round,
			Actions: map[string]session.Action{
				"alice": session.ActionCooperate,
				"bob":   session.ActionDefect,
			},
			Payoffs:    map[string]float64{"alice": 1, "bob": 5},
			Scores:     map[string]float64{"alice": float64(round), "bob": float64(5 * round)},
			RevealedAt: time.Now(),
		}
		require.NoError(t, store.SaveRoundRecord(ctx, "sess-1", rec))
	}

	rounds, err := store.SessionResults(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, rounds, 3)
	for i, rec := range rounds {
		assert.Equal(i+1, rec.Round)
		assert.Equal(session.ActionCooperate, rec.Actions["alice"])
	}
	assert.Equal(15.0, rounds[2].Scores["bob"])

	require.NoError(t, store.UpdateStatus(ctx, "sess-1", "completed"))
	status, err = store.SessionStatus(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal("completed", status)
}

func TestStore_SaveRoundRecordUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := session.RoundRecord{Round: 1, Payoffs: map[string]float64{"alice": 1}}
	require.NoError(t, store.SaveRoundRecord(ctx, "sess-2", rec))

	rec.Payoffs["alice"] = 7
	require.NoError(t, store.SaveRoundRecord(ctx, "sess-2", rec))

	rounds, err := store.SessionResults(ctx, "sess-2")
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	assert.Equal(t, 7.0, rounds[0].Payoffs["alice"])
}

func TestStore_SaveChatRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := chat.Record{
		ID:      "1",
		From:    "alice",
		To:      "bob",
		Content: "let's both cooperate",
		Round:   2,
		SentAt:  time.Now(),
	}
	require.NoError(t, store.SaveChatRecord(ctx, "sess-3", rec))
	// Duplicate delivery is a no-op
	require.NoError(t, store.SaveChatRecord(ctx, "sess-3", rec))

	var count int
	err := store.db.QueryRowContext(ctx,
		`SELECT count(*) FROM chat_records WHERE session_id = $1`, "sess-3").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
