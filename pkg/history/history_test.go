package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func results(n int) []Result {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	out := make([]Result, n)
	for i := range out {
		out[i] = Result{
			Trace:   uuid.NewString(),
			Port:    4000,
			Session: i,
			Rounds:  i + 1,
			Players: 3,
			Outcome: "Caught",
			Started: start.Add(time.Duration(i) * time.Minute),
			Ended:   start.Add(time.Duration(i)*time.Minute + 30*time.Second),
		}
	}
	return out
}

func checkStore(t *testing.T, store Store) {
	ctx := context.Background()

	for _, result := range results(3) {
		require.NoError(t, store.Record(ctx, result))
	}

	recent, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, 2, recent[0].Session)
	assert.Equal(t, 1, recent[1].Session)
	assert.Equal(t, 3, recent[0].Rounds)
	assert.Equal(t, "Caught", recent[0].Outcome)
	assert.True(t, recent[0].Ended.After(recent[0].Started))

	none, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLStore(t *testing.T) {
	store, err := NewSQLStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	checkStore(t, store)

	// Traces are unique.
	duplicate := results(1)[0]
	require.NoError(t, store.Record(context.Background(), duplicate))
	assert.Error(t, store.Record(context.Background(), duplicate))
}

func TestRedisStore(t *testing.T) {
	address := os.Getenv("YARD_TEST_REDIS")
	if address == "" {
		t.Skip("YARD_TEST_REDIS not set")
	}

	store := NewRedisStore(RedisSettings{Address: address}, 10)
	defer store.Close()
	require.NoError(t, store.Clear(context.Background()))

	checkStore(t, store)
}

func TestOpen(t *testing.T) {
	store, err := Open(Settings{})
	require.NoError(t, err)
	assert.Nil(t, store)

	_, err = Open(Settings{Driver: "postgres"})
	assert.Error(t, err)

	store, err = Open(Settings{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "h.db")})
	require.NoError(t, err)
	require.NotNil(t, store)
	assert.NoError(t, store.Close())
}

func TestResultString(t *testing.T) {
	result := results(1)[0]
	assert.Equal(t, "4000:0 Caught after 1 rounds, 3 players (30s)", result.String())
}
