package game

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/cfoust/yard/pkg/history"
	"github.com/cfoust/yard/pkg/rules"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings(pursuers int) Settings {
	return Settings{
		Pursuers:     pursuers,
		PollInterval: 20 * time.Millisecond,
		MaxWorkers:   pursuers + 1,
		DrainTimeout: time.Second,
		NewBoard: func() rules.Board {
			return rules.NewYard(rules.DefaultYard())
		},
	}
}

func dial(t *testing.T, addr net.Addr) *client {
	t.Helper()
	port := addr.(*net.TCPAddr).Port
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &client{
		t:      t,
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

type ending struct {
	result history.Result
	err    error
}

func startSession(t *testing.T, ctx context.Context, settings Settings) (*Session, chan ending) {
	session := NewSession(ctx, 0, 7, settings)
	require.NoError(t, session.Listen())

	done := make(chan ending, 1)
	go func() {
		result, err := session.Run()
		done <- ending{result, err}
	}()
	return session, done
}

func wait(t *testing.T, done chan ending) ending {
	t.Helper()
	select {
	case out := <-done:
		return out
	case <-time.After(TIMEOUT):
		t.Fatal("session did not end")
	}
	return ending{}
}

func TestSessionAbandoned(t *testing.T) {
	session, done := startSession(t, context.Background(), testSettings(2))

	fugitive := dial(t, session.Addr())
	assert.Contains(t, fugitive.recv(), "You play Fugitive in Game 0:7")
	fugitive.send(QUIT_TOKEN)
	assert.True(t, fugitive.hungUp())

	out := wait(t, done)
	require.NoError(t, out.err)
	assert.Equal(t, rules.StatusAbandoned, out.result.Outcome)
	assert.Equal(t, 1, out.result.Rounds)
	assert.Equal(t, 1, out.result.Players)
	assert.Equal(t, session.Trace(), out.result.Trace)
	assert.Equal(t, 7, out.result.Session)
	assert.False(t, out.result.Ended.Before(out.result.Started))
}

func TestSessionFull(t *testing.T) {
	session, done := startSession(t, context.Background(), testSettings(1))

	fugitive := dial(t, session.Addr())
	fugitive.recv()
	require.Eventually(t, func() bool {
		return session.State().Snapshot().Round == 1
	}, TIMEOUT, 5*time.Millisecond)

	detective := dial(t, session.Addr())
	assert.Contains(t, detective.recv(), "You play Detective 0")

	extra := dial(t, session.Addr())
	assert.True(t, extra.hungUp())

	fugitive.send("34")
	assert.Equal(t, "34; Detectives on none; Play", fugitive.recv())
	fugitive.send("26")
	detective.send("9")
	assert.Equal(t, "26; Detectives on 9; Play", fugitive.recv())
	assert.Equal(t, "9; Fugitive last seen on unknown; Play", detective.recv())

	fugitive.send(QUIT_TOKEN)
	detective.send("x")
	assert.Equal(t, "9; Fugitive last seen on unknown; Abandoned", detective.recv())

	out := wait(t, done)
	require.NoError(t, out.err)
	assert.Equal(t, 2, out.result.Players)
	assert.Equal(t, 3, out.result.Rounds)
}

func TestSessionRejectsAfterDeath(t *testing.T) {
	settings := testSettings(2)
	settings.PollInterval = time.Second
	session, done := startSession(t, context.Background(), settings)

	fugitive := dial(t, session.Addr())
	fugitive.recv()
	fugitive.send(QUIT_TOKEN)
	assert.True(t, fugitive.hungUp())

	// The game is over but the acceptor has not noticed yet.
	require.Eventually(t, func() bool {
		return session.State().Snapshot().Dead
	}, TIMEOUT, 5*time.Millisecond)

	late := dial(t, session.Addr())
	assert.True(t, late.hungUp())

	out := wait(t, done)
	require.NoError(t, out.err)
	assert.Equal(t, 1, out.result.Players)
}

func TestSessionCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session, done := startSession(t, ctx, testSettings(2))

	fugitive := dial(t, session.Addr())
	fugitive.recv()
	detective := dial(t, session.Addr())
	detective.recv()

	cancel()
	assert.True(t, fugitive.hungUp())
	assert.True(t, detective.hungUp())

	out := wait(t, done)
	assert.ErrorIs(t, out.err, context.Canceled)
}

// memoryStore keeps results in memory.
type memoryStore struct {
	sync.Mutex
	results []history.Result
}

func (m *memoryStore) Record(ctx context.Context, result history.Result) error {
	m.Lock()
	defer m.Unlock()
	m.results = append([]history.Result{result}, m.results...)
	return nil
}

func (m *memoryStore) Recent(ctx context.Context, limit int) ([]history.Result, error) {
	m.Lock()
	defer m.Unlock()
	if limit > len(m.results) {
		limit = len(m.results)
	}
	return append([]history.Result(nil), m.results[:limit]...), nil
}

func (m *memoryStore) Close() error {
	return nil
}

func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())
	return port
}

func TestSupervisor(t *testing.T) {
	port := freePort(t)

	// Hold the port so the first attempt fails.
	blocker, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	require.NoError(t, err)

	store := &memoryStore{}
	supervisor := NewSupervisor(port, testSettings(1), store)
	supervisor.RetryDelay = 10 * time.Millisecond

	var (
		mutex    sync.Mutex
		sessions []int
	)
	supervisor.OnSession = func(session *Session) {
		mutex.Lock()
		sessions = append(sessions, session.ID)
		mutex.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopped := make(chan error, 1)
	go func() {
		stopped <- supervisor.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, blocker.Close())

	addr := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
	for i := 0; i < 2; i++ {
		var fugitive *client
		require.Eventually(t, func() bool {
			conn, err := net.Dial("tcp", addr.String())
			if err != nil {
				return false
			}
			t.Cleanup(func() { conn.Close() })
			fugitive = &client{t: t, conn: conn, reader: bufio.NewReader(conn)}
			return true
		}, TIMEOUT, 10*time.Millisecond)

		assert.Contains(t, fugitive.recv(), fmt.Sprintf("in Game %d:%d.", port, i))
		fugitive.send(QUIT_TOKEN)
		assert.True(t, fugitive.hungUp())

		require.Eventually(t, func() bool {
			results, _ := store.Recent(ctx, 10)
			return len(results) == i+1
		}, TIMEOUT, 10*time.Millisecond)
	}

	cancel()
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(TIMEOUT):
		t.Fatal("supervisor did not stop")
	}

	results, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Session)
	assert.Equal(t, 0, results[1].Session)
	assert.Equal(t, rules.StatusAbandoned, results[0].Outcome)

	mutex.Lock()
	defer mutex.Unlock()
	require.GreaterOrEqual(t, len(sessions), 2)
	assert.Equal(t, []int{0, 1}, sessions[:2])
}
