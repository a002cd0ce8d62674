package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/coffee-queue/internal/api"
	"github.com/vaidashi/coffee-queue/internal/config"
	"github.com/vaidashi/coffee-queue/internal/models"
	"github.com/vaidashi/coffee-queue/pkg/logger"
)

type env struct {
	server   string
	identity string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	srv, err := api.NewServer(&config.Config{
		StoreBackend:    config.BackendMemory,
		RetentionWindow: 5 * time.Minute,
	}, logger.NewNop())
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Shutdown(context.Background())
	})

	return &env{server: ts.URL, identity: filepath.Join(t.TempDir(), "identity.yaml")}
}

func (e *env) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(append([]string{"--server", e.server, "--identity", e.identity}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func (e *env) place(t *testing.T, name string) models.Order {
	t.Helper()
	out, _, err := e.run(t, "--format", "json", "order", "place", "--name", name, "--coffee", "Latte", "--milk", "Oat", "--extra", "Honey")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   models.Order `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "cafectl", cmd.Use)

	for _, path := range [][]string{
		{"watch"}, {"whoami"}, {"forget"},
		{"order", "place"}, {"order", "ready"}, {"order", "collect"}, {"order", "pending"}, {"order", "cancel"},
	} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err, "command %v should exist", path)
		assert.Equal(t, path[len(path)-1], sub.Name())
	}

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	e := newEnv(t)
	_, errOut, err := e.run(t, "--format", "yaml", "whoami")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, errOut, "invalid format")
}

func TestCustomerJourney(t *testing.T) {
	e := newEnv(t)

	order := e.place(t, "Sam")
	assert.Equal(t, models.StatusPending, order.Status)

	out, _, err := e.run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Sam, your Latte, Oat milk, Honey is being prepared (1 of 1 in line).")

	out, _, err = e.run(t, "order", "ready", order.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Ready at spot 1")

	out, _, err = e.run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "ready at spot 1")

	// customers may only cancel while Pending
	_, errOut, err := e.run(t, "order", "cancel")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, errOut, "cancel order refused")

	out, _, err = e.run(t, "order", "cancel", order.ID, "--surface", "barista")
	require.NoError(t, err)
	assert.Contains(t, out, "cancelled")

	out, _, err = e.run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "You have no current order.")
}

func TestCustomerCancelOwnPendingOrder(t *testing.T) {
	e := newEnv(t)
	e.place(t, "Kim")

	_, _, err := e.run(t, "order", "cancel")
	require.NoError(t, err)

	out, _, err := e.run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "You have no current order.")

	_, _, err = e.run(t, "order", "cancel")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestPlaceRejectsUnknownCoffee(t *testing.T) {
	e := newEnv(t)
	_, errOut, err := e.run(t, "order", "place", "--name", "A", "--coffee", "Mocha")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, errOut, `Unknown coffee type "Mocha"`)
}

func TestForget(t *testing.T) {
	e := newEnv(t)
	e.place(t, "Lee")

	out, _, err := e.run(t, "forget")
	require.NoError(t, err)
	assert.Contains(t, out, "forgotten")

	out, _, err = e.run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "You have no current order.")
}

func TestUnreachableServer(t *testing.T) {
	e := &env{server: "http://127.0.0.1:1", identity: filepath.Join(t.TempDir(), "identity.yaml")}
	_, _, err := e.run(t, "--timeout", "500ms", "order", "ready", "ord-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

// syncBuffer lets the watch goroutine write while the test reads
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchQueue(t *testing.T) {
	e := newEnv(t)
	a := e.place(t, "Ana")
	e.place(t, "Ben")
	_, _, err := e.run(t, "order", "ready", a.ID)
	require.NoError(t, err)

	out := &syncBuffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--server", e.server, "--identity", e.identity, "watch", "--surface", "queue", "--interval", "20ms"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		s := out.String()
		return bytes.Contains([]byte(s), []byte("spot  1  Ana")) && bytes.Contains([]byte(s), []byte("1.  Ben  <- you"))
	}, 2*time.Second, 10*time.Millisecond, out.String())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}
