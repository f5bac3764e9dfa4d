package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reg-consumer/internal/config"
)

func testConfig(t *testing.T, body string) config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(body))
	require.NoError(t, err)
	return cfg
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func startRuntime(t *testing.T, body string) (*liveRuntime, *httptest.Server) {
	t.Helper()
	rt, err := newLiveRuntime(testConfig(t, body), &bytes.Buffer{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	if err := rt.svc.Start(ctx); err != nil {
		cancel()
		require.NoError(t, err)
	}
	ts := httptest.NewServer(rt.handler)
	t.Cleanup(func() {
		ts.Close()
		cancel()
		rt.svc.Close()
	})

	require.Eventually(t, func() bool {
		_, ok := rt.svc.Guard()
		return ok
	}, 2*time.Second, 5*time.Millisecond, "supply never attached")
	return rt, ts
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "reg-consumer version dev"), "out=%q", out)
}

func TestGetSetCommands(t *testing.T) {
	rt, ts := startRuntime(t, "supplies:\n  - name: controlled\n")
	sim, _ := rt.reg.Sim("controlled")

	out, err := execute(t, "set", "--addr", ts.URL, "1")
	require.NoError(t, err, "out=%q", out)
	assert.Equal(t, "enabled", strings.TrimSpace(out))
	assert.True(t, sim.On())

	out, err = execute(t, "get", "--addr", ts.URL)
	require.NoError(t, err)
	assert.Equal(t, "enabled", strings.TrimSpace(out))
}

func TestSetCommand_ReportsRefusal(t *testing.T) {
	_, ts := startRuntime(t, "supplies:\n  - name: controlled\n    sim:\n      fail_enable: true\n")

	_, err := execute(t, "set", "--addr", ts.URL, "enabled")
	assert.ErrorContains(t, err, "refused")
}

func TestSetCommand_RejectsBadToken(t *testing.T) {
	_, err := execute(t, "set", "--addr", "127.0.0.1:1", "maybe")
	assert.ErrorContains(t, err, "invalid state token")
}

func TestRuntime_CloseDisablesSupply(t *testing.T) {
	rt, ts := startRuntime(t, "supplies:\n  - name: controlled\n")
	sim, _ := rt.reg.Sim("controlled")

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/state", strings.NewReader("enabled\n"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.True(t, sim.On())

	rt.svc.Close()
	assert.False(t, sim.On(), "supply should be off after shutdown")
}

func TestRunServe_StopsOnCancel(t *testing.T) {
	cfg := testConfig(t, "web:\n  listen: '127.0.0.1:0'\nsupplies:\n  - name: controlled\n")
	var out bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- runServe(ctx, cfg, &out) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("runServe did not stop")
	}
	assert.Contains(t, out.String(), "reg-consumer starting")
}
