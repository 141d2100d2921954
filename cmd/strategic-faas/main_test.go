// ABOUTME: End-to-end tests for the wired strategic-faas app
// ABOUTME: Drives the deploy loop through lambda, ec2, k8s, invalid and exit commands, plus init

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/strategic-faas/internal/auth"
	"github.com/2389/strategic-faas/internal/config"
	"github.com/2389/strategic-faas/internal/store"
)

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

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "stacks.db")
	cfg.Gateway.Addr = "127.0.0.1:0"
	cfg.Readiness.Interval = 10 * time.Millisecond
	cfg.Server.BootDelay = 30 * time.Millisecond
	return cfg
}

func openStore(t *testing.T, cfg *config.Config) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func runScript(t *testing.T, cfg *config.Config, input string) (string, *store.SQLiteStore) {
	t.Helper()
	st := openStore(t, cfg)
	out := &syncBuffer{}
	a, err := newApp(cfg, st, strings.NewReader(input), out, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer a.close()

	require.NoError(t, a.run(context.Background()))
	return out.String(), st
}

var routeLine = regexp.MustCompile(`^function deployed to: http://127\.0\.0\.1:\d+/hello$`)

func TestApp_LambdaThenExit(t *testing.T) {
	out, st := runScript(t, testConfig(t), "lambda\nexit\n")

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 7, out)
	assert.Equal(t, "type 'exit' to exit the program:", lines[0])
	assert.Equal(t, "strategy: lambda", lines[1])
	assert.Equal(t, "deploying stack...", lines[2])
	assert.Regexp(t, routeLine, lines[3])
	assert.Equal(t, "done", lines[4])
	assert.Equal(t, "destroying stack...", lines[5])
	assert.Equal(t, "done", lines[6])

	ctx := context.Background()
	ref := store.StackRef{Project: "faas", Name: "demo"}
	resources, err := st.ListResources(ctx, ref)
	require.NoError(t, err)
	assert.Empty(t, resources)

	stack, err := st.GetStack(ctx, ref)
	require.NoError(t, err)
	assert.NotNil(t, stack.DestroyedAt)

	cfgValues, err := st.GetConfig(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "us-west-2", cfgValues["aws:region"])
}

func TestApp_VirtualMachinePolls(t *testing.T) {
	out, _ := runScript(t, testConfig(t), "ec2\nexit\n")

	assert.Contains(t, out, "strategy: ec2\ndeploying stack...\nwaiting on server up [url=http://127.0.0.1:")
	assert.Contains(t, out, "sleeping\n")
	assert.Regexp(t, `success\nfunction deployed to: http://127\.0\.0\.1:\d+/hello\ndone\n`, out)
	assert.True(t, strings.HasSuffix(out, "destroying stack...\ndone\n"))
}

func TestApp_InvalidCommand(t *testing.T) {
	out, _ := runScript(t, testConfig(t), "foo\nexit\n")
	assert.Equal(t, "type 'exit' to exit the program:\n"+
		"invalid command: foo skipping deployment.\n"+
		"destroying stack...\ndone\n", out)
}

func TestApp_ContainerClusterSkipped(t *testing.T) {
	out, st := runScript(t, testConfig(t), "k8s\nexit\n")
	assert.Equal(t, "type 'exit' to exit the program:\n"+
		"[skipping unimplemented]\n"+
		"destroying stack...\ndone\n", out)

	history, err := st.ListDeployments(context.Background(), store.StackRef{Project: "faas", Name: "demo"}, 0)
	require.NoError(t, err)
	require.Len(t, history, 1, "only the destroy is recorded")
	assert.Equal(t, store.DeploymentDestroyed, history[0].Status)
}

// waitForLine blocks until out has a line matching re.
func waitForLine(t *testing.T, out *syncBuffer, re *regexp.Regexp) string {
	t.Helper()
	var match string
	require.Eventually(t, func() bool {
		for _, line := range strings.Split(out.String(), "\n") {
			if re.MatchString(line) {
				match = line
				return true
			}
		}
		return false
	}, 5*time.Second, 5*time.Millisecond)
	return match
}

func getBody(t *testing.T, url, token string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

func TestApp_ServesDeployedCallback(t *testing.T) {
	cfg := testConfig(t)
	cfg.Gateway.JWTSecret = strings.Repeat("k", 32)
	st := openStore(t, cfg)

	pr, pw := io.Pipe()
	out := &syncBuffer{}
	a, err := newApp(cfg, st, pr, out, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer a.close()

	done := make(chan error, 1)
	go func() { done <- a.run(context.Background()) }()

	_, err = io.WriteString(pw, "lambda\n")
	require.NoError(t, err)
	url := strings.TrimPrefix(waitForLine(t, out, routeLine), "function deployed to: ")

	status, _ := getBody(t, url, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Gateway.JWTSecret))
	require.NoError(t, err)
	token, err := verifier.Generate("tester", time.Minute)
	require.NoError(t, err)

	status, body := getBody(t, url, token)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Hello World", body["message"])
	assert.Equal(t, "lambda", body["host"])

	// Switching to a server keeps the same gateway URL.
	_, err = io.WriteString(pw, "ec2\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return strings.Count(out.String(), "function deployed to:") == 2
	}, 5*time.Second, 5*time.Millisecond)

	status, body = getBody(t, url, token)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ec2", body["host"])

	require.NoError(t, pw.Close())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not exit at end of input")
	}
	assert.True(t, strings.HasSuffix(out.String(), "destroying stack...\ndone\n"))
}

func TestApp_RejectsBadRoute(t *testing.T) {
	cfg := testConfig(t)
	cfg.Route.Method = "FETCH"
	_, err := newApp(cfg, store.NewMockStore(), strings.NewReader(""), io.Discard, slog.Default())
	assert.Error(t, err)
}

func TestPrintHistory(t *testing.T) {
	_, st := runScript(t, testConfig(t), "lambda\nexit\n")

	var buf bytes.Buffer
	require.NoError(t, printHistory(context.Background(), &buf, st, store.StackRef{Project: "faas", Name: "demo"}, 10))

	out := buf.String()
	assert.Contains(t, out, "faas/demo")
	assert.Contains(t, out, "destroyed")
	assert.Contains(t, out, "lambda")
	assert.Contains(t, out, "succeeded")
}

func TestPrintHistory_UnknownStack(t *testing.T) {
	err := printHistory(context.Background(), io.Discard, store.NewMockStore(), store.StackRef{Project: "faas", Name: "nope"}, 10)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFlagValue(t *testing.T) {
	args := []string{"--subject", "alice", "--ttl=1h", "--limit"}

	v, skip, ok, err := flagValue(args, 0, "--subject")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alice", v)
	assert.Equal(t, 1, skip)

	v, skip, ok, err = flagValue(args, 2, "--ttl")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1h", v)
	assert.Equal(t, 0, skip)

	_, _, ok, err = flagValue(args, 3, "--limit")
	assert.True(t, ok)
	assert.Error(t, err)

	_, _, ok, _ = flagValue(args, 1, "--subject")
	assert.False(t, ok)
}

func TestColorHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "debug"}, &buf)
	logger.With("component", "test").WithGroup("req").Debug("health check", "status", 503)

	out := buf.String()
	assert.Contains(t, out, "health check")
	assert.Contains(t, out, "component=")
	assert.Contains(t, out, "req.status=")
	assert.Contains(t, out, "503")
}

func TestSetupLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	assert.NotContains(t, buf.String(), "hidden")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
}

func TestInitConfig_TailscaleKeyFallsBackToEnv(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	dbPath := filepath.Join(dir, "data", "faas.db")

	answers := []string{
		cfgPath,
		"", "", "", "", // name, project, stack, region
		"", "", // route path, method
		dbPath,
		"", "", // interval, max attempts
		"", "", // gateway addr, bearer tokens
		"yes", "", "", "", // tailscale, hostname, auth key, ephemeral
		"", "", // log level, format
	}
	var out bytes.Buffer
	require.NoError(t, initConfig(strings.NewReader(strings.Join(answers, "\n")+"\n"), &out))

	assert.Contains(t, out.String(), "Tailscale auth key (leave empty to use TS_AUTHKEY): ")

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.True(t, cfg.Gateway.Tailscale.Enabled)
	assert.Equal(t, "strategic-faas", cfg.Gateway.Tailscale.Hostname)
	assert.Empty(t, cfg.Gateway.Tailscale.AuthKey, "empty answer leaves the key to TS_AUTHKEY")
	assert.Equal(t, dbPath, cfg.Database.Path)
}
