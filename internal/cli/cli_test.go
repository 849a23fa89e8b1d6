// ABOUTME: Tests for the gatewayctl command tree against a fake gateway.
// ABOUTME: Commands run in-process with captured output.

package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/realtime-gateway/internal/auth"
	"github.com/2389/realtime-gateway/internal/envelope"
	"github.com/2389/realtime-gateway/internal/gateway"
	"github.com/2389/realtime-gateway/internal/mediajob"
	"github.com/2389/realtime-gateway/internal/replay"
	"github.com/2389/realtime-gateway/internal/task"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// runCLI executes args and returns stdout and the command error.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := BuildCLI()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func writeEnvelopeFile(t *testing.T, env *envelope.Envelope) string {
	t.Helper()
	data, err := json.Marshal(env)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "envelope.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func testEnvelope() *envelope.Envelope {
	env := envelope.New(envelope.TypeOrchestratorRequest, "web", "s1", map[string]any{
		"intent":         "story",
		"input":          map[string]any{"prompt": "a fox"},
		"idempotencyKey": "k1",
	})
	env.RunID = "r1"
	return env
}

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.Equal(t, "gatewayctl", cmd.Use)

	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"submit", "tasks", "media", "replay-key", "token"} {
		assert.True(t, names[want], "should have %q command", want)
	}

	gatewayFlag := cmd.PersistentFlags().Lookup("gateway")
	require.NotNil(t, gatewayFlag)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("token"))
	assert.Equal(t, "c", cmd.PersistentFlags().Lookup("config").Shorthand)
}

func TestSubmit(t *testing.T) {
	var gotAuth string
	var got envelope.Envelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/requests", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		resp := envelope.New(envelope.TypeOrchestratorResponse, "orchestrator", "s1", map[string]any{"status": "accepted"})
		w.Header().Set("X-Task-Id", "task-1")
		w.Header().Set("X-Replayed", "true")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	env := testEnvelope()
	out, err := runCLI(t, "--gateway", srv.URL, "--token", "tok", "submit", writeEnvelopeFile(t, env))
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, env.ID, got.ID)
	assert.Contains(t, out, "task:     task-1")
	assert.Contains(t, out, "replayed: yes")
	assert.Contains(t, out, `"status": "accepted"`)
}

func TestSubmit_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := envelope.NewError("gateway", "s1", "IDEMPOTENCY_CONFLICT", "payload differs", "trace")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	_, err := runCLI(t, "--gateway", srv.URL, "submit", writeEnvelopeFile(t, testEnvelope()))
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "IDEMPOTENCY_CONFLICT", apiErr.Code)
	assert.Equal(t, "payload differs", apiErr.Message)
}

func TestSubmit_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"x"}`), 0o600))

	_, err := runCLI(t, "--gateway", "http://127.0.0.1:0", "submit", path)
	require.Error(t, err)
	assert.ErrorIs(t, err, envelope.ErrInvalidEnvelope)
}

func TestTasksList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tasks", r.URL.Path)
		assert.Equal(t, "s1", r.URL.Query().Get("session_id"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))

		now := time.Now()
		_ = json.NewEncoder(w).Encode(gateway.ListTasksResponse{Tasks: []task.Record{
			{TaskID: "task-1", SessionID: "s1", Status: task.StatusRunning, Stage: "accepted", ProgressPct: 40, CreatedAt: now, UpdatedAt: now},
		}})
	}))
	defer srv.Close()

	out, err := runCLI(t, "--gateway", srv.URL, "tasks", "list", "--session", "s1", "-n", "5")
	require.NoError(t, err)

	assert.Contains(t, out, "TASK")
	assert.Contains(t, out, "task-1")
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "40%")
}

func TestTasksList_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"tasks":[]}`))
	}))
	defer srv.Close()

	out, err := runCLI(t, "--gateway", srv.URL, "tasks", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no active tasks")
}

func TestTasksGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tasks/task-1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(task.Record{TaskID: "task-1", SessionID: "s1", Status: task.StatusCompleted})
	}))
	defer srv.Close()

	out, err := runCLI(t, "--gateway", srv.URL, "tasks", "get", "task-1")
	require.NoError(t, err)
	assert.Contains(t, out, `"taskId": "task-1"`)
	assert.Contains(t, out, `"status": "completed"`)
}

func TestTasksDispatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tasks/task-1/dispatches", r.URL.Path)
		_ = json.NewEncoder(w).Encode(gateway.ListDispatchesResponse{Dispatches: []gateway.DispatchResponse{
			{ID: "d1", TaskID: "task-1", Status: "completed", Route: "storyteller-agent", Attempts: 1, DurationMs: 12, CreatedAt: "2026-01-01T00:00:00Z"},
			{ID: "d2", TaskID: "task-1", Status: "failed", Attempts: 3, Error: "orchestrator unavailable", CreatedAt: "2026-01-01T00:00:01Z"},
		}})
	}))
	defer srv.Close()

	out, err := runCLI(t, "--gateway", srv.URL, "tasks", "dispatches", "task-1")
	require.NoError(t, err)

	assert.Contains(t, out, "storyteller-agent")
	assert.Contains(t, out, "12ms")
	assert.Contains(t, out, "orchestrator unavailable")
	assert.Equal(t, 3, strings.Count(out, "\n"))
}

func TestMediaCreate(t *testing.T) {
	var got mediajob.CreateParams
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/media/jobs", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(mediajob.Job{JobID: "job-1", SessionID: got.SessionID, SegmentIndex: got.SegmentIndex, Mode: got.Mode, Status: mediajob.StatusQueued})
	}))
	defer srv.Close()

	out, err := runCLI(t, "--gateway", srv.URL, "media", "create", "-s", "s1", "--segment", "2", "--mode", "fallback")
	require.NoError(t, err)

	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, 2, got.SegmentIndex)
	assert.Equal(t, mediajob.ModeFallback, got.Mode)
	assert.Contains(t, out, "job-1")
	assert.Contains(t, out, "queued")
}

func TestMediaCreate_RequiresSession(t *testing.T) {
	_, err := runCLI(t, "--gateway", "http://127.0.0.1:0", "media", "create")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--session")
}

func TestMediaGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "a,b", r.URL.Query().Get("ids"))
		_ = json.NewEncoder(w).Encode(gateway.MediaJobsResponse{Jobs: []mediajob.Job{
			{JobID: "a", Status: mediajob.StatusCompleted, AssetRef: "fallback://a"},
			{JobID: "b", Status: mediajob.StatusRunning},
		}})
	}))
	defer srv.Close()

	out, err := runCLI(t, "--gateway", srv.URL, "media", "get", "a", "b")
	require.NoError(t, err)
	assert.Contains(t, out, "fallback://a")
	assert.Contains(t, out, "running")
}

func TestReplayKey(t *testing.T) {
	env := testEnvelope()

	out, err := runCLI(t, "replay-key", writeEnvelopeFile(t, env))
	require.NoError(t, err)

	assert.Contains(t, out, "key:         s1:r1:story:k1")
	assert.Contains(t, out, replay.BuildFingerprint(env))
}

func TestReplayKey_Stdin(t *testing.T) {
	data, err := json.Marshal(testEnvelope())
	require.NoError(t, err)

	cmd := BuildCLI()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(bytes.NewReader(data))
	cmd.SetArgs([]string{"replay-key", "-"})
	require.NoError(t, cmd.ExecuteContext(t.Context()))

	assert.Contains(t, out.String(), "s1:r1:story:k1")
}

func TestToken(t *testing.T) {
	out, err := runCLI(t, "token", "--secret", "test-secret-that-is-long-enough", "--subject", "ops", "-s", "s1", "--ttl", "1h")
	require.NoError(t, err)

	claims, err := auth.NewJWTVerifier([]byte("test-secret-that-is-long-enough")).Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, "s1", claims.SessionID)
}

func TestToken_SecretFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  jwt_secret: from-config-secret-value\n"), 0o600))

	out, err := runCLI(t, "--config", path, "token", "--subject", "ops")
	require.NoError(t, err)

	claims, err := auth.NewJWTVerifier([]byte("from-config-secret-value")).Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Empty(t, claims.SessionID)
}

func TestToken_RequiresSubject(t *testing.T) {
	_, err := runCLI(t, "token", "--secret", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--subject")
}
