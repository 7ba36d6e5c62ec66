package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeAPI(t *testing.T) *httptest.Server {
	t.Helper()

	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		require.NoError(t, json.NewEncoder(w).Encode(v))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
			"instance_id": "sched-1",
			"state":       "LEADING",
			"is_leader":   true,
			"leader": map[string]any{
				"key":         "metronome:lock",
				"owner_token": "sched-1:2f0c8a6e-4f55-4a0e-9d2f-3c1a1c9d8b11",
				"expires_at":  "2026-03-10T12:00:15Z",
			},
			"jobs": 2,
		}})
	})
	mux.HandleFunc("GET /api/v1/jobs", func(w http.ResponseWriter, r *http.Request) {
		jobs := []map[string]any{
			{"name": "cleanup", "cadence": "10s", "enabled": true, "next_due_at": "2026-03-10T12:00:10Z", "last_outcome": "DISPATCHED"},
			{"name": "report", "cadence": "@hourly", "enabled": false, "next_due_at": "2026-03-10T13:00:00Z"},
		}
		if r.URL.Query().Get("enabled") == "false" {
			jobs = jobs[1:]
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": jobs, "total": len(jobs)})
	})
	mux.HandleFunc("GET /api/v1/jobs/{name}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("name") != "cleanup" {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]any{
				"code": "NOT_FOUND", "message": "job not found",
			}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
			"name": "cleanup", "cadence": "10s", "enabled": true, "next_due_at": "2026-03-10T12:00:10Z",
		}})
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"checks": map[string]string{"redis": "ok", "postgres": "connection refused"},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// run выполняет команду и возвращает stdout.
func run(t *testing.T, srv *httptest.Server, jsonMode bool, newCmd func(func() *Client, func() *Output) *cobra.Command, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := newCmd(
		func() *Client { return NewClient(srv.URL) },
		func() *Output { return NewOutputTo(jsonMode, &stdout, &stderr) },
	)
	cmd.SetArgs(args)
	cmd.SetOut(&stderr)
	cmd.SetErr(&stderr)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestClient_Status(t *testing.T) {
	srv := newFakeAPI(t)

	st, err := NewClient(srv.URL).Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sched-1", st.InstanceID)
	assert.Equal(t, "LEADING", st.State)
	require.NotNil(t, st.Leader)
	assert.Equal(t, "sched-1", holder(st.Leader.OwnerToken))
}

func TestClient_GetJobNotFound(t *testing.T) {
	srv := newFakeAPI(t)

	_, err := NewClient(srv.URL).GetJob(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAPI))
	assert.Contains(t, err.Error(), "NOT_FOUND: job not found")
}

func TestClient_Unreachable(t *testing.T) {
	srv := newFakeAPI(t)
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).Status(context.Background())
	require.Error(t, err)
	assert.NotEmpty(t, errors.GetAllHints(err))
}

func TestStatusCmd(t *testing.T) {
	srv := newFakeAPI(t)

	out, err := run(t, srv, false, NewStatusCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "sched-1")
	assert.Contains(t, out, "LEADING")
	assert.Contains(t, out, "2026-03-10T12:00:15Z")
}

func TestJobsListCmd(t *testing.T) {
	srv := newFakeAPI(t)

	out, err := run(t, srv, false, NewJobsCmd, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "cleanup")
	assert.Contains(t, out, "DISPATCHED")
	assert.Contains(t, out, "report")
}

func TestJobsListCmd_JSONFiltered(t *testing.T) {
	srv := newFakeAPI(t)

	out, err := run(t, srv, true, NewJobsCmd, "list", "--disabled")
	require.NoError(t, err)

	var jobs []JobResponse
	require.NoError(t, json.Unmarshal([]byte(out), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, "report", jobs[0].Name)
}

func TestJobsListCmd_ConflictingFlags(t *testing.T) {
	srv := newFakeAPI(t)

	_, err := run(t, srv, false, NewJobsCmd, "list", "--enabled", "--disabled")
	require.Error(t, err)
}

func TestJobsShowCmd(t *testing.T) {
	srv := newFakeAPI(t)

	out, err := run(t, srv, false, NewJobsCmd, "show", "cleanup")
	require.NoError(t, err)
	assert.Contains(t, out, "Cadence:")
	assert.Contains(t, out, "10s")

	_, err = run(t, srv, false, NewJobsCmd, "show", "missing")
	require.Error(t, err)
}

func TestHealthCmd_Unhealthy(t *testing.T) {
	srv := newFakeAPI(t)

	out, err := run(t, srv, false, NewHealthCmd)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errUnhealthy))
	assert.Contains(t, out, "connection refused")
}
