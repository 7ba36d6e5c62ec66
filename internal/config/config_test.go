package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
instance_id: sched-a
lease:
  backend: redis
  ttl: 20s
tick:
  period: 2s
redis:
  url: redis://cache:6379/1
jobs:
  - name: cleanup
    cadence: 10s
  - name: report
    cadence: "0 9 * * *"
    timezone: Europe/Moscow
    topic: reports
    enabled: false
    payload:
      format: pdf
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(EnvConfigPath, "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "metronome:lock", cfg.Lease.Key)
	assert.Equal(t, 15*time.Second, cfg.Lease.TTL)
	assert.Equal(t, 5*time.Second, cfg.Lease.ElectionPoll)
	assert.Equal(t, time.Second, cfg.Tick.Period)
	assert.Equal(t, 5*time.Second, cfg.Queue.PublishTimeout)
	assert.Equal(t, "jobs.due", cfg.Queue.DefaultTopic)
	assert.Equal(t, BackendMemory, cfg.Lease.Backend)
	assert.NotEmpty(t, cfg.InstanceID)
	assert.Empty(t, cfg.Path())

	require.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, "metronome.yaml", sampleYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sched-a", cfg.InstanceID)
	assert.Equal(t, BackendRedis, cfg.Lease.Backend)
	assert.Equal(t, 20*time.Second, cfg.Lease.TTL)
	assert.Equal(t, 2*time.Second, cfg.Tick.Period)
	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
	assert.Equal(t, path, cfg.Path())
	require.Len(t, cfg.Jobs, 2)

	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "metronome.yaml", sampleYAML)
	t.Setenv("METRONOME_LEASE_TTL", "30s")
	t.Setenv("METRONOME_QUEUE_DEFAULT_TOPIC", "custom.due")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Lease.TTL)
	assert.Equal(t, "custom.due", cfg.Queue.DefaultTopic)
}

func TestLoad_PathFromEnv(t *testing.T) {
	path := writeConfig(t, "metronome.yaml", sampleYAML)
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sched-a", cfg.InstanceID)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown lease backend", func(c *Config) { c.Lease.Backend = "zookeeper" }},
		{"unknown queue backend", func(c *Config) { c.Queue.Backend = "kafka" }},
		{"zero ttl", func(c *Config) { c.Lease.TTL = 0 }},
		{"renew period not below ttl", func(c *Config) { c.Lease.RenewPeriod = c.Lease.TTL }},
		{"renew timeout above ttl/3", func(c *Config) { c.Lease.RenewTimeout = c.Lease.TTL }},
		{"empty lease key", func(c *Config) { c.Lease.Key = " " }},
		{"zero tick", func(c *Config) { c.Tick.Period = 0 }},
		{"postgres without url", func(c *Config) { c.Registry.Backend = BackendPostgres }},
		{"empty default topic", func(c *Config) { c.Queue.DefaultTopic = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvConfigPath, "")
			cfg, err := Load("")
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
			assert.NotEmpty(t, errors.GetAllHints(err))
		})
	}
}

func TestJobDefinitions(t *testing.T) {
	path := writeConfig(t, "metronome.yaml", sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	defs, err := cfg.JobDefinitions()
	require.NoError(t, err)
	require.Len(t, defs, 2)

	assert.Equal(t, "cleanup", defs[0].Name)
	assert.Equal(t, "10s", defs[0].Cadence)
	assert.True(t, defs[0].Enabled)
	assert.Empty(t, defs[0].Payload)

	assert.Equal(t, "report", defs[1].Name)
	assert.Equal(t, "Europe/Moscow", defs[1].Timezone)
	assert.Equal(t, "reports", defs[1].Topic)
	assert.False(t, defs[1].Enabled)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(defs[1].Payload, &payload))
	assert.Equal(t, "pdf", payload["format"])

	assert.Equal(t, []string{"jobs.due", "reports"}, cfg.Topics())
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := writeConfig(t, "metronome.yaml", sampleYAML)

	var (
		reloads atomic.Int32
		jobs    atomic.Int32
	)
	w, err := NewWatcher(WatcherConfig{
		Path:     path,
		Debounce: 20 * time.Millisecond,
		OnReload: func(_ context.Context, cfg *Config) error {
			jobs.Store(int32(len(cfg.Jobs)))
			reloads.Add(1)
			return nil
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	updated := sampleYAML + `
  - name: extra
    cadence: 1m
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	require.Eventually(t, func() bool {
		return reloads.Load() > 0 && jobs.Load() == 3
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestWatcher_IgnoresInvalidConfig(t *testing.T) {
	path := writeConfig(t, "metronome.yaml", sampleYAML)

	var reloads atomic.Int32
	w, err := NewWatcher(WatcherConfig{
		Path:     path,
		Debounce: 20 * time.Millisecond,
		OnReload: func(context.Context, *Config) error {
			reloads.Add(1)
			return nil
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	require.NoError(t, os.WriteFile(path, []byte("lease:\n  backend: zookeeper\n"), 0o644))

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(0), reloads.Load())
}

func TestNewWatcher_RequiresCallback(t *testing.T) {
	_, err := NewWatcher(WatcherConfig{Path: writeConfig(t, "c.yaml", "watch: true\n")})
	require.Error(t, err)
}

func TestWorkerConfig(t *testing.T) {
	path := writeConfig(t, "metronome.yaml", sampleYAML+`
worker:
  webhooks:
    - job: cleanup
      url: http://hooks.local/cleanup
      timeout: 3s
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8082", cfg.Worker.HTTPAddr)
	assert.Equal(t, 5, cfg.Worker.Prefetch)
	require.Len(t, cfg.Worker.Webhooks, 1)
	assert.Equal(t, "cleanup", cfg.Worker.Webhooks[0].Job)
	assert.Equal(t, 3*time.Second, cfg.Worker.Webhooks[0].Timeout)
	assert.Equal(t, []string{"jobs.due", "reports"}, cfg.WorkerTopics())

	cfg.Worker.CompletionTopic = "jobs.done"
	require.NoError(t, cfg.Validate())

	cfg.Worker.CompletionTopic = "reports"
	assert.True(t, errors.Is(cfg.Validate(), ErrInvalidConfig))
	cfg.Worker.CompletionTopic = ""

	cfg.Worker.Webhooks[0].URL = ""
	assert.True(t, errors.Is(cfg.Validate(), ErrInvalidConfig))
}
