package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{"STORAGE_DRIVER": "memory"}))
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, 30*time.Minute, cfg.NoShowGrace)
	assert.Equal(t, []time.Duration{24 * time.Hour, time.Hour, 15 * time.Minute}, cfg.ReminderLeads)
	assert.Equal(t, 2*time.Hour, cfg.RescheduleMinNotice)
	assert.True(t, cfg.AutoStart)
	assert.Equal(t, 4, cfg.NotifyWorkers)
	assert.Equal(t, 256, cfg.NotifyBuffer)
	assert.False(t, cfg.TracingEnabled)
	assert.False(t, cfg.IsProduction())
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"ENV":                  "production",
		"DB_DSN":               "postgres://localhost/tutoring",
		"SWEEP_INTERVAL":       "30s",
		"REMINDER_LEADS":       "15m, 2h",
		"AUTO_START":           "false",
		"NOTIFY_WORKERS":       "8",
		"TRACING_ENABLED":      "true",
		"TRACING_SAMPLE_RATIO": "0.25",
	}))
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, StoragePostgres, cfg.StorageDriver)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, []time.Duration{2 * time.Hour, 15 * time.Minute}, cfg.ReminderLeads)
	assert.False(t, cfg.AutoStart)
	assert.Equal(t, 8, cfg.NotifyWorkers)
	assert.True(t, cfg.TracingEnabled)
	assert.InDelta(t, 0.25, cfg.TracingSampleRatio, 1e-9)
}

func TestFromEnvErrors(t *testing.T) {
	cases := map[string]map[string]string{
		"postgres without dsn":   {},
		"unknown driver":         {"STORAGE_DRIVER": "sqlite"},
		"sweep interval too big": {"STORAGE_DRIVER": "memory", "SWEEP_INTERVAL": "5m"},
		"bad duration":           {"STORAGE_DRIVER": "memory", "NO_SHOW_GRACE": "half an hour"},
		"bad lead":               {"STORAGE_DRIVER": "memory", "REMINDER_LEADS": "1h,soon"},
		"negative lead":          {"STORAGE_DRIVER": "memory", "REMINDER_LEADS": "-1h"},
		"bad bool":               {"STORAGE_DRIVER": "memory", "AUTO_START": "maybe"},
		"zero workers":           {"STORAGE_DRIVER": "memory", "NOTIFY_WORKERS": "0"},
		"ratio out of range":     {"STORAGE_DRIVER": "memory", "TRACING_SAMPLE_RATIO": "1.5"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromEnv(envMap(env))
			assert.Error(t, err)
		})
	}
}
