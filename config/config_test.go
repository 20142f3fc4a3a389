package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBase(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoad_AppliesDefaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "test")
	dir := writeBase(t, "db:\n  host: localhost\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "clientportal", cfg.ServiceName)
	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, "USD", cfg.Portal.Currency)
	assert.Equal(t, 3, cfg.Worker.ReminderDays)
	assert.Equal(t, 25*time.Second, cfg.Realtime.Heartbeat)
	assert.Equal(t, "notifications.fanout.q", cfg.Worker.Queue)
}

func TestLoad_EnvOverridesWorker(t *testing.T) {
	t.Setenv("CONFIG_ENV", "test")
	t.Setenv("WORKER_REMINDER_DAYS", "7")
	t.Setenv("PORTAL_CURRENCY", "EUR")
	dir := writeBase(t, "worker:\n  reminder_days: 2\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Worker.ReminderDays)
	assert.Equal(t, "EUR", cfg.Portal.Currency)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	t.Setenv("CONFIG_ENV", "test")

	cases := map[string]string{
		"currency":     "portal:\n  currency: dollars\n",
		"sample ratio": "otel:\n  sample_ratio: 2\n",
		"demo role": `
auth:
  demo_accounts:
    - email: ops@example.com
      password: password123
      full_name: Ops
      role: superuser
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeBase(t, body))
			assert.ErrorContains(t, err, "invalid config")
		})
	}
}
