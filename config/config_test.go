package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-circulation/library"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)

	p := cfg.LibraryPolicy()
	def := library.DefaultPolicy()
	assert.Equal(t, def.LoanPeriod, p.LoanPeriod)
	assert.True(t, def.PerDayPenaltyRate.Equal(p.PerDayPenaltyRate))
	assert.True(t, def.SuspensionThreshold.Equal(p.SuspensionThreshold))
	assert.Equal(t, def.SuspensionPeriod, p.SuspensionPeriod)
	assert.Equal(t, def.ClaimExpiry, p.ClaimExpiry)
	assert.Equal(t, def.MaxRenewals, p.MaxRenewals)
	assert.Equal(t, def.LoanLimits, p.LoanLimits)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "library.yaml", `
dataDir: /srv/library
log:
  level: debug
  format: json
policy:
  loanPeriodDays: 21
  perDayPenaltyRate: "2"
  suspensionThreshold: "20"
  suspensionPeriodDays: 10
  claimExpiryHours: 24
  maxRenewals: 0
  loanLimits:
    teacher: 12
metrics:
  textfile: /var/lib/node_exporter/library.prom
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/library", cfg.DataDir)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "/var/lib/node_exporter/library.prom", cfg.Metrics.Textfile)

	p := cfg.LibraryPolicy()
	assert.Equal(t, 21*24*time.Hour, p.LoanPeriod)
	assert.True(t, p.PerDayPenaltyRate.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, 10*24*time.Hour, p.SuspensionPeriod)
	assert.Equal(t, 24*time.Hour, p.ClaimExpiry)
	assert.Equal(t, 0, p.MaxRenewals, "an explicit zero disables renewals")
	assert.Equal(t, 12, p.LoanLimits[library.CategoryTeacher])
	assert.Equal(t, 3, p.LoanLimits[library.CategoryStudent])
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "library.yaml", "dataDir: from-file\npolicy:\n  loanPeriodDays: 7\n")
	t.Setenv("LIBRARY_DATA_DIR", "from-env")
	t.Setenv("LIBRARY_LOAN_PERIOD_DAYS", "3")
	t.Setenv("LIBRARY_PER_DAY_PENALTY_RATE", "1.25")
	t.Setenv("LIBRARY_CLAIM_EXPIRY_HOURS", "12")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.DataDir)

	p := cfg.LibraryPolicy()
	assert.Equal(t, 3*24*time.Hour, p.LoanPeriod)
	assert.Equal(t, "1.25", p.PerDayPenaltyRate.String())
	assert.Equal(t, 12*time.Hour, p.ClaimExpiry)
}

func TestInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "negative period", yaml: "policy:\n  loanPeriodDays: -1\n"},
		{name: "bad rate", yaml: "policy:\n  perDayPenaltyRate: lots\n"},
		{name: "negative threshold", yaml: "policy:\n  suspensionThreshold: \"-5\"\n"},
		{name: "unknown category", yaml: "policy:\n  loanLimits:\n    alumni: 2\n"},
		{name: "unknown log format", yaml: "log:\n  format: xml\n"},
		{name: "non-numeric env", env: map[string]string{"LIBRARY_LOAN_PERIOD_DAYS": "two weeks"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeFile(t, "library.yaml", tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")), "missing file is ignored")

	t.Setenv("LIBRARY_LOG_LEVEL", "")
	os.Unsetenv("LIBRARY_LOG_LEVEL")
	path := writeFile(t, ".env", "LIBRARY_LOG_LEVEL=debug\n")
	require.NoError(t, LoadDotEnv(path))
	t.Cleanup(func() { os.Unsetenv("LIBRARY_LOG_LEVEL") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}
