package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"futbars/internal/roll"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, 1500*time.Millisecond, cfg.Fetch.Pacing())
	assert.Equal(t, 3, cfg.Fetch.RetryRounds)
	assert.Equal(t, 1, cfg.Fetch.Workers)
	assert.Equal(t, DefaultMaxDaysPerBar(), cfg.Fetch.MaxDaysPerBar)
	assert.Equal(t, "1 min", cfg.Fetch.BarSizeMap["1m"])
	assert.Equal(t, 2018, cfg.Roll.StartYear)
	assert.Equal(t, 2035, cfg.Roll.EndYear)
	assert.Equal(t, "json", cfg.Report.Format)

	fams, err := cfg.Families()
	require.NoError(t, err)
	require.Len(t, fams, 2)
	assert.Equal(t, "MGC", fams[0].Symbol)
	assert.Equal(t, roll.RuleMetal, fams[0].Calendar.Rule)
	assert.Equal(t, 1, fams[0].Calendar.Offset)
	assert.Equal(t, "COMEX", fams[0].Exchange)
	assert.Equal(t, "MNQ", fams[1].Symbol)
	assert.Equal(t, []time.Month{3, 6, 9, 12}, fams[1].Months)
	assert.Equal(t, 4, fams[1].Calendar.Offset)
}

func TestLoadWithIncludeAndOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "contracts.yaml", `
contracts:
  mnq:
    rule: index
    months: [3, 6, 9, 12]
    exchange: CME
`)
	path := writeFile(t, dir, "config.yaml", `
include:
  - contracts.yaml
app:
  log_level: debug
fetch:
  pacing_seconds: 0.5
  retry_rounds: 5
  workers: 2
  max_days_per_bar:
    1m: 2
storage:
  db_path: /tmp/bars.db
report:
  path: out/report.yaml
  format: yaml
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, 500*time.Millisecond, cfg.Fetch.Pacing())
	assert.Equal(t, 5, cfg.Fetch.RetryRounds)
	assert.Equal(t, 2, cfg.Fetch.Workers)
	assert.Equal(t, 2, cfg.Fetch.MaxDaysPerBar["1m"])
	assert.Equal(t, 30, cfg.Fetch.MaxDaysPerBar["1h"], "missing bars filled from defaults")
	assert.Equal(t, "/tmp/bars.db", cfg.Storage.DBPath)

	require.Len(t, cfg.Contracts, 1)
	mnq := cfg.Contracts["MNQ"]
	assert.Equal(t, 4, mnq.OffsetDays)
	assert.Equal(t, "USD", mnq.Currency)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("FUTBARS_SOURCE_BASE_URL", "http://gateway:9000/api")
	t.Setenv("FUTBARS_STORAGE_DB_PATH", "/data/env.db")
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
source:
  base_url: http://file-value
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://gateway:9000/api", cfg.Source.BaseURL)
	assert.Equal(t, "/data/env.db", cfg.Storage.DBPath)
}

func TestValidation(t *testing.T) {
	tests := map[string]string{
		"bad rule": `
contracts:
  es:
    rule: weekly
    months: [3]
`,
		"bad month": `
contracts:
  es:
    rule: index
    months: [13]
`,
		"zero span": `
fetch:
  max_days_per_bar:
    1m: 0
`,
		"unknown bar": `
fetch:
  max_days_per_bar:
    2m: 1
`,
		"retry rounds": `
fetch:
  retry_rounds: 0
`,
		"years": `
roll:
  start_year: 2030
  end_year: 2020
`,
		"report format": `
report:
  format: xml
`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include: [b.yaml]\n")
	writeFile(t, dir, "b.yaml", "include: [a.yaml]\n")
	_, err := Load(filepath.Join(dir, "a.yaml"))
	assert.ErrorContains(t, err, "include cycle")
}

func TestExplicitZeroOffsetRejected(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
contracts:
  mgc:
    rule: metal
    offset_days: 0
    months: [2, 4]
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "contracts.MGC.offset_days")

	path = writeFile(t, t.TempDir(), "config.yaml", `
contracts:
  mgc:
    rule: metal
    months: [2, 4]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Contracts["MGC"].OffsetDays)
}
