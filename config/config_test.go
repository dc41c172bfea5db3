package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return dir, path
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir, path := writeYAML(t, "")
	body := `run:
  start_year: 2016
  country: US
  output_dir: ` + filepath.Join(dir, "out") + `
flights:
  source_dir: ` + filepath.Join(dir, "flights") + `
  chunk_size: 1000
cache:
  backend: sqlite
  dir: ` + filepath.Join(dir, "cache") + `
  sqlite_path: lookup.db
geocoder:
  timeout: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2016, cfg.Run.StartYear)
	assert.Equal(t, 1000, cfg.Flights.ChunkSize)
	assert.Equal(t, 5*time.Second, cfg.Geocoder.Timeout)
	assert.Equal(t, 60*time.Second, cfg.Weather.Timeout)
	assert.Equal(t, "parquet", cfg.Output.Format, "keys absent from the file keep their defaults")
	assert.Equal(t, filepath.Join(dir, "cache", "lookup.db"), cfg.Cache.SQLitePath)
	assert.DirExists(t, filepath.Join(dir, "out"))
	assert.Equal(t, filepath.Join(dir, "out", "x.csv"), cfg.OutputPath("x.csv"))
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	dir, path := writeYAML(t, "")
	body := `run:
  output_dir: ` + filepath.Join(dir, "out") + `
flights:
  source_dir: ` + filepath.Join(dir, "flights") + `
cache:
  dir: ` + filepath.Join(dir, "cache") + `
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	t.Setenv("FLIGHTWX_RUN_START_YEAR", "2012")
	t.Setenv("FLIGHTWX_OUTPUT_FORMAT", "csv")
	t.Setenv("FLIGHTWX_WEATHER_CONCURRENCY", "8")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2012, cfg.Run.StartYear)
	assert.Equal(t, "csv", cfg.Output.Format)
	assert.Equal(t, 8, cfg.Weather.Concurrency)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"country code", "run:\n  country: USA\n"},
		{"output format", "output:\n  format: xlsx\n"},
		{"end before start", "run:\n  start_year: 2018\nflights:\n  end_year: 2010\n"},
		{"bad timeout", "weather:\n  timeout: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, path := writeYAML(t, "")
			body := tt.body + "\n" + `cache:
  dir: ` + filepath.Join(dir, "cache") + "\n"
			if tt.name != "end before start" {
				body += "flights:\n  source_dir: " + filepath.Join(dir, "flights") + "\n"
			}
			require.NoError(t, os.WriteFile(path, []byte(body), 0644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}
