package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhaobenny/aobatop/internal/parser"
)

func TestLoadFrom_MissingFile(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFrom_PartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rate: 30.5\ntimezone: Asia/Tokyo\n"), 0644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, 30.5, cfg.Rate)
	assert.Equal(t, "Asia/Tokyo", cfg.Timezone)
	assert.Equal(t, "LX", cfg.HostID, "unset keys keep their defaults")
	assert.Equal(t, "Shift_JIS", cfg.Encoding)
}

func TestLoadFrom_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rate: [not a number"), 0644))

	_, err := LoadFrom(path)
	assert.Error(t, err)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aobatop.yaml")
	t.Setenv("AOBATOP_CONFIG", path)

	cfg := Defaults()
	cfg.Rate = 25
	cfg.Server = "http://localhost:8080"
	require.NoError(t, Save(cfg))

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 25.0, loaded.Rate)
	assert.Equal(t, "http://localhost:8080", loaded.Server)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestSaveRejectsInvalid(t *testing.T) {
	t.Setenv("AOBATOP_CONFIG", filepath.Join(t.TempDir(), "aobatop.yaml"))

	cfg := Defaults()
	cfg.Rate = 0
	assert.Error(t, Save(cfg))
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("AOBATOP_RATE", "11")
	t.Setenv("AOBATOP_CUTOFF", "2021-04-01")
	t.Setenv("AOBATOP_ENCODING", "UTF-8")
	t.Setenv("AOBATOP_CURRENCY", "JPY ")

	cfg := Defaults()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, 11.0, cfg.Rate)
	assert.Equal(t, "2021-04-01", cfg.Cutoff)
	assert.Equal(t, "UTF-8", cfg.Encoding)
	assert.Equal(t, "JPY ", cfg.Currency)

	t.Setenv("AOBATOP_RATE", "lots")
	assert.Error(t, cfg.ApplyEnv())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero rate", func(c *Config) { c.Rate = 0 }},
		{"negative rate", func(c *Config) { c.Rate = -22 }},
		{"bad cutoff", func(c *Config) { c.Cutoff = "2020/01/01" }},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }},
		{"long delimiter", func(c *Config) { c.Delimiter = ";;" }},
		{"quote delimiter", func(c *Config) { c.Delimiter = `"` }},
		{"empty class", func(c *Config) { c.ClassID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestCutoffTime(t *testing.T) {
	cfg := Defaults()
	cfg.Timezone = "Asia/Tokyo"
	cfg.Cutoff = "2021-04-01"

	cutoff, err := cfg.CutoffTime()
	require.NoError(t, err)
	assert.Equal(t, "2021-04-01 00:00:00 +0900", cutoff.Format("2006-01-02 15:04:05 -0700"))

	cfg.Cutoff = ""
	cutoff, err = cfg.CutoffTime()
	require.NoError(t, err)
	assert.Equal(t, 2020, cutoff.Year())
	assert.Equal(t, time.January, cutoff.Month())
}

func TestDelimiterRune(t *testing.T) {
	tests := map[string]rune{
		"":    ',',
		",":   ',',
		";":   ';',
		"tab": '\t',
		`\t`:  '\t',
		"|":   '|',
	}
	for in, want := range tests {
		cfg := Defaults()
		cfg.Delimiter = in
		got, err := cfg.DelimiterRune()
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestOptions(t *testing.T) {
	cfg := Defaults()
	cfg.Rate = 30
	cfg.HostID = "LY"
	cfg.Delimiter = "tab"

	popts, err := cfg.ParserOptions()
	require.NoError(t, err)
	assert.Equal(t, '\t', popts.Delimiter)
	assert.Equal(t, "Shift_JIS", popts.Encoding)
	assert.Equal(t, time.UTC, popts.Location)

	aopts, err := cfg.AggregatorOptions()
	require.NoError(t, err)
	assert.Equal(t, 30.0, aopts.Rate)
	assert.Equal(t, "LY", aopts.Class.HostID)
	assert.Equal(t, "LX", aopts.Class.ClassID)
	assert.Equal(t, "¥", aopts.Currency)

	cfg.Rate = -1
	_, err = cfg.AggregatorOptions()
	assert.Error(t, err)
}

func TestApplyOverrides(t *testing.T) {
	base := Defaults()

	cfg, err := base.Apply(Overrides{Rate: 30, Cutoff: "20230401", Timezone: "Asia/Tokyo"})
	require.NoError(t, err)
	assert.Equal(t, 30.0, cfg.Rate)
	assert.Equal(t, "2023-04-01", cfg.Cutoff)
	assert.Equal(t, "Asia/Tokyo", cfg.Timezone)
	assert.Equal(t, parser.DefaultEncoding, cfg.Encoding)

	assert.Equal(t, 22.0, base.Rate, "the receiver is not modified")

	cfg, err = base.Apply(Overrides{})
	require.NoError(t, err)
	assert.Equal(t, base, cfg)

	_, err = base.Apply(Overrides{Rate: -1})
	assert.Error(t, err)
	_, err = base.Apply(Overrides{Cutoff: "April"})
	assert.Error(t, err)
	_, err = base.Apply(Overrides{Timezone: "Mars/Olympus"})
	assert.Error(t, err)
}

func TestNormalizeCutoff(t *testing.T) {
	for in, want := range map[string]string{
		"20200101":   "2020-01-01",
		"2021-06-30": "2021-06-30",
	} {
		got, err := NormalizeCutoff(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := NormalizeCutoff("2021-13-01")
	assert.Error(t, err)
}

func TestLoad_DotEnv(t *testing.T) {
	t.Setenv("AOBATOP_CONFIG", filepath.Join(t.TempDir(), "aobatop.yaml"))
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := Load()
	require.NoError(t, err, "no .env is fine")
	assert.Equal(t, Defaults().Rate, cfg.Rate)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("AOBATOP_RATE=\"30\n"), 0600))
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".env")
}

func TestFormValuesRoundTrip(t *testing.T) {
	cfg := Defaults()
	cfg.HostID, cfg.ClassID, cfg.Delimiter, cfg.Currency = "SX", "SX", "tab", "$"
	cfg.Rate = 12.5

	v := cfg.FormValues()
	assert.Equal(t, "12.5", v["rate"])

	back, err := Defaults().Apply(Overrides{
		Cutoff:    v["cutoff"],
		Encoding:  v["encoding"],
		Timezone:  v["timezone"],
		HostID:    v["host_id"],
		ClassID:   v["class_id"],
		Delimiter: v["delimiter"],
		Currency:  v["currency"],
		Rate:      12.5,
	})
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}
