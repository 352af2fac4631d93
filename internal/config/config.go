package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"
	_ "time/tzdata"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/zhaobenny/aobatop/internal/aggregator"
	"github.com/zhaobenny/aobatop/internal/model"
	"github.com/zhaobenny/aobatop/internal/parser"
	"github.com/zhaobenny/aobatop/internal/pricing"
)

const cutoffLayout = "2006-01-02"

// Config holds the billing and input settings
type Config struct {
	Rate      float64 `yaml:"rate"`
	Cutoff    string  `yaml:"cutoff"`
	HostID    string  `yaml:"host_id"`
	ClassID   string  `yaml:"class_id"`
	Encoding  string  `yaml:"encoding"`
	Delimiter string  `yaml:"delimiter"`
	Timezone  string  `yaml:"timezone"`
	Currency  string  `yaml:"currency"`
	Server    string  `yaml:"server,omitempty"`
}

// Defaults returns the settings for AOBA-A/B project journals
func Defaults() *Config {
	return &Config{
		Rate:      pricing.DefaultNodeHourRate,
		Cutoff:    "2020-01-01",
		HostID:    pricing.DefaultBillableClass.HostID,
		ClassID:   pricing.DefaultBillableClass.ClassID,
		Encoding:  parser.DefaultEncoding,
		Delimiter: ",",
		Timezone:  "UTC",
		Currency:  pricing.DefaultCurrency,
	}
}

// Path returns the path to the config file
func Path() (string, error) {
	if p := os.Getenv("AOBATOP_CONFIG"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".aobatop.yaml"), nil
}

// Load loads the config file, then applies .env and environment overrides
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		return nil, err
	}

	// A missing .env is the normal case
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFrom reads a YAML config file on top of the defaults.
// A missing file yields the defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the config file
func Save(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	path, err := Path()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// ApplyEnv overrides settings from AOBATOP_* environment variables
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("AOBATOP_RATE"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid AOBATOP_RATE %q: %w", v, err)
		}
		c.Rate = rate
	}

	strs := map[string]*string{
		"AOBATOP_CUTOFF":    &c.Cutoff,
		"AOBATOP_HOST_ID":   &c.HostID,
		"AOBATOP_CLASS_ID":  &c.ClassID,
		"AOBATOP_ENCODING":  &c.Encoding,
		"AOBATOP_DELIMITER": &c.Delimiter,
		"AOBATOP_TIMEZONE":  &c.Timezone,
		"AOBATOP_CURRENCY":  &c.Currency,
		"AOBATOP_SERVER":    &c.Server,
	}
	for key, field := range strs {
		if v := os.Getenv(key); v != "" {
			*field = v
		}
	}
	return nil
}

// Validate checks every setting that the parser and aggregator depend on
func (c *Config) Validate() error {
	if err := pricing.ValidateRate(c.Rate); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.CutoffTime(); err != nil {
		return err
	}
	if _, err := c.DelimiterRune(); err != nil {
		return err
	}
	if c.HostID == "" || c.ClassID == "" {
		return fmt.Errorf("host_id and class_id must not be empty")
	}
	return nil
}

// Location returns the zone journal timestamps are read in
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// CutoffTime returns the start of the cutoff day in the configured zone
func (c *Config) CutoffTime() (time.Time, error) {
	loc, err := c.Location()
	if err != nil {
		return time.Time{}, err
	}
	if c.Cutoff == "" {
		return aggregator.DefaultCutoff(loc), nil
	}
	t, err := time.ParseInLocation(cutoffLayout, c.Cutoff, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cutoff %q (use YYYY-MM-DD): %w", c.Cutoff, err)
	}
	return t, nil
}

// DelimiterRune returns the field separator; "tab" is accepted for '\t'
func (c *Config) DelimiterRune() (rune, error) {
	switch c.Delimiter {
	case "":
		return ',', nil
	case "tab", `\t`:
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(c.Delimiter)
	if size != len(c.Delimiter) || r == utf8.RuneError || r == '"' || r == '\r' || r == '\n' {
		return 0, fmt.Errorf("invalid delimiter %q: must be a single character", c.Delimiter)
	}
	return r, nil
}

// ParserOptions returns the settings for reading a journal
func (c *Config) ParserOptions() (parser.Options, error) {
	if err := c.Validate(); err != nil {
		return parser.Options{}, err
	}
	loc, _ := c.Location()
	delim, _ := c.DelimiterRune()
	return parser.Options{
		Encoding:  c.Encoding,
		Delimiter: delim,
		Location:  loc,
	}, nil
}

// AggregatorOptions returns the billing settings for an aggregation pass
func (c *Config) AggregatorOptions() (aggregator.Options, error) {
	if err := c.Validate(); err != nil {
		return aggregator.Options{}, err
	}
	cutoff, _ := c.CutoffTime()
	return aggregator.Options{
		Rate:     c.Rate,
		Cutoff:   cutoff,
		Class:    model.BillableClass{HostID: c.HostID, ClassID: c.ClassID},
		Currency: c.Currency,
	}, nil
}

// Overrides are per-invocation settings from flags or form fields; zero values keep the config
type Overrides struct {
	Rate      float64
	Cutoff    string // YYYYMMDD or YYYY-MM-DD
	Encoding  string
	Timezone  string
	HostID    string
	ClassID   string
	Delimiter string
	Currency  string
}

// FormValues returns the settings an upload service needs to compute the same report
func (c *Config) FormValues() map[string]string {
	return map[string]string{
		"rate":      strconv.FormatFloat(c.Rate, 'f', -1, 64),
		"cutoff":    c.Cutoff,
		"encoding":  c.Encoding,
		"timezone":  c.Timezone,
		"host_id":   c.HostID,
		"class_id":  c.ClassID,
		"delimiter": c.Delimiter,
		"currency":  c.Currency,
	}
}

// Apply returns a copy of the config with the overrides applied and validated
func (c *Config) Apply(o Overrides) (*Config, error) {
	out := *c
	if o.Rate != 0 {
		out.Rate = o.Rate
	}
	if o.Cutoff != "" {
		cutoff, err := NormalizeCutoff(o.Cutoff)
		if err != nil {
			return nil, err
		}
		out.Cutoff = cutoff
	}
	if o.Encoding != "" {
		out.Encoding = o.Encoding
	}
	if o.Timezone != "" {
		out.Timezone = o.Timezone
	}
	if o.HostID != "" {
		out.HostID = o.HostID
	}
	if o.ClassID != "" {
		out.ClassID = o.ClassID
	}
	if o.Delimiter != "" {
		out.Delimiter = o.Delimiter
	}
	if o.Currency != "" {
		out.Currency = o.Currency
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

// NormalizeCutoff accepts YYYYMMDD or YYYY-MM-DD and returns YYYY-MM-DD
func NormalizeCutoff(s string) (string, error) {
	for _, layout := range []string{"20060102", cutoffLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(cutoffLayout), nil
		}
	}
	return "", fmt.Errorf("invalid cutoff %q: use YYYYMMDD", s)
}
