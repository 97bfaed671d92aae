package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"frabcal/internal/model"
)

// Range end policies.
const (
	// EndOfYear extends the last feed date to 31 December of its year.
	EndOfYear = "end_of_year"
	// LastDate uses the last feed date as is.
	LastDate = "last_date"
)

// MinDateThisMonth is the special filter.min_date value that resolves to the
// first day of the current month at run time.
const MinDateThisMonth = "this_month"

// ConferenceConfig holds the static conference header of the schedule.
type ConferenceConfig struct {
	Acronym string `yaml:"acronym" json:"acronym"`
	Title   string `yaml:"title" json:"title"`
}

// RangeConfig controls how the usable date range is derived from the feed.
type RangeConfig struct {
	// EndPolicy is one of:
	//   - "end_of_year" (default)
	//   - "last_date"
	EndPolicy string `yaml:"end_policy" json:"end_policy"`

	// Until, if set (YYYY-MM-DD), overrides the computed end date.
	Until string `yaml:"until,omitempty" json:"until,omitempty"`
}

// FilterConfig holds the pre-output filters.
type FilterConfig struct {
	// MinDate drops every day before it. Empty disables the filter;
	// "this_month" means the first day of the current month.
	MinDate string `yaml:"min_date,omitempty" json:"min_date,omitempty"`

	// HiddenSummary marks placeholder events that are never emitted.
	HiddenSummary string `yaml:"hidden_summary" json:"hidden_summary"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the status API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Input is the calendar feed: a file path or an http(s) URL.
	Input string `yaml:"input" json:"input"`

	// Output is the path the schedule XML is written to.
	Output string `yaml:"output" json:"output"`

	// Timezone is the IANA timezone used for all dates and times (e.g. "Europe/Berlin").
	Timezone string `yaml:"timezone" json:"timezone"`

	// DefaultRoom is used for events without a room marker.
	DefaultRoom string `yaml:"default_room" json:"default_room"`

	// Venue names the single room element emitted per day.
	Venue string `yaml:"venue" json:"venue"`

	Conference ConferenceConfig `yaml:"conference" json:"conference"`
	Range      RangeConfig      `yaml:"range" json:"range"`
	Filter     FilterConfig     `yaml:"filter" json:"filter"`

	// DayStartHour / DayEndHour define the nominal day window. The end hour
	// is on the following day.
	DayStartHour int `yaml:"day_start_hour" json:"day_start_hour"`
	DayEndHour   int `yaml:"day_end_hour" json:"day_end_hour"`

	// CacheDir stores conditional-GET metadata for URL inputs.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// RefreshCron is a cron-style schedule (e.g. "*/15 * * * *") used when
	// running with -watch. Empty disables watch mode.
	RefreshCron string `yaml:"refresh,omitempty" json:"refresh,omitempty"`

	// MetricsTextfile, if set, receives Prometheus metrics after each run.
	MetricsTextfile string `yaml:"metrics_textfile,omitempty" json:"metrics_textfile,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Listen is the HTTP address of the status API in watch mode
	// (e.g. "127.0.0.1:8080"). Empty disables the server.
	Listen string `yaml:"listen,omitempty" json:"listen,omitempty"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Input:       "basic.ics",
		Output:      "schedule.xml",
		Timezone:    "Europe/Berlin",
		DefaultRoom: "Salon",
		Venue:       "Verschwörhaus",
		Conference: ConferenceConfig{
			Acronym: "VSH",
			Title:   "Verschwörhaus",
		},
		Range: RangeConfig{
			EndPolicy: EndOfYear,
		},
		Filter: FilterConfig{
			MinDate:       MinDateThisMonth,
			HiddenSummary: "Busy",
		},
		DayStartHour: 7,
		DayEndHour:   3,
		CacheDir:     "./cache/ics-cache",
		LogLevel:     "info",
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Input == "" {
		c.Input = def.Input
	}
	if c.Output == "" {
		c.Output = def.Output
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.DefaultRoom == "" {
		c.DefaultRoom = def.DefaultRoom
	}
	if c.Venue == "" {
		c.Venue = def.Venue
	}
	if c.Conference.Acronym == "" {
		c.Conference.Acronym = def.Conference.Acronym
	}
	if c.Conference.Title == "" {
		c.Conference.Title = def.Conference.Title
	}
	switch c.Range.EndPolicy {
	case EndOfYear, LastDate:
		// ok
	default:
		c.Range.EndPolicy = EndOfYear
	}
	if c.Filter.HiddenSummary == "" {
		c.Filter.HiddenSummary = def.Filter.HiddenSummary
	}
	if c.DayStartHour <= 0 || c.DayStartHour > 23 {
		c.DayStartHour = def.DayStartHour
	}
	if c.DayEndHour <= 0 || c.DayEndHour > 23 {
		c.DayEndHour = def.DayEndHour
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: invalid timezone %q: %w", c.Timezone, err)
	}
	if c.Range.Until != "" {
		if _, err := model.ParseDate(c.Range.Until); err != nil {
			return fmt.Errorf("config: invalid range.until %q: %w", c.Range.Until, err)
		}
	}
	if c.Filter.MinDate != "" && c.Filter.MinDate != MinDateThisMonth {
		if _, err := model.ParseDate(c.Filter.MinDate); err != nil {
			return fmt.Errorf("config: invalid filter.min_date %q: %w", c.Filter.MinDate, err)
		}
	}
	return nil
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// MinDate resolves filter.min_date relative to now. ok is false when the
// filter is disabled.
func (c *Config) MinDate(now time.Time, loc *time.Location) (model.Date, bool, error) {
	switch c.Filter.MinDate {
	case "":
		return model.Date{}, false, nil
	case MinDateThisMonth:
		n := model.DateOf(now, loc)
		return model.Date{Year: n.Year, Month: n.Month, Day: 1}, true, nil
	default:
		d, err := model.ParseDate(c.Filter.MinDate)
		if err != nil {
			return model.Date{}, false, err
		}
		return d, true, nil
	}
}

// Until resolves range.until. ok is false when unset.
func (c *Config) Until() (model.Date, bool) {
	if c.Range.Until == "" {
		return model.Date{}, false
	}
	d, err := model.ParseDate(c.Range.Until)
	if err != nil {
		return model.Date{}, false
	}
	return d, true
}

// envOverrides maps environment variables to the fields they replace.
var envOverrides = []struct {
	name  string
	field func(*Config) *string
}{
	{"FRABCAL_INPUT", func(c *Config) *string { return &c.Input }},
	{"FRABCAL_OUTPUT", func(c *Config) *string { return &c.Output }},
	{"FRABCAL_TIMEZONE", func(c *Config) *string { return &c.Timezone }},
	{"FRABCAL_DEFAULT_ROOM", func(c *Config) *string { return &c.DefaultRoom }},
	{"FRABCAL_MIN_DATE", func(c *Config) *string { return &c.Filter.MinDate }},
	{"FRABCAL_HIDDEN_SUMMARY", func(c *Config) *string { return &c.Filter.HiddenSummary }},
	{"FRABCAL_LOG_LEVEL", func(c *Config) *string { return &c.LogLevel }},
	{"FRABCAL_LISTEN", func(c *Config) *string { return &c.Listen }},
}

// ApplyEnv overlays FRABCAL_* environment variables onto c. A variable that
// is set but empty clears the field (useful for FRABCAL_MIN_DATE).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, o := range envOverrides {
		if v, ok := lookup(o.name); ok {
			*o.field(c) = strings.TrimSpace(v)
		}
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//
// Environment overrides are applied after the file is read; the result is
// validated before it is returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	cfg, err := loadFile(path)
	if err != nil {
		return cfg, err
	}

	cfg.ApplyEnv(nil)
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	// Unset keys keep their defaults; an explicit empty min_date disables
	// the filter.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".frabcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
