package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// TeacherConfig describes one canonical teacher label sent to the backend.
type TeacherConfig struct {
	// Label is the exact value the spreadsheet expects (e.g. "ครูโทน").
	Label string `yaml:"label" json:"label"`
	// Match lists substrings that identify this teacher in free text.
	// The label itself always matches.
	Match []string `yaml:"match,omitempty" json:"match,omitempty"`
}

// SnapshotConfig controls the headless PNG capture of the week page.
type SnapshotConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	Width   int  `yaml:"width" json:"width"`
	Height  int  `yaml:"height" json:"height"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the local Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// APIURL is the deployed spreadsheet web app endpoint.
	APIURL string `yaml:"api_url" json:"api_url"`

	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Environment selects the logger flavour ("production" or "development").
	Environment string `yaml:"environment" json:"environment"`

	// Timezone is the IANA zone whose wall clock the booking dates are in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// StartHour / EndHour bound the hourly slots of the weekly grid (inclusive).
	StartHour int `yaml:"start_hour" json:"start_hour"`
	EndHour   int `yaml:"end_hour" json:"end_hour"`

	// PrefetchBeforeDays / PrefetchAfterDays pad every schedule fetch beyond
	// the requested week so neighbouring weeks are served from cache.
	PrefetchBeforeDays int `yaml:"prefetch_before_days" json:"prefetch_before_days"`
	PrefetchAfterDays  int `yaml:"prefetch_after_days" json:"prefetch_after_days"`

	// RefreshCron is a cron-style schedule for background refreshes.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// Teachers is the closed set of teacher labels; anything unmatched is
	// sent as OthersLabel.
	Teachers    []TeacherConfig `yaml:"teachers" json:"teachers"`
	OthersLabel string          `yaml:"others_label" json:"others_label"`

	// HolidayFeeds are iCalendar URLs of closed days; recurring courses
	// skip them.
	HolidayFeeds []string `yaml:"holiday_feeds,omitempty" json:"holiday_feeds,omitempty"`

	// StateDir holds the local note and the rendered preview.
	StateDir string `yaml:"state_dir" json:"state_dir"`

	Snapshot SnapshotConfig `yaml:"snapshot" json:"snapshot"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

func defaultTeachers() []TeacherConfig {
	return []TeacherConfig{
		{Label: "ครูโทน", Match: []string{"โทน", "tone"}},
		{Label: "ครูแพร", Match: []string{"แพร", "prae"}},
		{Label: "ครูเอ็ม", Match: []string{"เอ็ม"}},
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:             "127.0.0.1:8080",
		Environment:        "development",
		Timezone:           "Asia/Bangkok",
		StartHour:          13,
		EndHour:            20,
		PrefetchBeforeDays: 3,
		PrefetchAfterDays:  28,
		RefreshCron:        "*/10 * * * *",
		Teachers:           defaultTeachers(),
		OthersLabel:        "Others",
		StateDir:           "./var",
		Snapshot: SnapshotConfig{
			Width:  1280,
			Height: 900,
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Timezone == "" {
		c.Timezone = "Asia/Bangkok"
	}
	c.StartHour = clampHour(c.StartHour)
	c.EndHour = clampHour(c.EndHour)
	if c.StartHour == 0 && c.EndHour == 0 {
		c.StartHour, c.EndHour = 13, 20
	}
	if c.EndHour < c.StartHour {
		c.StartHour, c.EndHour = c.EndHour, c.StartHour
	}
	if c.PrefetchBeforeDays < 0 {
		c.PrefetchBeforeDays = 0
	}
	if c.PrefetchAfterDays < 0 {
		c.PrefetchAfterDays = 0
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/10 * * * *"
	}
	if c.Teachers == nil {
		c.Teachers = defaultTeachers()
	}
	if c.OthersLabel == "" {
		c.OthersLabel = "Others"
	}
	if c.StateDir == "" {
		c.StateDir = "./var"
	}
	if c.Snapshot.Width <= 0 {
		c.Snapshot.Width = 1280
	}
	if c.Snapshot.Height <= 0 {
		c.Snapshot.Height = 900
	}
}

func clampHour(h int) int {
	if h < 0 {
		return 0
	}
	if h > 23 {
		return 23
	}
	return h
}

// LoadDotEnv loads variables from a .env file if one exists. A missing file
// is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// ApplyEnv overrides selected fields from TUTORCAL_* environment variables.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv("TUTORCAL_API_URL")); v != "" {
		c.APIURL = v
	}
	if v := strings.TrimSpace(os.Getenv("TUTORCAL_LISTEN")); v != "" {
		c.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv("TUTORCAL_ENV")); v != "" {
		c.Environment = v
	}
	if v := strings.TrimSpace(os.Getenv("TUTORCAL_TIMEZONE")); v != "" {
		c.Timezone = v
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
// Environment overrides are applied last in both cases.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				cfg.ApplyEnv()
				return cfg, err
			}
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	cfg.ApplyEnv()

	return &cfg, nil
}

// Save writes the given configuration to the specified path atomically
// (temp file + rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data)
}

// WriteFileAtomic writes data next to path and renames it into place.
// Parent directories are created with 0700.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tutorcal-*.tmp")
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
