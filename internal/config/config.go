package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"festsched/internal/model"
)

// AdminConfig holds HTTP Basic Auth credentials guarding the admin API.
type AdminConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// FestivalConfig bounds the festival. Recurring program entries are
// expanded only inside [Start, End].
type FestivalConfig struct {
	Name  string `yaml:"name" json:"name"`
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the board and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the reference zone every event window is interpreted in:
	// a fixed offset ("+05:00") or an IANA name.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Refresh is the cron spec for status recompute.
	Refresh string `yaml:"refresh" json:"refresh"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// Admin, if set with both fields non-empty, enables Basic Auth on the
	// admin routes.
	Admin *AdminConfig `yaml:"admin,omitempty" json:"admin,omitempty"`

	Festival FestivalConfig `yaml:"festival" json:"festival"`

	// Program is an optional ICS file path or http(s) URL imported at start-up.
	Program string `yaml:"program,omitempty" json:"program,omitempty"`

	// CacheDir stores conditional-GET metadata for a remote Program.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// Events are seeded into the collection at start-up.
	Events []model.Candidate `yaml:"events" json:"events"`
}

const (
	defaultListen   = "127.0.0.1:8080"
	defaultTimezone = "+05:00"
	defaultRefresh  = "@every 30s"
	defaultLogLevel = "info"
	defaultCacheDir = "./cache"
)

func defaultEvents() []model.Candidate {
	return []model.Candidate{
		{Title: "Косплей-шоу", Description: "Главное косплей-шоу фестиваля", TimeStart: "2026-07-20T12:00", TimeEnd: "2026-07-20T13:00"},
		{Title: "VR-турнир", Description: "Сражение на киберполях", TimeStart: "2026-07-20T14:00", TimeEnd: "2026-07-20T15:00"},
		{Title: "Мастер-класс по робототехнике", Description: "Собери своего робота!", TimeStart: "2026-07-20T16:00", TimeEnd: "2026-07-20T17:00"},
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   defaultListen,
		Timezone: defaultTimezone,
		Refresh:  defaultRefresh,
		LogLevel: defaultLogLevel,
		Festival: FestivalConfig{
			Name:  "Festival",
			Start: "2026-07-20T00:00",
			End:   "2026-07-22T23:59",
		},
		CacheDir: defaultCacheDir,
		Events:   defaultEvents(),
	}
}

// Normalize fills in missing values so partially-filled configs still work.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.Refresh == "" {
		c.Refresh = defaultRefresh
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.Admin != nil && c.Admin.Username == "" && c.Admin.Password == "" {
		c.Admin = nil
	}
	if c.Events == nil {
		c.Events = []model.Candidate{}
	}
}

// AdminEnabled reports whether admin Basic Auth is configured.
func (c *Config) AdminEnabled() bool {
	return c.Admin != nil && c.Admin.Username != "" && c.Admin.Password != ""
}

// ApplyEnv overrides file values from the environment:
// FESTSCHED_LISTEN, FESTSCHED_TIMEZONE, FESTSCHED_ADMIN_USER,
// FESTSCHED_ADMIN_PASSWORD, FESTSCHED_PROGRAM.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("FESTSCHED_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("FESTSCHED_TIMEZONE"); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv("FESTSCHED_PROGRAM"); v != "" {
		c.Program = v
	}
	user, pass := os.Getenv("FESTSCHED_ADMIN_USER"), os.Getenv("FESTSCHED_ADMIN_PASSWORD")
	if user != "" || pass != "" {
		if c.Admin == nil {
			c.Admin = &AdminConfig{}
		}
		if user != "" {
			c.Admin.Username = user
		}
		if pass != "" {
			c.Admin.Password = pass
		}
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is unmarshalled and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms.
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

	tmp, err := os.CreateTemp(dir, ".festsched-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
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

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
