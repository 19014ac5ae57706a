// Package config loads the server configuration from YAML.
package config

import (
	_ "embed"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/zond/juicevox"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaSource string

var schema = jsonschema.MustCompileString("config.schema.json", schemaSource)

var (
	ErrInvalid = errors.New("invalid configuration")
)

type Log struct {
	// File is rotated by size. Empty means stderr only.
	File       string `yaml:"file"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

func (l Log) SlogLevel() slog.Level {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(strings.ToUpper(l.Level))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Spawn describes an object created at startup when no objects are stored.
type Spawn struct {
	Type   string     `yaml:"type"`
	Script string     `yaml:"script"`
	Pos    [3]float64 `yaml:"pos"`
	Data   string     `yaml:"data"`
}

type Config struct {
	DataDir             string  `yaml:"data_dir"`
	ScriptsDir          string  `yaml:"scripts_dir"`
	HTTPAddr            string  `yaml:"http_addr"`
	SSHAddr             string  `yaml:"ssh_addr"`
	ConsolePasswordHash string  `yaml:"console_password_hash"`
	TickRateHz          float64 `yaml:"tick_rate_hz"`

	// ActiveObjectRadius is in nodes.
	ActiveObjectRadius float64       `yaml:"active_object_radius"`
	ScriptCacheTTL     time.Duration `yaml:"script_cache_ttl"`
	SaveInterval       time.Duration `yaml:"save_interval"`
	Log                Log           `yaml:"log"`
	Spawn              []Spawn       `yaml:"spawn"`
}

// TickInterval returns the time between two ticks.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.TickRateHz)
}

func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.ScriptsDir == "" {
		c.ScriptsDir = "scripts"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":30000"
	}
	if c.SSHAddr == "" {
		c.SSHAddr = ":15000"
	}
	if c.TickRateHz == 0 {
		c.TickRateHz = 10
	}
	if c.ActiveObjectRadius == 0 {
		c.ActiveObjectRadius = 32
	}
	if c.ScriptCacheTTL == 0 {
		c.ScriptCacheTTL = time.Minute
	}
	if c.SaveInterval == 0 {
		c.SaveInterval = time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}
}

// Load reads the file at path. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, juicevox.WithStack(err)
	}
	c, err := Parse(b)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return c, nil
}

// Parse validates b against the configuration schema and decodes it.
func Parse(b []byte) (*Config, error) {
	var doc any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, errors.Wrap(ErrInvalid, err.Error())
	}
	if doc == nil {
		doc = map[string]any{}
	}
	// The schema validator wants JSON types, so YAML ints etc. go through JSON first.
	js, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(ErrInvalid, err.Error())
	}
	var normalized any
	if err := json.Unmarshal(js, &normalized); err != nil {
		return nil, juicevox.WithStack(err)
	}
	if err := schema.Validate(normalized); err != nil {
		return nil, errors.Wrap(ErrInvalid, err.Error())
	}
	c := &Config{}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, errors.Wrap(ErrInvalid, err.Error())
	}
	c.applyDefaults()
	return c, nil
}
