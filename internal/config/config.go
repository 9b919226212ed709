package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envConfigPath     = "SLOTWATCH_CONFIG"
	DefaultConfigPath = "slotwatch.yaml"
)

const (
	DefaultGame               = "IW5"
	DefaultClientTitlePattern = `^Plutonium r\d{4}`
	DefaultGameTitle          = "Plutonium IW5: Multiplayer"
	DefaultTerminalClass      = "Static"
	DefaultTerminalPrefix     = "----------------------"
	DefaultSoundFile          = `C:\Windows\Media\Ring08.wav`
)

var DefaultEndpoints = []string{
	"https://hgmserve.rs/api/server",
	"https://cod.gilletteclan.com/api/server",
}

type Config struct {
	Directory     DirectoryConfig     `yaml:"directory"`
	Monitor       MonitorConfig       `yaml:"monitor"`
	Console       ConsoleConfig       `yaml:"console"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type DirectoryConfig struct {
	Endpoints []string      `yaml:"endpoints"`
	Game      string        `yaml:"game"`
	Timeout   time.Duration `yaml:"timeout"`
	// RateLimit is the minimum spacing between two directory requests.
	RateLimit time.Duration `yaml:"rate_limit"`
}

type MonitorConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	CheckInterval time.Duration `yaml:"check_interval"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	CancelKey     string        `yaml:"cancel_key"`
}

type ConsoleConfig struct {
	ClientTitlePattern string `yaml:"client_title_pattern"`
	GameTitle          string `yaml:"game_title"`
	TerminalClass      string `yaml:"terminal_class"`
	TerminalPrefix     string `yaml:"terminal_prefix"`
	SoundFile          string `yaml:"sound_file"`
}

type ObservabilityConfig struct {
	MetricsAddr string `yaml:"metrics_addr"`
	LogFile     string `yaml:"log_file"`
}

// Default returns the built-in configuration used when no file is present.
func Default() Config {
	return Config{
		Directory: DirectoryConfig{
			Endpoints: append([]string(nil), DefaultEndpoints...),
			Game:      DefaultGame,
			Timeout:   10 * time.Second,
			RateLimit: 250 * time.Millisecond,
		},
		Monitor: MonitorConfig{
			PollInterval:  time.Second,
			CheckInterval: time.Second,
			RetryDelay:    time.Second,
			CancelKey:     "r",
		},
		Console: ConsoleConfig{
			ClientTitlePattern: DefaultClientTitlePattern,
			GameTitle:          DefaultGameTitle,
			TerminalClass:      DefaultTerminalClass,
			TerminalPrefix:     DefaultTerminalPrefix,
			SoundFile:          DefaultSoundFile,
		},
	}
}

func Load(ctx context.Context, path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv loads $SLOTWATCH_CONFIG, or the default path. Only a missing
// default file falls back to built-in defaults.
func LoadFromEnv(ctx context.Context) (Config, error) {
	path := os.Getenv(envConfigPath)
	if path != "" {
		return Load(ctx, path)
	}
	return LoadOrDefault(ctx, DefaultConfigPath)
}

// ResolvePath returns explicit when set, else $SLOTWATCH_CONFIG, else the
// default path.
func ResolvePath(explicit string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	if p := os.Getenv(envConfigPath); p != "" {
		return p
	}
	return DefaultConfigPath
}

// LoadOrDefault behaves like Load but returns Default when path does not exist.
func LoadOrDefault(ctx context.Context, path string) (Config, error) {
	cfg, err := Load(ctx, path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

func (c *Config) applyDefaults() {
	def := Default()
	if len(c.Directory.Endpoints) == 0 {
		c.Directory.Endpoints = def.Directory.Endpoints
	}
	if strings.TrimSpace(c.Directory.Game) == "" {
		c.Directory.Game = def.Directory.Game
	}
	if c.Directory.Timeout <= 0 {
		c.Directory.Timeout = def.Directory.Timeout
	}
	if c.Directory.RateLimit < 0 {
		c.Directory.RateLimit = 0
	}
	if c.Monitor.PollInterval <= 0 {
		c.Monitor.PollInterval = def.Monitor.PollInterval
	}
	if c.Monitor.CheckInterval <= 0 {
		c.Monitor.CheckInterval = def.Monitor.CheckInterval
	}
	if c.Monitor.RetryDelay <= 0 {
		c.Monitor.RetryDelay = c.Monitor.PollInterval
	}
	if strings.TrimSpace(c.Monitor.CancelKey) == "" {
		c.Monitor.CancelKey = def.Monitor.CancelKey
	}
	if c.Console.ClientTitlePattern == "" {
		c.Console.ClientTitlePattern = def.Console.ClientTitlePattern
	}
	if c.Console.GameTitle == "" {
		c.Console.GameTitle = def.Console.GameTitle
	}
	if c.Console.TerminalClass == "" {
		c.Console.TerminalClass = def.Console.TerminalClass
	}
	if c.Console.TerminalPrefix == "" {
		c.Console.TerminalPrefix = def.Console.TerminalPrefix
	}
}

func (c Config) Validate() error {
	for _, endpoint := range c.Directory.Endpoints {
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			return fmt.Errorf("directory endpoint %q must be an http(s) URL", endpoint)
		}
	}
	if _, err := regexp.Compile(c.Console.ClientTitlePattern); err != nil {
		return fmt.Errorf("client_title_pattern: %w", err)
	}
	return nil
}
