// Package config loads presenced configuration from a YAML or TOML file and
// PRESENCE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/presenced/internal/activity"
	"github.com/sweeney/presenced/internal/presence"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "PRESENCE_"

// Config holds all configuration for presenced.
type Config struct {
	// Subject names the tracked subject; it is part of every MQTT topic.
	Subject string `yaml:"subject" toml:"subject" env:"SUBJECT"`

	// StartDelayed defers entering the initial state until the first
	// activity event instead of entering it at startup.
	StartDelayed bool `yaml:"start_delayed" toml:"start_delayed" env:"START_DELAYED"`

	// Monitor lists the activity types to classify ("KEYBOARD MOUSE").
	// Empty monitors all types.
	Monitor string `yaml:"monitor" toml:"monitor" env:"MONITOR"`

	States StateList `yaml:"states" toml:"states"`

	Poll      time.Duration `yaml:"poll" toml:"poll" env:"POLL"`
	Heartbeat time.Duration `yaml:"heartbeat" toml:"heartbeat" env:"HEARTBEAT"`
	HTTPAddr  string        `yaml:"http" toml:"http" env:"HTTP"`

	MQTT MQTTConfig `yaml:"mqtt" toml:"mqtt" envPrefix:"MQTT_"`
	GPIO GPIOConfig `yaml:"gpio" toml:"gpio" envPrefix:"GPIO_"`
}

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	// Broker is the broker URL; empty disables MQTT.
	Broker      string `yaml:"broker" toml:"broker" env:"BROKER"`
	ClientID    string `yaml:"client_id" toml:"client_id" env:"CLIENT_ID"`
	TopicPrefix string `yaml:"topic_prefix" toml:"topic_prefix" env:"TOPIC_PREFIX"`
	// BufferSize is the number of messages kept while disconnected.
	BufferSize int `yaml:"buffer_size" toml:"buffer_size" env:"BUFFER_SIZE"`
	// SubscribeActivity accepts raw activity events on <prefix>/<subject>/activity.
	SubscribeActivity bool `yaml:"subscribe_activity" toml:"subscribe_activity" env:"SUBSCRIBE_ACTIVITY"`
}

// GPIOConfig configures hardware activity sensors.
type GPIOConfig struct {
	Chip     string        `yaml:"chip" toml:"chip" env:"CHIP"`
	Debounce time.Duration `yaml:"debounce" toml:"debounce" env:"DEBOUNCE"`
	Lines    []LineConfig  `yaml:"lines" toml:"lines"`
}

// LineConfig maps one GPIO line to the raw event it reports when it goes
// active, e.g. a capacitive pad reporting "touchstart".
type LineConfig struct {
	Name      string `yaml:"name" toml:"name"`
	Pin       int    `yaml:"pin" toml:"pin"`
	Event     string `yaml:"event" toml:"event"`
	ActiveLow bool   `yaml:"active_low" toml:"active_low"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Subject: "default",
		States: StateList{
			{Name: "ACTIVE", Text: "I know you're there!"},
			{Name: "IDLE", Enter: Threshold(time.Minute), Text: "Are you there?"},
			{Name: "AWAY", Enter: Threshold(10 * time.Minute), Text: "You're gone."},
		},
		Poll:      100 * time.Millisecond,
		Heartbeat: 15 * time.Minute,
		HTTPAddr:  ":8080",
		MQTT: MQTTConfig{
			ClientID:    "presenced",
			TopicPrefix: "presence",
			BufferSize:  100,
		},
		GPIO: GPIOConfig{
			Chip:     "gpiochip0",
			Debounce: 50 * time.Millisecond,
		},
	}
}

// Load builds the configuration: defaults, then the file at path (or the
// default location if path is empty), then the environment. The result is
// validated.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		err := LoadFile(cfg, path)
		if err != nil && (explicit || !errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := LoadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultPath returns the config file used when none is given.
func DefaultPath() string {
	if path := os.Getenv(EnvPrefix + "CONFIG"); path != "" {
		return path
	}
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "presenced", "config.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "presenced", "config.yaml")
	}
	return ""
}

// LoadFile merges the YAML (.yaml, .yml) or TOML (.toml) file at path into cfg.
// A file without states keeps the states already in cfg.
func LoadFile(cfg *Config, path string) error {
	// #nosec G304 - path comes from a flag, the environment or a standard location
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	states, lines := cfg.States, cfg.GPIO.Lines
	cfg.States, cfg.GPIO.Lines = nil, nil

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			log.Printf("config: ignoring unknown keys in %s: %v", path, undecoded)
		}
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}

	if len(cfg.States) == 0 {
		cfg.States = states
	}
	if len(cfg.GPIO.Lines) == 0 {
		cfg.GPIO.Lines = lines
	}
	return nil
}

// LoadEnv overrides cfg with PRESENCE_* environment variables.
func LoadEnv(cfg *Config) error {
	return env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix})
}

// Validate checks the configuration, including that the states can be ordered.
func (c *Config) Validate() error {
	if c.Subject == "" {
		return fmt.Errorf("subject is required")
	}
	if strings.ContainsAny(c.Subject, "/+#") {
		return fmt.Errorf("subject %q must not contain '/', '+' or '#'", c.Subject)
	}
	if _, err := c.ActivityTypes(); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	if _, err := c.Definitions(); err != nil {
		return err
	}
	if c.Poll <= 0 {
		return fmt.Errorf("poll must be positive")
	}
	if c.Heartbeat < 0 {
		return fmt.Errorf("heartbeat must be non-negative")
	}
	if c.MQTT.BufferSize < 0 {
		return fmt.Errorf("mqtt.buffer_size must be non-negative")
	}
	if c.MQTT.Broker != "" && c.MQTT.TopicPrefix == "" {
		return fmt.Errorf("mqtt.topic_prefix is required when a broker is set")
	}
	if c.GPIO.Debounce < 0 {
		return fmt.Errorf("gpio.debounce must be non-negative")
	}
	return c.validateLines()
}

func (c *Config) validateLines() error {
	probe := activity.NewClassifier(nil)
	pins := make(map[int]bool, len(c.GPIO.Lines))
	for i, l := range c.GPIO.Lines {
		if l.Pin < 0 {
			return fmt.Errorf("gpio.lines[%d]: pin must be non-negative", i)
		}
		if pins[l.Pin] {
			return fmt.Errorf("gpio.lines[%d]: pin %d used twice", i, l.Pin)
		}
		pins[l.Pin] = true
		if strings.EqualFold(l.Event, "mousemove") {
			return fmt.Errorf("gpio.lines[%d]: mousemove needs a movement and cannot come from a GPIO line", i)
		}
		if _, err := probe.Classify(activity.RawEvent{Type: l.Event}); err != nil {
			return fmt.Errorf("gpio.lines[%d]: %w", i, err)
		}
	}
	return nil
}

// ActivityTypes returns the monitored activity types; empty means all.
func (c *Config) ActivityTypes() ([]activity.Type, error) {
	return activity.ParseList(c.Monitor)
}

// Definitions returns the validated engine definitions.
func (c *Config) Definitions() ([]presence.Definition, error) {
	defs, err := c.States.Definitions()
	if err != nil {
		return nil, fmt.Errorf("states: %w", err)
	}
	if _, _, err := presence.Normalize(defs); err != nil {
		return nil, fmt.Errorf("states: %w", err)
	}
	return defs, nil
}
