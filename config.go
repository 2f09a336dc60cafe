// Package main - config.go
//
// Typed configuration for the bot, loaded from a YAML file through viper.
//
// Configuration Groups:
//   - adb: device target and command timeout
//   - matching: confidence threshold and ambiguity epsilon
//   - automation: poll/cycle delays, retry ceilings, scroll limits
//   - paths: template library, state store, reset sentinel, log file
//   - expansions: on-screen ordering of selectable expansions
//
// All tunables that depend on the visual assets (thresholds, epsilons, retry
// ceilings) live here rather than in code; the defaults below are starting
// points, not structural constants.
package main

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ADBSettings configures the device transport
type ADBSettings struct {
	// Path to the adb executable
	Path string `mapstructure:"path"`
	// Device serial or host:port target (e.g. "127.0.0.1:5555")
	Serial string `mapstructure:"serial"`
	// Ceiling for any single adb invocation
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

// MatchingSettings configures template matching and classification
type MatchingSettings struct {
	// Minimum confidence for a match, in [0,1]
	Threshold float64 `mapstructure:"threshold"`
	// Two tags scoring within this of each other classify as Unknown
	AmbiguityEpsilon float64 `mapstructure:"ambiguity_epsilon"`
}

// AutomationSettings configures the poll loop and retry policy
type AutomationSettings struct {
	// Delay between poll iterations
	PollDelay time.Duration `mapstructure:"poll_delay"`
	// Delay after an input lands, letting the screen settle
	TapDelay time.Duration `mapstructure:"tap_delay"`
	// Consecutive Unknown classifications before the recovery action fires
	MaxUnknownPolls int `mapstructure:"max_unknown_polls"`
	// Bounded retry ceiling for device operations
	MaxDeviceRetries int `mapstructure:"max_device_retries"`
	// Base backoff between device retries (doubles per attempt)
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	// Scroll-down attempts while hunting a template in a list
	MaxScrolls int `mapstructure:"max_scrolls"`
	// Attempts to locate a single expansion before skipping it
	MaxAttemptsPerExpansion int `mapstructure:"max_attempts_per_expansion"`
	// Idle backoff when every expansion is completed
	IdleDelay time.Duration `mapstructure:"idle_delay"`
}

// PathSettings configures file locations
type PathSettings struct {
	Templates string `mapstructure:"templates"`
	State     string `mapstructure:"state"`
	ResetFlag string `mapstructure:"reset_flag"`
	Log       string `mapstructure:"log"`
}

// ExpansionSettings configures expansion selection
type ExpansionSettings struct {
	// Order mirrors the on-screen listing; selection prefers the first
	// not-yet-completed entry.
	Order []string `mapstructure:"order"`
}

// Settings is the root configuration container
type Settings struct {
	ADB        ADBSettings        `mapstructure:"adb"`
	Matching   MatchingSettings   `mapstructure:"matching"`
	Automation AutomationSettings `mapstructure:"automation"`
	Paths      PathSettings       `mapstructure:"paths"`
	Expansions ExpansionSettings  `mapstructure:"expansions"`
	Debug      bool               `mapstructure:"debug"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("adb.path", "adb")
	v.SetDefault("adb.serial", "127.0.0.1:5555")
	v.SetDefault("adb.command_timeout", "10s")

	v.SetDefault("matching.threshold", 0.75)
	v.SetDefault("matching.ambiguity_epsilon", 0.05)

	v.SetDefault("automation.poll_delay", "1s")
	v.SetDefault("automation.tap_delay", "1s")
	v.SetDefault("automation.max_unknown_polls", 8)
	v.SetDefault("automation.max_device_retries", 3)
	v.SetDefault("automation.retry_backoff", "500ms")
	v.SetDefault("automation.max_scrolls", 8)
	v.SetDefault("automation.max_attempts_per_expansion", 3)
	v.SetDefault("automation.idle_delay", "30s")

	v.SetDefault("paths.templates", "templates")
	v.SetDefault("paths.state", "completed_expansions.json")
	v.SetDefault("paths.reset_flag", "reset_expansions.flag")
	v.SetDefault("paths.log", "battle-bot.log")

	v.SetDefault("expansions.order", []string{
		"GA", "MI", "STS", "TL", "SR", "CG", "EC", "EG", "WSS", "SS", "DPex", "CB", "MR",
	})

	v.SetDefault("debug", false)
}

// LoadSettings reads the config file at path (optional - defaults apply when
// empty or missing) and returns validated settings. Environment variables
// prefixed with BATTLEBOT_ override file values.
func LoadSettings(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BATTLEBOT")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		// Missing default config is fine, defaults apply
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks settings for values that would misbehave at runtime
func (s *Settings) Validate() error {
	if s.Matching.Threshold <= 0 || s.Matching.Threshold > 1 {
		return fmt.Errorf("matching.threshold must be in (0,1], got %v", s.Matching.Threshold)
	}
	if s.Matching.AmbiguityEpsilon < 0 || s.Matching.AmbiguityEpsilon >= 1 {
		return fmt.Errorf("matching.ambiguity_epsilon must be in [0,1), got %v", s.Matching.AmbiguityEpsilon)
	}
	if s.Automation.MaxUnknownPolls <= 0 {
		return fmt.Errorf("automation.max_unknown_polls must be positive, got %d", s.Automation.MaxUnknownPolls)
	}
	if s.Automation.MaxDeviceRetries <= 0 {
		return fmt.Errorf("automation.max_device_retries must be positive, got %d", s.Automation.MaxDeviceRetries)
	}
	if s.ADB.CommandTimeout <= 0 {
		return fmt.Errorf("adb.command_timeout must be positive, got %v", s.ADB.CommandTimeout)
	}
	if len(s.Expansions.Order) == 0 {
		return fmt.Errorf("expansions.order must list at least one expansion")
	}
	seen := make(map[string]bool, len(s.Expansions.Order))
	for _, id := range s.Expansions.Order {
		if id == "" {
			return fmt.Errorf("expansions.order contains an empty id")
		}
		if seen[id] {
			return fmt.Errorf("expansions.order lists %q twice", id)
		}
		seen[id] = true
	}
	return nil
}
