package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"trivia-session-service/internal/domain"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Operator struct {
		Token string `yaml:"token"`
	} `yaml:"operator"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Game GameDefaults `yaml:"game"`
}

// GameDefaults is the process-wide scoring/power-up configuration. A game
// snapshots these (plus any operator overrides) at start.
type GameDefaults struct {
	QuestionTimeSec     int                  `yaml:"question_time_sec"`
	SpeedBonuses        []int                `yaml:"speed_bonuses"`
	DefaultSpeedBonus   int                  `yaml:"default_speed_bonus"`
	StreakBonusEnabled  bool                 `yaml:"streak_bonus_enabled"`
	StreakMinimum       int                  `yaml:"streak_minimum"`
	StreakBonusPerLevel int                  `yaml:"streak_bonus_per_level"`
	AutoAdvanceSec      int                  `yaml:"auto_advance_sec"`
	AllowLateJoin       bool                 `yaml:"allow_late_join"`
	MaxParticipants     int                  `yaml:"max_participants"`
	Jokers              domain.JokerSettings `yaml:"jokers"`
}

// Settings converts the defaults into a game settings snapshot.
func (g GameDefaults) Settings() domain.GameSettings {
	return domain.GameSettings{
		SpeedBonuses:        g.SpeedBonuses,
		DefaultSpeedBonus:   g.DefaultSpeedBonus,
		StreakBonusEnabled:  g.StreakBonusEnabled,
		StreakMinimum:       g.StreakMinimum,
		StreakBonusPerLevel: g.StreakBonusPerLevel,
		AutoAdvanceSec:      g.AutoAdvanceSec,
		AllowLateJoin:       g.AllowLateJoin,
		MaxParticipants:     g.MaxParticipants,
		Jokers:              g.Jokers,
	}
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
