// Package config holds the runtime configuration for NeuroPose.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Reference tuning for pose classification and session state.
const (
	DefaultAddr              = ":8080"
	DefaultFPS               = 30
	DefaultMovementThreshold = 10.0
	DefaultExtensionMargin   = 100.0
	DefaultHistorySize       = 20
	DefaultIdleThreshold     = 10 * time.Second
	DefaultIdleCheckInterval = time.Second
	DefaultModelTimeout      = 2 * time.Second
	DefaultAlertTimeout      = 5 * time.Second
	DefaultEstimator         = "movenet"
	DefaultModelPath         = "models/movenet_singlepose_lightning.onnx"
)

// Config is the full set of options for a NeuroPose process.
type Config struct {
	Addr      string
	StaticDir string
	DBPath    string
	LogLevel  string
	Tray      bool

	CameraID     int
	FPS          int
	Estimator    string
	ModelPath    string
	ScriptPath   string
	ModelTimeout time.Duration
	MinScore     float64
	WarmupFrames int

	MovementThreshold float64
	ExtensionMargin   float64
	HistorySize       int
	IdleThreshold     time.Duration
	IdleCheckInterval time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AlertCommand string
	AlertDir     string
	AlertTimeout time.Duration
}

// Default returns a Config with the reference behavior values.
func Default() Config {
	return Config{
		Addr:              DefaultAddr,
		DBPath:            homePath("neuropose.db"),
		AlertDir:          homePath("alerts"),
		LogLevel:          "info",
		CameraID:          0,
		FPS:               DefaultFPS,
		Estimator:         DefaultEstimator,
		ModelPath:         DefaultModelPath,
		ModelTimeout:      DefaultModelTimeout,
		MovementThreshold: DefaultMovementThreshold,
		ExtensionMargin:   DefaultExtensionMargin,
		HistorySize:       DefaultHistorySize,
		IdleThreshold:     DefaultIdleThreshold,
		IdleCheckInterval: DefaultIdleCheckInterval,
		AlertTimeout:      DefaultAlertTimeout,
	}
}

// Load returns Default() overridden by environment variables.
func Load() (Config, error) {
	cfg := Default()

	cfg.Addr = getEnv("NEUROPOSE_ADDR", cfg.Addr)
	cfg.StaticDir = getEnv("NEUROPOSE_WEB", cfg.StaticDir)
	cfg.DBPath = getEnv("NEUROPOSE_DB", cfg.DBPath)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.Estimator = getEnv("NEUROPOSE_ESTIMATOR", cfg.Estimator)
	cfg.ModelPath = getEnv("NEUROPOSE_MODEL", cfg.ModelPath)
	cfg.ScriptPath = getEnv("NEUROPOSE_SCRIPT", cfg.ScriptPath)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.AlertCommand = getEnv("ALERT_COMMAND", cfg.AlertCommand)
	cfg.AlertDir = getEnv("NEUROPOSE_ALERTS", cfg.AlertDir)

	var err error
	if cfg.CameraID, err = getEnvInt("NEUROPOSE_CAMERA", cfg.CameraID); err != nil {
		return cfg, err
	}
	if cfg.FPS, err = getEnvInt("NEUROPOSE_FPS", cfg.FPS); err != nil {
		return cfg, err
	}
	if cfg.WarmupFrames, err = getEnvInt("NEUROPOSE_WARMUP", cfg.WarmupFrames); err != nil {
		return cfg, err
	}
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", cfg.RedisDB); err != nil {
		return cfg, err
	}
	if cfg.MinScore, err = getEnvFloat("NEUROPOSE_MIN_SCORE", cfg.MinScore); err != nil {
		return cfg, err
	}
	if cfg.ModelTimeout, err = getEnvDuration("NEUROPOSE_MODEL_TIMEOUT", cfg.ModelTimeout); err != nil {
		return cfg, err
	}
	if cfg.AlertTimeout, err = getEnvDuration("ALERT_TIMEOUT", cfg.AlertTimeout); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// Validate reports the first option that cannot drive a session.
func (c Config) Validate() error {
	switch {
	case c.FPS <= 0:
		return errors.New("fps must be positive")
	case c.HistorySize <= 0:
		return errors.New("history size must be positive")
	case c.MovementThreshold <= 0:
		return errors.New("movement threshold must be positive")
	case c.ExtensionMargin < 0:
		return errors.New("extension margin must not be negative")
	case c.IdleThreshold <= 0:
		return errors.New("idle threshold must be positive")
	case c.IdleCheckInterval <= 0:
		return errors.New("idle check interval must be positive")
	case c.ModelTimeout < 0:
		return errors.New("model timeout must not be negative")
	case c.MinScore < 0 || c.MinScore > 1:
		return errors.New("min score must be between 0 and 1")
	case c.WarmupFrames < 0:
		return errors.New("warmup frames must not be negative")
	case c.AlertTimeout <= 0:
		return errors.New("alert timeout must be positive")
	}
	return nil
}

// homePath places name under ~/.neuropose, or the working directory when the
// home directory is unknown.
func homePath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".neuropose", name)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
