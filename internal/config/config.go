// Package config provides runtime configuration values for the service.
//
// Values come from built-in defaults, then an optional YAML file named by
// CONFIG_FILE, then environment variables. Later sources win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
)

// Config holds configuration knobs for the HTTP server, store and writer.
type Config struct {
	HTTPAddr           string
	ShutdownTimeout    time.Duration
	StoreBackend       string
	StorePath          string
	StoreWatch         bool
	AssignIDs          bool
	Predictor          string
	PredictorSeed      uint64
	QueueBuffer        int
	QueueHighWatermark int
	CORSAllowedOrigins []string
	LogLevel           string
}

// fileConfig mirrors Config in the YAML file. Pointers distinguish unset keys.
type fileConfig struct {
	HTTPAddr           *string `yaml:"http_addr"`
	ShutdownTimeoutSec *int    `yaml:"shutdown_timeout_sec"`
	LogLevel           *string `yaml:"log_level"`
	Store              struct {
		Backend   *string `yaml:"backend"`
		Path      *string `yaml:"path"`
		Watch     *bool   `yaml:"watch"`
		AssignIDs *bool   `yaml:"assign_ids"`
	} `yaml:"store"`
	Predictor struct {
		Kind *string `yaml:"kind"`
		Seed *uint64 `yaml:"seed"`
	} `yaml:"predictor"`
	Queue struct {
		Buffer        *int `yaml:"buffer"`
		HighWatermark *int `yaml:"high_watermark"`
	} `yaml:"queue"`
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		HTTPAddr:           ":5000",
		ShutdownTimeout:    15 * time.Second,
		StoreBackend:       BackendFile,
		StorePath:          "../server/data/restockRequests.json",
		StoreWatch:         true,
		Predictor:          "random",
		QueueBuffer:        64,
		QueueHighWatermark: 1000,
		CORSAllowedOrigins: []string{"*"},
		LogLevel:           "info",
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func uintenv(key string, def uint64) uint64 {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func boolenv(key string, def bool) bool {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func durenvs(key string, def time.Duration) time.Duration {
	sec := atoienv(key, -1)
	if sec < 0 {
		return def
	}
	return time.Duration(sec) * time.Second
}

func listenv(key string, def []string) []string {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// Load collects configuration from defaults, CONFIG_FILE and environment.
func Load() (Config, error) {
	c := Defaults()
	if path := getenv("CONFIG_FILE", ""); path != "" {
		if err := c.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	setIf(&c.HTTPAddr, fc.HTTPAddr)
	setIf(&c.LogLevel, fc.LogLevel)
	if fc.ShutdownTimeoutSec != nil {
		c.ShutdownTimeout = time.Duration(*fc.ShutdownTimeoutSec) * time.Second
	}
	setIf(&c.StoreBackend, fc.Store.Backend)
	setIf(&c.StorePath, fc.Store.Path)
	setIf(&c.StoreWatch, fc.Store.Watch)
	setIf(&c.AssignIDs, fc.Store.AssignIDs)
	setIf(&c.Predictor, fc.Predictor.Kind)
	setIf(&c.PredictorSeed, fc.Predictor.Seed)
	setIf(&c.QueueBuffer, fc.Queue.Buffer)
	setIf(&c.QueueHighWatermark, fc.Queue.HighWatermark)
	if len(fc.CORS.AllowedOrigins) > 0 {
		c.CORSAllowedOrigins = fc.CORS.AllowedOrigins
	}
	return nil
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func (c *Config) applyEnv() {
	c.HTTPAddr = getenv("HTTP_ADDR", c.HTTPAddr)
	c.ShutdownTimeout = durenvs("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.StoreBackend = getenv("RESTOCK_STORE_BACKEND", c.StoreBackend)
	c.StorePath = getenv("RESTOCK_STORE_PATH", c.StorePath)
	c.StoreWatch = boolenv("RESTOCK_STORE_WATCH", c.StoreWatch)
	c.AssignIDs = boolenv("RESTOCK_ASSIGN_IDS", c.AssignIDs)
	c.Predictor = getenv("PREDICTOR", c.Predictor)
	c.PredictorSeed = uintenv("PREDICTOR_SEED", c.PredictorSeed)
	c.QueueBuffer = atoienv("QUEUE_BUFFER", c.QueueBuffer)
	c.QueueHighWatermark = atoienv("QUEUE_HIGH_WATERMARK", c.QueueHighWatermark)
	c.CORSAllowedOrigins = listenv("CORS_ALLOWED_ORIGINS", c.CORSAllowedOrigins)
	c.LogLevel = getenv("LOG_LEVEL", c.LogLevel)
}

// Validate rejects values the service cannot start with.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendFile, BackendMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
	if c.StoreBackend == BackendFile && c.StorePath == "" {
		return fmt.Errorf("store path is required for the %s backend", BackendFile)
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("http addr is required")
	}
	if c.QueueBuffer <= 0 {
		return fmt.Errorf("queue buffer must be positive, got %d", c.QueueBuffer)
	}
	return nil
}
