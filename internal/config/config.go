// Package config loads server configuration from environment variables,
// separate from the process-level command line flags handled in cmd/.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/VertebrateResequencing/beanstalkd/internal/logger"
)

// Config holds all tunables for the server that aren't part of the
// -d/-h process flag contract.
type Config struct {
	// Addr is the TCP address to listen on, e.g. ":11300".
	Addr string
	// HeapSize is the shared capacity of the ready and delay priority queues.
	HeapSize int
	// LogPath is the rotating log file path; empty means console-only.
	LogPath string
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// StatsHeartbeat is the cron schedule on which a stats snapshot is
	// logged, e.g. "@every 30s". Empty disables the heartbeat.
	StatsHeartbeat string
}

// Default matches the historical beanstalkd defaults: port 11300, a 16 Mi
// entry heap.
func Default() *Config {
	return &Config{
		Addr:           ":11300",
		HeapSize:       16 * 1024 * 1024,
		LogPath:        "",
		LogLevel:       "info",
		StatsHeartbeat: "@every 30s",
	}
}

// Load builds a Config from environment variables, falling back to Default
// for anything unset, and validates the result.
func Load() (*Config, error) {
	cfg := Default()

	if v := os.Getenv("BEANSTALKD_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("BEANSTALKD_HEAP_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("BEANSTALKD_HEAP_SIZE: %w", err)
		}
		cfg.HeapSize = n
	}
	if v := os.Getenv("BEANSTALKD_LOG_PATH"); v != "" {
		cfg.LogPath = v
	}
	if v := os.Getenv("BEANSTALKD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("BEANSTALKD_STATS_HEARTBEAT"); v != "" {
		cfg.StatsHeartbeat = v
	}

	if cfg.HeapSize <= 0 {
		return nil, fmt.Errorf("heap size must be positive, got %d", cfg.HeapSize)
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("addr cannot be empty")
	}

	return cfg, nil
}

// LoggerConfig translates this Config into a logger.Config.
func (c *Config) LoggerConfig() *logger.Config {
	lc := logger.DefaultConfig()
	lc.Level = c.LogLevel
	if c.LogPath != "" {
		lc.File.Enabled = true
		lc.File.Path = c.LogPath
	}
	return lc
}
