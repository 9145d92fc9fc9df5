// Package config loads DroneHub's runtime configuration from the
// environment. Mutable fields (timeouts that the HTTP API is allowed to
// tune at runtime) are protected by an RWMutex and must be accessed via
// getter/setter methods, since orchestrator and dispatcher goroutines read
// them while HTTP handlers may write them.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds all DroneHub configuration.
type Config struct {
	// Container engine
	DvmPath     string // path to the dvm CLI binary
	DataDir     string // root for bundles/patches/snapshots
	DBPath      string // bbolt database file

	// Logging
	LogJSON bool

	// HTTP API
	ListenAddr string

	// GitHub (C7 PR Controller)
	GitHubToken string

	// Metrics
	MetricsEnabled bool

	// Scheduled registry GC
	OrphanGCSchedule string // cron expression, empty disables the sweep

	// mu protects the mutable runtime fields below, which the HTTP API may
	// expose through a settings endpoint.
	mu               sync.RWMutex
	execTimeout      time.Duration // default timeout for Exec/Ports/Ls-class C1 calls
	seedTimeout      time.Duration // seed/export C2 pipelines
	baseImageTimeout time.Duration // C4 SetBaseImage
	wsWriteTimeout   time.Duration // C6 websocket writes
	snapshotTimeout  time.Duration // C3 registry snapshot flush
	unstickAfter     time.Duration // C5 unstick eligibility window
	prTimeout        time.Duration // C7 GitHub HTTPS calls
}

// NewTestConfig returns a Config with sensible defaults for tests.
func NewTestConfig() *Config {
	return &Config{
		DvmPath:          "dvm",
		DataDir:          os.TempDir(),
		execTimeout:      30 * time.Second,
		seedTimeout:      10 * time.Minute,
		baseImageTimeout: 10 * time.Minute,
		wsWriteTimeout:   2 * time.Minute,
		snapshotTimeout:  15 * time.Second,
		unstickAfter:     2 * time.Minute,
		prTimeout:        30 * time.Second,
	}
}

// Load reads all configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		DvmPath:          envStr("DRONEHUB_DVM_PATH", "dvm"),
		DataDir:          envStr("DRONEHUB_DATA_DIR", "/var/lib/dronehub"),
		DBPath:           envStr("DRONEHUB_DB_PATH", "/var/lib/dronehub/dronehub.db"),
		LogJSON:          envBool("DRONEHUB_LOG_JSON", true),
		ListenAddr:       envStr("DRONEHUB_LISTEN_ADDR", ":8090"),
		GitHubToken:      envStr("DRONEHUB_GITHUB_TOKEN", ""),
		MetricsEnabled:   envBool("DRONEHUB_METRICS", true),
		OrphanGCSchedule: envStr("DRONEHUB_ORPHAN_GC_SCHEDULE", "@every 5m"),
		execTimeout:      envDuration("DRONEHUB_EXEC_TIMEOUT", 30*time.Second),
		seedTimeout:      envDuration("DRONEHUB_SEED_TIMEOUT", 10*time.Minute),
		baseImageTimeout: envDuration("DRONEHUB_BASE_IMAGE_TIMEOUT", 10*time.Minute),
		wsWriteTimeout:   envDuration("DRONEHUB_WS_WRITE_TIMEOUT", 2*time.Minute),
		snapshotTimeout:  envDuration("DRONEHUB_SNAPSHOT_TIMEOUT", 15*time.Second),
		unstickAfter:     envDuration("DRONEHUB_UNSTICK_AFTER", 2*time.Minute),
		prTimeout:        envDuration("DRONEHUB_PR_TIMEOUT", 30*time.Second),
	}
}

// Validate checks configuration for invalid values.
func (c *Config) Validate() error {
	c.mu.RLock()
	et, st, bt, wt, sft, pt := c.execTimeout, c.seedTimeout, c.baseImageTimeout, c.wsWriteTimeout, c.snapshotTimeout, c.prTimeout
	c.mu.RUnlock()

	var errs []error
	if c.DvmPath == "" {
		errs = append(errs, fmt.Errorf("DRONEHUB_DVM_PATH must not be empty"))
	}
	if c.DataDir == "" {
		errs = append(errs, fmt.Errorf("DRONEHUB_DATA_DIR must not be empty"))
	}
	if et <= 0 {
		errs = append(errs, fmt.Errorf("DRONEHUB_EXEC_TIMEOUT must be > 0, got %s", et))
	}
	if st <= 0 {
		errs = append(errs, fmt.Errorf("DRONEHUB_SEED_TIMEOUT must be > 0, got %s", st))
	}
	if bt <= 0 {
		errs = append(errs, fmt.Errorf("DRONEHUB_BASE_IMAGE_TIMEOUT must be > 0, got %s", bt))
	}
	if wt <= 0 {
		errs = append(errs, fmt.Errorf("DRONEHUB_WS_WRITE_TIMEOUT must be > 0, got %s", wt))
	}
	if sft <= 0 {
		errs = append(errs, fmt.Errorf("DRONEHUB_SNAPSHOT_TIMEOUT must be > 0, got %s", sft))
	}
	if pt <= 0 {
		errs = append(errs, fmt.Errorf("DRONEHUB_PR_TIMEOUT must be > 0, got %s", pt))
	}
	return errors.Join(errs...)
}

// Values returns all configuration as a redacted string map for diagnostics.
func (c *Config) Values() map[string]string {
	c.mu.RLock()
	et, st, bt, wt, sft, ua, pt := c.execTimeout, c.seedTimeout, c.baseImageTimeout, c.wsWriteTimeout, c.snapshotTimeout, c.unstickAfter, c.prTimeout
	c.mu.RUnlock()

	return map[string]string{
		"DRONEHUB_DVM_PATH":            c.DvmPath,
		"DRONEHUB_DATA_DIR":            c.DataDir,
		"DRONEHUB_DB_PATH":             c.DBPath,
		"DRONEHUB_LOG_JSON":            fmt.Sprintf("%t", c.LogJSON),
		"DRONEHUB_LISTEN_ADDR":         c.ListenAddr,
		"DRONEHUB_GITHUB_TOKEN":        redactSecret(c.GitHubToken),
		"DRONEHUB_METRICS":             fmt.Sprintf("%t", c.MetricsEnabled),
		"DRONEHUB_ORPHAN_GC_SCHEDULE":  c.OrphanGCSchedule,
		"DRONEHUB_EXEC_TIMEOUT":        et.String(),
		"DRONEHUB_SEED_TIMEOUT":        st.String(),
		"DRONEHUB_BASE_IMAGE_TIMEOUT":  bt.String(),
		"DRONEHUB_WS_WRITE_TIMEOUT":    wt.String(),
		"DRONEHUB_SNAPSHOT_TIMEOUT":    sft.String(),
		"DRONEHUB_UNSTICK_AFTER":       ua.String(),
		"DRONEHUB_PR_TIMEOUT":          pt.String(),
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// ExecTimeout returns the default C1 exec/ports/ls timeout (thread-safe).
func (c *Config) ExecTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.execTimeout
}

// SetExecTimeout updates the default exec timeout at runtime (thread-safe).
func (c *Config) SetExecTimeout(d time.Duration) {
	c.mu.Lock()
	c.execTimeout = d
	c.mu.Unlock()
}

// SeedTimeout returns the seed/export pipeline timeout (thread-safe).
func (c *Config) SeedTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.seedTimeout
}

// SetSeedTimeout updates the seed/export timeout at runtime (thread-safe).
func (c *Config) SetSeedTimeout(d time.Duration) {
	c.mu.Lock()
	c.seedTimeout = d
	c.mu.Unlock()
}

// BaseImageTimeout returns the SetBaseImage timeout (thread-safe).
func (c *Config) BaseImageTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseImageTimeout
}

// SetBaseImageTimeout updates the base-image commit timeout (thread-safe).
func (c *Config) SetBaseImageTimeout(d time.Duration) {
	c.mu.Lock()
	c.baseImageTimeout = d
	c.mu.Unlock()
}

// WSWriteTimeout returns the websocket write deadline (thread-safe).
func (c *Config) WSWriteTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.wsWriteTimeout
}

// SetWSWriteTimeout updates the websocket write deadline (thread-safe).
func (c *Config) SetWSWriteTimeout(d time.Duration) {
	c.mu.Lock()
	c.wsWriteTimeout = d
	c.mu.Unlock()
}

// SnapshotTimeout returns the registry snapshot flush deadline (thread-safe).
func (c *Config) SnapshotTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotTimeout
}

// SetSnapshotTimeout updates the registry snapshot flush deadline (thread-safe).
func (c *Config) SetSnapshotTimeout(d time.Duration) {
	c.mu.Lock()
	c.snapshotTimeout = d
	c.mu.Unlock()
}

// UnstickAfter returns the minimum age before a pending prompt becomes
// eligible for unstick (thread-safe).
func (c *Config) UnstickAfter() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.unstickAfter
}

// SetUnstickAfter updates the unstick eligibility window (thread-safe).
func (c *Config) SetUnstickAfter(d time.Duration) {
	c.mu.Lock()
	c.unstickAfter = d
	c.mu.Unlock()
}

// PRTimeout returns the deadline for C7 GitHub HTTPS calls (thread-safe).
func (c *Config) PRTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prTimeout
}

// SetPRTimeout updates the GitHub HTTPS call deadline (thread-safe).
func (c *Config) SetPRTimeout(d time.Duration) {
	c.mu.Lock()
	c.prTimeout = d
	c.mu.Unlock()
}

// redactSecret returns "(set)" if the value is non-empty, empty string otherwise.
func redactSecret(s string) string {
	if s != "" {
		return "(set)"
	}
	return ""
}

// splitCSV parses a comma-separated string into a trimmed, non-empty slice.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
