// Package config provides centralized configuration for alconcurrent.
//
// Configuration follows a two-tier hierarchy:
//  1. An optional YAML overlay file (see LoadFile)
//  2. Environment variables with documented defaults
//
// All values have sensible defaults and can be overridden through
// environment variables or a YAML file, consistently across every binary
// that links this module.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// SizeClass is one entry of the allocator's ascending size-class ladder
// (spec.md §3.5): a fixed slot size in bytes and the number of slots the
// first chunk of that class is created with.
type SizeClass struct {
	SlotBytes            int `yaml:"slot_bytes"`
	InitialSlotsPerChunk int `yaml:"initial_slots_per_chunk"`
}

// Config holds all configuration values for alconcurrent.
//
// Configuration follows a two-tier hierarchy:
//  1. YAML overlay (optional)
//  2. Environment variables
//
// All values have sensible defaults and can be overridden through
// environment variables (Load) or a YAML overlay file (LoadFile).
type Config struct {
	// Allocator Configuration
	// =======================

	// SizeClasses is the ascending (slot_bytes, initial_slots_per_chunk)
	// ladder used to construct a slab.Allocator (spec.md §3.5, §4.8).
	// Environment: ALCONCURRENT_SIZE_CLASSES
	// Format: "slotBytes:initialSlots,slotBytes:initialSlots,..."
	// Default: "16:64,64:64,256:32,1024:16,4096:8"
	SizeClasses []SizeClass

	// HazardGroupSlots is the number of hazard-pointer slots per slot
	// group (spec.md §3.1, must be ≥8).
	// Environment: ALCONCURRENT_HAZARD_GROUP_SLOTS
	// Default: 8
	HazardGroupSlots int

	// PruneInterval is the sleep duration between prune-daemon sweeps
	// (spec.md §3.2, §5).
	// Environment: ALCONCURRENT_PRUNE_INTERVAL (seconds)
	// Default: 1s
	PruneInterval time.Duration

	// Diagnostic Flags (spec.md §6)
	// =============================

	// RecordBacktrace stores allocation and free call sites per slot header.
	// Environment: ALCONCURRENT_RECORD_BACKTRACE
	// Default: false
	RecordBacktrace bool

	// RecordBacktraceDoubleFree additionally retains backtraces across
	// free/reuse, for double-free diagnosis. Implies RecordBacktrace.
	// Environment: ALCONCURRENT_RECORD_BACKTRACE_DOUBLE_FREE
	// Default: false
	RecordBacktraceDoubleFree bool

	// NonReuseSlot transitions freed slots to DISCARDED instead of back to
	// FREE, trading memory for easier use-after-free diagnosis.
	// Environment: ALCONCURRENT_NON_REUSE_SLOT
	// Default: false
	NonReuseSlot bool

	// DetailStats enables per-class collision/error counters.
	// Environment: ALCONCURRENT_DETAIL_STATS
	// Default: true
	DetailStats bool

	// NodePoolProfile enables per-pool occupancy counters.
	// Environment: ALCONCURRENT_NODE_POOL_PROFILE
	// Default: false
	NodePoolProfile bool

	// Diagnostics HTTP Server
	// =======================

	// DiagnosticsAddr is the listen address for the optional introspection
	// HTTP server (see internal/diagnosticsapi). Empty disables it.
	// Environment: ALCONCURRENT_DIAGNOSTICS_ADDR
	// Default: ""
	DiagnosticsAddr string

	// Logging
	// =======

	// LogLevel is the initial logger.SetLogLevel value.
	// Environment: ALCONCURRENT_LOG_LEVEL
	// Default: "info"
	LogLevel string
}

// defaultSizeClasses mirrors the ladder used in spec.md §8 scenario 4 plus
// two larger classes, covering small node payloads up through page-sized
// slabs before the oversize fallback (spec.md §4.8) takes over.
func defaultSizeClasses() []SizeClass {
	return []SizeClass{
		{SlotBytes: 16, InitialSlotsPerChunk: 64},
		{SlotBytes: 64, InitialSlotsPerChunk: 64},
		{SlotBytes: 256, InitialSlotsPerChunk: 32},
		{SlotBytes: 1024, InitialSlotsPerChunk: 16},
		{SlotBytes: 4096, InitialSlotsPerChunk: 8},
	}
}

// Load builds a Config from environment variables, falling back to
// documented defaults for anything unset.
func Load() *Config {
	return &Config{
		SizeClasses:               getEnvSizeClasses("ALCONCURRENT_SIZE_CLASSES", defaultSizeClasses()),
		HazardGroupSlots:          getEnvInt("ALCONCURRENT_HAZARD_GROUP_SLOTS", 8),
		PruneInterval:             getEnvDuration("ALCONCURRENT_PRUNE_INTERVAL", 1),
		RecordBacktrace:           getEnvBool("ALCONCURRENT_RECORD_BACKTRACE", false),
		RecordBacktraceDoubleFree: getEnvBool("ALCONCURRENT_RECORD_BACKTRACE_DOUBLE_FREE", false),
		NonReuseSlot:              getEnvBool("ALCONCURRENT_NON_REUSE_SLOT", false),
		DetailStats:               getEnvBool("ALCONCURRENT_DETAIL_STATS", true),
		NodePoolProfile:           getEnvBool("ALCONCURRENT_NODE_POOL_PROFILE", false),
		DiagnosticsAddr:           getEnv("ALCONCURRENT_DIAGNOSTICS_ADDR", ""),
		LogLevel:                  getEnv("ALCONCURRENT_LOG_LEVEL", "info"),
	}
}

// LoadFile reads Load()'s defaults and then applies a YAML overlay from
// path, so deployments that prefer a config file over environment
// variables can still reach every field above. Missing fields in the YAML
// document are left at their environment/default value.
func LoadFile(path string) (*Config, error) {
	cfg := Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var overlay struct {
		SizeClasses               []SizeClass `yaml:"size_classes"`
		HazardGroupSlots          int         `yaml:"hazard_group_slots"`
		PruneIntervalSeconds      int         `yaml:"prune_interval_seconds"`
		RecordBacktrace           *bool       `yaml:"record_backtrace"`
		RecordBacktraceDoubleFree *bool       `yaml:"record_backtrace_double_free"`
		NonReuseSlot              *bool       `yaml:"non_reuse_slot"`
		DetailStats               *bool       `yaml:"detail_stats"`
		NodePoolProfile           *bool       `yaml:"node_pool_profile"`
		DiagnosticsAddr           string      `yaml:"diagnostics_addr"`
		LogLevel                  string      `yaml:"log_level"`
	}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if len(overlay.SizeClasses) > 0 {
		cfg.SizeClasses = overlay.SizeClasses
	}
	if overlay.HazardGroupSlots > 0 {
		cfg.HazardGroupSlots = overlay.HazardGroupSlots
	}
	if overlay.PruneIntervalSeconds > 0 {
		cfg.PruneInterval = time.Duration(overlay.PruneIntervalSeconds) * time.Second
	}
	if overlay.RecordBacktrace != nil {
		cfg.RecordBacktrace = *overlay.RecordBacktrace
	}
	if overlay.RecordBacktraceDoubleFree != nil {
		cfg.RecordBacktraceDoubleFree = *overlay.RecordBacktraceDoubleFree
	}
	if overlay.NonReuseSlot != nil {
		cfg.NonReuseSlot = *overlay.NonReuseSlot
	}
	if overlay.DetailStats != nil {
		cfg.DetailStats = *overlay.DetailStats
	}
	if overlay.NodePoolProfile != nil {
		cfg.NodePoolProfile = *overlay.NodePoolProfile
	}
	if overlay.DiagnosticsAddr != "" {
		cfg.DiagnosticsAddr = overlay.DiagnosticsAddr
	}
	if overlay.LogLevel != "" {
		cfg.LogLevel = overlay.LogLevel
	}

	return cfg, nil
}

// =============================================================================
// Environment Variable Parsing Utilities
// =============================================================================
//
// These helper functions provide type-safe parsing of environment variables
// with fallback to default values when variables are unset or invalid.

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultSeconds int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return time.Duration(intValue) * time.Second
		}
	}
	return time.Duration(defaultSeconds) * time.Second
}

// getEnvSizeClasses parses "slotBytes:initialSlots,..." into a SizeClass
// ladder, skipping malformed entries.
//
// Examples:
//
//	ALCONCURRENT_SIZE_CLASSES="16:64,64:32" -> [{16 64} {64 32}]
//	ALCONCURRENT_SIZE_CLASSES=""            -> defaultValue
func getEnvSizeClasses(key string, defaultValue []SizeClass) []SizeClass {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	result := make([]SizeClass, 0, len(parts))
	for _, part := range parts {
		fields := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(fields) != 2 {
			continue
		}
		slotBytes, err1 := strconv.Atoi(fields[0])
		initialSlots, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil || slotBytes <= 0 || initialSlots <= 0 {
			continue
		}
		result = append(result, SizeClass{SlotBytes: slotBytes, InitialSlotsPerChunk: initialSlots})
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
