package server

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml"

	"github.com/riftzone/zoneserver/server/anticheat"
	"github.com/riftzone/zoneserver/server/aoi"
	"github.com/riftzone/zoneserver/server/aura"
	"github.com/riftzone/zoneserver/server/combat"
	"github.com/riftzone/zoneserver/server/movement"
	"github.com/riftzone/zoneserver/server/network"
)

// tomlReadFile reads path, treating a missing file as an empty document so
// --config is optional rather than required.
func tomlReadFile(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// Config holds everything needed to construct a Zone. A Config is built up
// from command-line flags, environment variables and an optional TOML file
// by cmd/zoneserver, in that order of increasing precedence, then passed to
// New unmodified; Zone itself never re-reads flags or the environment.
type Config struct {
	// Log receives every structured log line the zone produces. Callers
	// that don't care about log output can pass slog.Default().
	Log *slog.Logger

	// ZoneID identifies this zone on the CrossZoneBus and in log output.
	ZoneID ZoneID

	// ListenAddress is the address the NetworkAdapter binds, e.g.
	// ":19132". Empty disables listening (used by tests that drive a Zone
	// purely through the in-memory adapter).
	ListenAddress string

	// Adapter is the transport the zone listens and dials through.
	// RakNetAdapter is used when nil and ListenAddress is non-empty.
	Adapter network.Adapter

	// RedisAddress and ScyllaAddress are recorded and logged at startup
	// for the matchmaking/session-cache and persistence-store
	// collaborators this zone talks to; no client is dialed for either
	// by this package.
	RedisAddress  string
	ScyllaAddress string

	// WhitelistPath and LedgerPath locate the on-disk whitelist and ban
	// ledger. Both are created on first use if they don't yet exist.
	WhitelistPath string
	LedgerPath    string

	// Bounds constrains simulated movement to this zone's portion of the
	// world; Neighbours maps each border edge to the zone responsible for
	// the territory beyond it, used by the AuraProjector and by migration
	// hand-off.
	Bounds     movement.Bounds
	Neighbours map[aura.Edge]ZoneID

	// Tunables. Every subsystem has a sane default (see DefaultConfig);
	// these fields exist so a TOML file can override one without
	// restating the rest.
	MovementTunables  movement.Tunables
	AntiCheat         anticheat.Thresholds
	Combat            combat.Tunables
	AOI               aoi.Tunables
	AuraBuffer        float64
	AdmissionTunables network.AdmissionTunables

	// TickBudget is the per-tick wall-clock budget the TickScheduler
	// measures against. Exceeding it for DegradeAfterTicks consecutive
	// ticks degrades snapshot QoS; see TickScheduler.
	TickBudget        time.Duration
	DegradeAfterTicks int
	RecoverAfterTicks int
}

// zoneConfigFile is the TOML shape accepted by --config, layered on top of
// the flag/env-derived Config by LoadConfigFile.
type zoneConfigFile struct {
	TickBudgetMicros      int64   `toml:"tick_budget_micros"`
	DegradeAfterTicks     int     `toml:"degrade_after_ticks"`
	RecoverAfterTicks     int     `toml:"recover_after_ticks"`
	AuraBufferMeters      float64 `toml:"aura_buffer_meters"`
	AntiCheatStrikeLimit  int     `toml:"anticheat_strike_limit"`
	AntiCheatReviewScore  float64 `toml:"anticheat_review_score_threshold"`
	AdmissionAttemptsPerS float64 `toml:"admission_attempts_per_second"`
	AdmissionBurst        int     `toml:"admission_burst"`
}

// DefaultConfig returns a Config with every tunable set to the values bound
// by the wire specification, for ZoneID 0 with no listen address, whitelist
// or ledger configured. Callers fill in the fields that matter for their
// deployment before calling New.
func DefaultConfig() Config {
	return Config{
		Log:               slog.Default(),
		MovementTunables:  movement.DefaultTunables(),
		AntiCheat:         anticheat.DefaultThresholds(),
		Combat:            combat.DefaultTunables(),
		AOI:               aoi.DefaultTunables(),
		AuraBuffer:        AuraBufferMeters,
		AdmissionTunables: network.DefaultAdmissionTunables(),
		TickBudget:        TickBudgetMicros * time.Microsecond,
		DegradeAfterTicks: 10,
		RecoverAfterTicks: 60,
	}
}

// LoadConfigFile reads the TOML file at path and overlays its fields onto
// base, returning the merged Config. A missing or empty field in the file
// leaves base's value untouched.
func LoadConfigFile(base Config, path string) (Config, error) {
	var file zoneConfigFile
	data, err := tomlReadFile(path)
	if err != nil {
		return base, fmt.Errorf("server: read config file: %w", err)
	}
	if err := toml.Unmarshal(data, &file); err != nil {
		return base, fmt.Errorf("server: decode config file: %w", err)
	}
	if file.TickBudgetMicros > 0 {
		base.TickBudget = time.Duration(file.TickBudgetMicros) * time.Microsecond
	}
	if file.DegradeAfterTicks > 0 {
		base.DegradeAfterTicks = file.DegradeAfterTicks
	}
	if file.RecoverAfterTicks > 0 {
		base.RecoverAfterTicks = file.RecoverAfterTicks
	}
	if file.AuraBufferMeters > 0 {
		base.AuraBuffer = file.AuraBufferMeters
	}
	if file.AntiCheatStrikeLimit > 0 {
		base.AntiCheat.StrikeLimit = file.AntiCheatStrikeLimit
	}
	if file.AntiCheatReviewScore > 0 {
		base.AntiCheat.ReviewScoreThreshold = file.AntiCheatReviewScore
	}
	if file.AdmissionAttemptsPerS > 0 {
		base.AdmissionTunables.AttemptsPerSecond = file.AdmissionAttemptsPerS
	}
	if file.AdmissionBurst > 0 {
		base.AdmissionTunables.Burst = file.AdmissionBurst
	}
	return base, nil
}
