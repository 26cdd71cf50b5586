// Package config holds the airlock tuning constants and the environment
// driven runtime configuration.
//
// The constants are the compiled-in defaults. Every one of them can be
// overridden by an AIRLOCK_* environment variable; unset variables keep the
// default.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/daviddao/airlock/pkg/clock"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "AIRLOCK_"

// Gas thresholds, as fractions in [0,1].
const (
	PressOK        = 0.90   // room oxygen considered breathable
	VacOK          = 0.02   // room oxygen considered vacuum
	VacBand        = 0.05   // band above VacOK accepted while capture is still progressing
	MinO2Delta     = 0.01   // rise required before accepting a partial pressurize
	MinProcDelta   = 0.0005 // tank fill change that counts as capturing
	CaptureEpsilon = 0.001  // oxygen drop that counts as capturing
	StableEpsilon  = 0.001  // oxygen dip tolerated as "flat"
)

// Tick counts.
const (
	WaitShort       = 10  // dwell before closing a door behind someone
	WaitPass        = 30  // time to step through an open door
	TimeoutTicks    = 300 // absolute safety cap per phase
	MinDepressTicks = 30  // floor before the outer door may open
	MinPressTicks   = 30  // floor before the inner door may open
	SettleTicks     = 3   // settle after flipping supply or sink
	StableTicks     = 3   // oxygen must be flat or rising this many ticks
	WarnEvery       = 30  // stalled capture warning interval
)

// Auto-close and door policy.
const (
	AutoCloseEnabled        = true
	AutoCloseDefaultSeconds = 10
	TicksPerSecond          = 6
	LockManual              = false // disable airlock doors while idle
)

const defaultDB = ".airlock/airlock.db"

// Tuning is the set of knobs the controller, the gas policy and the
// auto-close timer read.
type Tuning struct {
	PressOK        float64 `env:"PRESS_OK" json:"press_ok"`
	VacOK          float64 `env:"VAC_OK" json:"vac_ok"`
	VacBand        float64 `env:"VAC_BAND" json:"vac_band"`
	MinO2Delta     float64 `env:"MIN_O2_DELTA" json:"min_o2_delta"`
	MinProcDelta   float64 `env:"MIN_PROC_DELTA" json:"min_proc_delta"`
	CaptureEpsilon float64 `env:"CAPTURE_EPSILON" json:"capture_epsilon"`
	StableEpsilon  float64 `env:"STABLE_EPSILON" json:"stable_epsilon"`

	WaitShort       int `env:"WAIT_SHORT" json:"wait_short"`
	WaitPass        int `env:"WAIT_PASS" json:"wait_pass"`
	TimeoutTicks    int `env:"TIMEOUT_TICKS" json:"timeout_ticks"`
	MinDepressTicks int `env:"MIN_DEPRESS_TICKS" json:"min_depress_ticks"`
	MinPressTicks   int `env:"MIN_PRESS_TICKS" json:"min_press_ticks"`
	SettleTicks     int `env:"SETTLE_TICKS" json:"settle_ticks"`
	StableTicks     int `env:"STABLE_TICKS" json:"stable_ticks"`
	WarnEvery       int `env:"WARN_EVERY" json:"warn_every"`

	AutoCloseEnabled        bool `env:"AUTO_CLOSE" json:"auto_close"`
	AutoCloseDefaultSeconds int  `env:"AUTO_CLOSE_SECONDS" json:"auto_close_seconds"`
	TicksPerSecond          int  `env:"TICKS_PER_SECOND" json:"ticks_per_second"`
	LockManual              bool `env:"LOCK_MANUAL" json:"lock_manual"`
}

// DefaultTuning returns the compiled-in constants.
func DefaultTuning() Tuning {
	return Tuning{
		PressOK:        PressOK,
		VacOK:          VacOK,
		VacBand:        VacBand,
		MinO2Delta:     MinO2Delta,
		MinProcDelta:   MinProcDelta,
		CaptureEpsilon: CaptureEpsilon,
		StableEpsilon:  StableEpsilon,

		WaitShort:       WaitShort,
		WaitPass:        WaitPass,
		TimeoutTicks:    TimeoutTicks,
		MinDepressTicks: MinDepressTicks,
		MinPressTicks:   MinPressTicks,
		SettleTicks:     SettleTicks,
		StableTicks:     StableTicks,
		WarnEvery:       WarnEvery,

		AutoCloseEnabled:        AutoCloseEnabled,
		AutoCloseDefaultSeconds: AutoCloseDefaultSeconds,
		TicksPerSecond:          TicksPerSecond,
		LockManual:              LockManual,
	}
}

// AutoCloseDefaultTicks is the auto-close limit for doors without an
// explicit [AUTOCLOSE:n] tag.
func (t Tuning) AutoCloseDefaultTicks() int {
	return clock.FromSeconds(t.AutoCloseDefaultSeconds, t.TicksPerSecond)
}

// TickPeriod is the wall-clock scheduler period.
func (t Tuning) TickPeriod() time.Duration {
	return clock.Period(t.TicksPerSecond)
}

// Validate rejects combinations the controller cannot run with.
func (t Tuning) Validate() error {
	var errs []error
	for name, v := range map[string]float64{
		"PRESS_OK": t.PressOK, "VAC_OK": t.VacOK, "VAC_BAND": t.VacBand,
		"MIN_O2_DELTA": t.MinO2Delta, "MIN_PROC_DELTA": t.MinProcDelta,
		"CAPTURE_EPSILON": t.CaptureEpsilon, "STABLE_EPSILON": t.StableEpsilon,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s%s=%v outside [0,1]", EnvPrefix, name, v))
		}
	}
	if t.VacOK >= t.PressOK {
		errs = append(errs, fmt.Errorf("%sVAC_OK (%v) must be below %sPRESS_OK (%v)", EnvPrefix, t.VacOK, EnvPrefix, t.PressOK))
	}
	if t.TimeoutTicks <= 0 {
		errs = append(errs, fmt.Errorf("%sTIMEOUT_TICKS must be positive", EnvPrefix))
	}
	if t.TicksPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("%sTICKS_PER_SECOND must be positive", EnvPrefix))
	}
	if t.WarnEvery <= 0 {
		errs = append(errs, fmt.Errorf("%sWARN_EVERY must be positive", EnvPrefix))
	}
	for name, v := range map[string]int{
		"WAIT_SHORT": t.WaitShort, "WAIT_PASS": t.WaitPass,
		"MIN_DEPRESS_TICKS": t.MinDepressTicks, "MIN_PRESS_TICKS": t.MinPressTicks,
		"SETTLE_TICKS": t.SettleTicks, "STABLE_TICKS": t.StableTicks,
		"AUTO_CLOSE_SECONDS": t.AutoCloseDefaultSeconds,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s%s must not be negative", EnvPrefix, name))
		}
	}
	return errors.Join(errs...)
}

// Config is the runtime configuration of the airlock binary.
type Config struct {
	DB          string     `env:"DB"`
	LogLevel    slog.Level `env:"LOG_LEVEL"`
	MetricsAddr string     `env:"METRICS_ADDR"`
	Tuning
}

// Default returns the configuration used when no variable is set.
func Default() Config {
	return Config{
		DB:          defaultDB,
		LogLevel:    slog.LevelInfo,
		MetricsAddr: ":9464",
		Tuning:      DefaultTuning(),
	}
}

// DefaultDB is the database path used when AIRLOCK_DB is unset.
func DefaultDB() string { return defaultDB }

// Load reads AIRLOCK_* variables from the process environment over the
// defaults.
func Load() (Config, error) {
	return load(env.Options{Prefix: EnvPrefix})
}

// LoadFrom is Load with an explicit environment, for tests and embedding.
func LoadFrom(environ map[string]string) (Config, error) {
	return load(env.Options{Prefix: EnvPrefix, Environment: environ})
}

func load(opts env.Options) (Config, error) {
	cfg := Default()
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid tuning: %w", err)
	}
	return cfg, nil
}
