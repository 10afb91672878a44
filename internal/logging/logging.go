// Package logging configures the process-wide zerolog setup for the runtime.
// It is configured at most once; later calls are no-ops.
package logging

import (
	"os"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel   = "CONSTEL_LOG_LEVEL"
	EnvLogNoColor = "CONSTEL_LOG_NOCOLOR"
)

// Profile selects a default configuration.
type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
	ProfileDebug
)

var (
	configureOnce sync.Once
	root          zerolog.Logger
)

// ConfigureRuntime applies the default runtime profile.
func ConfigureRuntime() { Configure(ProfileRuntime) }

// ConfigureDebug applies the debug profile (used when Config.Debug is set).
func ConfigureDebug() { Configure(ProfileDebug) }

// ConfigureTests applies the test profile: debug level, no timestamps.
func ConfigureTests() { Configure(ProfileTest) }

// Configure initializes the root logger for the given profile, honoring the
// CONSTEL_LOG_* environment overrides.
func Configure(profile Profile) {
	configureOnce.Do(func() {
		level := zerolog.InfoLevel
		withTime := true
		switch profile {
		case ProfileTest:
			level = zerolog.DebugLevel
			withTime = false
		case ProfileDebug:
			level = zerolog.DebugLevel
		}
		if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
			level = lvl
		}

		out := zerolog.ConsoleWriter{Out: os.Stderr, NoColor: envBool(EnvLogNoColor)}
		ctx := zerolog.New(out).Level(level).With()
		if withTime {
			ctx = ctx.Timestamp()
		}
		root = ctx.Logger()
	})
}

// Component returns a logger tagged with the given component name. Configure
// must have run first; an unconfigured root logs nothing above disabled
// level, which is fine for library consumers that opt out.
func Component(name string) zerolog.Logger {
	return root.With().Str("component", name).Logger()
}

func parseLevel(s string) (zerolog.Level, bool) {
	if s == "" {
		return zerolog.NoLevel, false
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.NoLevel, false
	}
	return lvl, true
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}
