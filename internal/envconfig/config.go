// Package envconfig reads engine settings from the environment.
//
// Every getter reads the environment on each call; nothing is cached, so a
// setting changed between two calls takes effect on the second one.
//
//   - NumTraceSamples: Hutchinson probe count (LINOP_NUM_TRACE_SAMPLES)
//   - MaxCGIterations: conjugate gradient cap, 0 means the matrix size (LINOP_MAX_CG_ITERATIONS)
//   - CGTolerance: conjugate gradient relative residual (LINOP_CG_TOLERANCE)
//   - MaxLanczosIterations: Lanczos subspace cap (LINOP_MAX_LANCZOS_ITERATIONS)
//   - MaxPreconditionerSize: pivoted Cholesky rank (LINOP_MAX_PRECONDITIONER_SIZE)
//   - MaxCholeskyNumel: largest matrix rooted by dense Cholesky (LINOP_MAX_CHOLESKY_NUMEL)
//   - Seed: fixed seed for the stochastic estimators (LINOP_SEED)
//   - UnlockSeed: draw fresh seeds in tests (UNLOCK_SEED)
//   - LogLevel: logrus level (LINOP_DEBUG)
package envconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Var returns an environment variable stripped of leading and trailing quotes or spaces.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

var (
	// NumTraceSamples is the number of random probes of the stochastic trace estimator.
	NumTraceSamples = Uint("LINOP_NUM_TRACE_SAMPLES", 10)
	// MaxCGIterations caps conjugate gradient. Zero means "use the matrix size".
	MaxCGIterations = Uint("LINOP_MAX_CG_ITERATIONS", 0)
	// CGTolerance is the relative residual at which a CG column stops.
	CGTolerance = Float("LINOP_CG_TOLERANCE", 1e-10)
	// MaxLanczosIterations caps the Lanczos subspace size.
	MaxLanczosIterations = Uint("LINOP_MAX_LANCZOS_ITERATIONS", 100)
	// MaxPreconditionerSize is the pivoted Cholesky rank budget.
	MaxPreconditionerSize = Uint("LINOP_MAX_PRECONDITIONER_SIZE", 5)
	// MaxCholeskyNumel is the largest n·n for which root decompositions factor
	// the dense matrix instead of running Lanczos.
	MaxCholeskyNumel = Uint("LINOP_MAX_CHOLESKY_NUMEL", 256)
	// UnlockSeed lets tests draw fresh seeds instead of their fixed ones.
	UnlockSeed = Bool("UNLOCK_SEED")
)

// Seed returns the fixed estimator seed and whether one is configured.
// Configurable via LINOP_SEED.
func Seed() (uint64, bool) {
	s := Var("LINOP_SEED")
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		log.WithFields(log.Fields{"key": "LINOP_SEED", "value": s}).Warn("invalid environment variable, ignoring")
		return 0, false
	}
	return n, true
}

// LogLevel returns the log level for the application.
// LINOP_DEBUG=1 (or any true value) enables debug, LINOP_DEBUG=2 enables trace.
// Default: log.InfoLevel
func LogLevel() log.Level {
	level := log.InfoLevel
	if s := Var("LINOP_DEBUG"); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			if b {
				level = log.DebugLevel
			}
		} else if i, err := strconv.ParseInt(s, 10, 64); err == nil && i >= 2 {
			level = log.TraceLevel
		}
	}
	return level
}

// BoolWithDefault returns a getter for a boolean variable with a caller-supplied default.
// Unparsable values count as true.
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool returns a getter for a boolean variable that defaults to false.
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// Uint returns a getter for an unsigned integer variable.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				warnInvalid(key, s, defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// Float returns a getter for a positive floating point variable.
func Float(key string, defaultValue float64) func() float64 {
	return func() float64 {
		if s := Var(key); s != "" {
			if f, err := strconv.ParseFloat(s, 64); err != nil || f <= 0 {
				warnInvalid(key, s, defaultValue)
			} else {
				return f
			}
		}
		return defaultValue
	}
}

func warnInvalid(key, value string, defaultValue any) {
	log.WithFields(log.Fields{
		"key":     key,
		"value":   value,
		"default": defaultValue,
	}).Warn("invalid environment variable, using default")
}

// EnvVar describes one setting for display.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every setting with its current value.
func AsMap() map[string]EnvVar {
	seed := any("unset")
	if s, ok := Seed(); ok {
		seed = s
	}
	return map[string]EnvVar{
		"LINOP_NUM_TRACE_SAMPLES":       {"LINOP_NUM_TRACE_SAMPLES", NumTraceSamples(), "Random probes per log-determinant estimate (default 10)"},
		"LINOP_MAX_CG_ITERATIONS":       {"LINOP_MAX_CG_ITERATIONS", MaxCGIterations(), "Conjugate gradient iteration cap, 0 uses the matrix size"},
		"LINOP_CG_TOLERANCE":            {"LINOP_CG_TOLERANCE", CGTolerance(), "Conjugate gradient relative residual tolerance (default 1e-10)"},
		"LINOP_MAX_LANCZOS_ITERATIONS":  {"LINOP_MAX_LANCZOS_ITERATIONS", MaxLanczosIterations(), "Lanczos subspace size cap (default 100)"},
		"LINOP_MAX_PRECONDITIONER_SIZE": {"LINOP_MAX_PRECONDITIONER_SIZE", MaxPreconditionerSize(), "Pivoted Cholesky rank for preconditioned roots (default 5)"},
		"LINOP_MAX_CHOLESKY_NUMEL":      {"LINOP_MAX_CHOLESKY_NUMEL", MaxCholeskyNumel(), "Largest n*n rooted by dense Cholesky instead of Lanczos (default 256)"},
		"LINOP_SEED":                    {"LINOP_SEED", seed, "Fixed seed for the stochastic estimators"},
		"LINOP_DEBUG":                   {"LINOP_DEBUG", LogLevel(), "Show additional debug information (e.g. LINOP_DEBUG=1)"},
		"UNLOCK_SEED":                   {"UNLOCK_SEED", UnlockSeed(), "Draw fresh seeds in tests"},
	}
}

// Values returns every setting formatted as a string.
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
