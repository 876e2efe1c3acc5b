package utils

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvDefaults holds the RGET_* environment overrides for flag defaults.
type EnvDefaults struct {
	Parallel  int           `envconfig:"PARALLEL" default:"4"`
	UserAgent string        `envconfig:"USER_AGENT" default:"rget/1.0"`
	Timeout   time.Duration `envconfig:"TIMEOUT" default:"1m"`
	KATimeout time.Duration `envconfig:"KEEP_ALIVE_TIMEOUT" default:"90s"`
	Proxy     string        `envconfig:"PROXY"`
	Insecure  bool          `envconfig:"INSECURE" default:"false"`
	Debug     bool          `envconfig:"DEBUG" default:"false"`
}

func LoadEnv() (*EnvDefaults, error) {
	var env EnvDefaults
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}
	if err := ValidateParallel(env.Parallel); err != nil {
		return nil, fmt.Errorf("invalid %s_PARALLEL: %w", EnvPrefix, err)
	}
	return &env, nil
}

func ValidateParallel(n int) error {
	if n < 1 || n > MaxParallel {
		return fmt.Errorf("parallel must be between 1 and %d, got %d", MaxParallel, n)
	}
	return nil
}
