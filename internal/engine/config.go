package engine

import (
	"fmt"
	"time"

	"dario.cat/mergo"
)

// Off disables MaxLoggedErrors or ItemDelay. A zero field means "use the
// default" and is filled by WithDefaults.
const Off = -1

type Config struct {
	// FailureThreshold is the number of back-to-back item failures that
	// triggers a re-authentication.
	FailureThreshold int `json:"failure_threshold"`
	// MaxLoggedErrors caps the error details sent to the sink per job. Off
	// logs none.
	MaxLoggedErrors int `json:"max_logged_errors"`
	CheckpointEvery int `json:"checkpoint_every"`
	// ItemDelay is the pause between items. Off disables it.
	ItemDelay time.Duration `json:"item_delay"`
	// ItemJitter adds a random extra wait in [0, ItemJitter) to ItemDelay.
	ItemJitter time.Duration `json:"item_jitter"`
	// ProbeSample is how many items the strategy probe requests.
	ProbeSample int `json:"probe_sample"`
	// SettleTimeout bounds post-navigation waits in the browser strategy.
	SettleTimeout time.Duration `json:"settle_timeout"`
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 10,
		MaxLoggedErrors:  20,
		CheckpointEvery:  25,
		ItemDelay:        time.Second,
		ProbeSample:      3,
		SettleTimeout:    10 * time.Second,
	}
}

// WithDefaults fills every zero field from DefaultConfig. Fields set to Off
// are kept.
func (c Config) WithDefaults() Config {
	if err := mergo.Merge(&c, DefaultConfig()); err != nil {
		// both sides are the same struct type
		panic(fmt.Sprintf("engine: merge defaults: %v", err))
	}
	return c
}

func (c Config) Validate() error {
	if c.FailureThreshold < 1 {
		return fmt.Errorf("failure threshold must be at least 1, got %d", c.FailureThreshold)
	}
	if c.MaxLoggedErrors < Off {
		return fmt.Errorf("max logged errors must not be negative, got %d", c.MaxLoggedErrors)
	}
	if c.CheckpointEvery < 1 {
		return fmt.Errorf("checkpoint interval must be at least 1, got %d", c.CheckpointEvery)
	}
	if c.ItemDelay < 0 && c.ItemDelay != Off {
		return fmt.Errorf("item delay must not be negative, got %s", c.ItemDelay)
	}
	if c.ItemJitter < 0 {
		return fmt.Errorf("item jitter must not be negative, got %s", c.ItemJitter)
	}
	return nil
}

func (c Config) delay() time.Duration {
	if c.ItemDelay == Off {
		return 0
	}
	return c.ItemDelay
}

func (c Config) loggedErrors() int {
	return max(c.MaxLoggedErrors, 0)
}
