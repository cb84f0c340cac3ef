package rankkey

// EdgeStrategy defines how keys are generated when an item is placed at the
// very top or bottom of a context, where only one real neighbor exists.
type EdgeStrategy int

const (
	// EdgeBisect uses Between(Min, first) and Between(last, Max).
	EdgeBisect EdgeStrategy = iota

	// EdgeStep uses Prev(first) and Next(last), moving StepSize along the
	// integer part. Keys stay short under repeated edge insertion.
	EdgeStep
)

// String returns the configuration name of the strategy.
func (s EdgeStrategy) String() string {
	switch s {
	case EdgeBisect:
		return "bisect"
	case EdgeStep:
		return "step"
	default:
		return "unknown"
	}
}

// ParseEdgeStrategy is the inverse of EdgeStrategy.String.
func ParseEdgeStrategy(s string) (EdgeStrategy, bool) {
	switch s {
	case "bisect", "":
		return EdgeBisect, true
	case "step":
		return EdgeStep, true
	default:
		return EdgeBisect, false
	}
}

// Config holds configuration for key generation.
type Config struct {
	// StepSize is the distance Next and Prev move along the integer part (default: 8).
	StepSize uint64

	// MaxKeyLength is the length of the string form past which a key is
	// considered too long and its context should be rebalanced (default: 64).
	MaxKeyLength int

	// EdgeStrategy determines how keys are generated at the top and bottom.
	EdgeStrategy EdgeStrategy

	// JitterRange is the maximum drift, in digit steps, of generated keys
	// from the exact midpoint. Zero disables jitter.
	JitterRange int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		StepSize:     DefaultStep,
		MaxKeyLength: 64,
		EdgeStrategy: EdgeBisect,
	}
}

// WithStepSize sets the step size used by Next and Prev.
func (c *Config) WithStepSize(step uint64) *Config {
	newConfig := *c
	newConfig.StepSize = step
	return &newConfig
}

// WithMaxKeyLength sets the rebalance threshold.
func (c *Config) WithMaxKeyLength(length int) *Config {
	newConfig := *c
	newConfig.MaxKeyLength = length
	return &newConfig
}

// WithEdgeStrategy sets the edge strategy.
func (c *Config) WithEdgeStrategy(strategy EdgeStrategy) *Config {
	newConfig := *c
	newConfig.EdgeStrategy = strategy
	return &newConfig
}

// WithJitterRange sets the jitter range.
func (c *Config) WithJitterRange(r int) *Config {
	newConfig := *c
	newConfig.JitterRange = r
	return &newConfig
}
