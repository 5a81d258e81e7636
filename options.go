package stm

import "go.uber.org/zap"

// defaultSetCapacity is the per-transaction capacity for the read set,
// write set, and write-data set (§4.5/§9: a tuning parameter, not a
// fundamental limit, exposed here as an overridable default).
const defaultSetCapacity = 255

// defaultContentionThreshold is the write-set size at which a
// transaction claims contention-manager priority (§4.4 step 3, §9:
// "specify as a named constant so tests can override it").
const defaultContentionThreshold = 10

type config struct {
	logger               *zap.Logger
	setCapacity          int
	contentionThreshold  int
	rngFactory           func(jumpOffset uint32) RNG
}

func defaultConfig() *config {
	return &config{
		logger:              zap.NewNop(),
		setCapacity:         defaultSetCapacity,
		contentionThreshold: defaultContentionThreshold,
		rngFactory:          newXoroshiro128pp,
	}
}

// Option configures an Engine at ThreadInit time. Functional options,
// exactly as go-cask's EngineOpts[V] and go-block-cache's CacheOpt do it.
type Option func(*config)

// WithLogger scopes an engine's logging to logger instead of the default
// no-op logger. Mirrors go-block-cache's CacheOpts letting a caller configure
// a hashMap instance rather than mutating process-wide state.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSetCapacity overrides the fixed capacity of the read set, write
// set, and write-data set. n must be positive.
func WithSetCapacity(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.setCapacity = n
		}
	}
}

// WithContentionThreshold overrides the write-set size at which a
// transaction claims contention-manager priority.
func WithContentionThreshold(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.contentionThreshold = n
		}
	}
}

// WithRNG overrides the per-thread random source construction used for
// contention-manager backoff jitter. The factory receives the engine's
// jump-seed offset (see ThreadInit) so a custom RNG can still decorrelate
// across concurrently initialized engines if it chooses to.
func WithRNG(factory func(jumpOffset uint32) RNG) Option {
	return func(c *config) {
		if factory != nil {
			c.rngFactory = factory
		}
	}
}

func applyOptions(opts []Option) *config {
	c := defaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	return c
}
