package sim

import (
	"go.uber.org/zap"

	"github.com/san-kum/stockflow/internal/dynamo"
)

type options struct {
	logger    *zap.Logger
	seed      *uint64
	algorithm dynamo.Algorithm
	step      float64
	length    float64
}

// Option configures Build.
type Option func(*options)

// WithLogger routes engine logs to l.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSeed overrides the model's random seed.
func WithSeed(seed uint64) Option {
	return func(o *options) { o.seed = &seed }
}

// WithAlgorithm overrides the model's root algorithm.
func WithAlgorithm(alg dynamo.Algorithm) Option {
	return func(o *options) { o.algorithm = alg }
}

// WithTimeStep overrides the model's root time step.
func WithTimeStep(dt float64) Option {
	return func(o *options) { o.step = dt }
}

// WithTimeLength overrides the simulated duration.
func WithTimeLength(length float64) Option {
	return func(o *options) { o.length = length }
}
