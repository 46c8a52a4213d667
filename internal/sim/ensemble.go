package sim

import (
	"context"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// Member is one run of an ensemble.
type Member struct {
	Seed    uint64
	Results *Results
}

// Ensemble is a set of runs of one model that differ only in their seed.
type Ensemble struct {
	Members []Member
}

// EnsembleOption configures RunEnsemble.
type EnsembleOption func(*ensembleOptions)

type ensembleOptions struct {
	parallel int
}

// WithParallelism caps the number of runs in flight. The default is the
// number of CPUs.
func WithParallelism(n int) EnsembleOption {
	return func(o *ensembleOptions) { o.parallel = n }
}

// withSeed copies s with another seed. Compiled records are read-only during
// a run, so the copies share them.
func (s *Simulation) withSeed(seed uint64) *Simulation {
	cp := *s
	cp.seed = seed
	cp.log = s.log.With(zap.Uint64("seed", seed))
	return &cp
}

// RunEnsemble simulates runs copies of s with seeds firstSeed,
// firstSeed+1, ... concurrently. Each run has its own state and random
// stream, so member i is identical to a single run with that seed. The
// first failure cancels the remaining runs.
func (s *Simulation) RunEnsemble(ctx context.Context, runs int, firstSeed uint64, opts ...EnsembleOption) (*Ensemble, error) {
	o := ensembleOptions{parallel: runtime.NumCPU()}
	for _, opt := range opts {
		opt(&o)
	}
	out := &Ensemble{Members: make([]Member, runs)}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(o.parallel, 1))
	for i := 0; i < runs; i++ {
		seed := firstSeed + uint64(i)
		g.Go(func() error {
			res, err := s.withSeed(seed).Simulate(gctx)
			if err != nil {
				return err
			}
			out.Members[i] = Member{Seed: seed, Results: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	s.log.Info("ensemble finished", zap.Int("runs", runs), zap.Uint64("first_seed", firstSeed))
	return out, nil
}

// Band summarizes one primitive across the members at each sample time.
type Band struct {
	Times  []float64
	Mean   []float64
	StdDev []float64
	Min    []float64
	Max    []float64
}

// Band computes the spread of the numeric series id over the members.
// Members must share their sample times, which holds unless a run stopped
// early; the band is cut to the shortest member.
func (e *Ensemble) Band(id string) Band {
	var b Band
	if len(e.Members) == 0 {
		return b
	}
	series := make([][]float64, len(e.Members))
	n := -1
	for i, m := range e.Members {
		series[i] = m.Results.Floats(id)
		if n < 0 || len(series[i]) < n {
			n = len(series[i])
		}
	}
	b.Times = append([]float64(nil), e.Members[0].Results.Times[:n]...)
	xs := make([]float64, len(series))
	for t := 0; t < n; t++ {
		lo, hi := series[0][t], series[0][t]
		for i, s := range series {
			xs[i] = s[t]
			lo, hi = min(lo, s[t]), max(hi, s[t])
		}
		mean, sd := stat.MeanStdDev(xs, nil)
		if len(xs) < 2 {
			sd = 0
		}
		b.Mean = append(b.Mean, mean)
		b.StdDev = append(b.StdDev, sd)
		b.Min = append(b.Min, lo)
		b.Max = append(b.Max, hi)
	}
	return b
}
