package trainer

import (
	"context"
	"log"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"ecokernel/internal/dataset"
	"ecokernel/internal/metrics"
	"ecokernel/internal/model"
)

// RunConfig captures the knobs required by the training loop.
type RunConfig struct {
	Topology     model.Topology
	LearningRate float64
	Seed         int64
	Iterations   int
	LogEvery     int
}

// AnchorReport compares one example's prediction before and after training.
type AnchorReport struct {
	Example        model.Example
	Before         []float64
	After          []float64
	DistanceBefore float64
	DistanceAfter  float64
}

// Report summarizes a finished run.
type Report struct {
	Seed    int64
	Steps   int
	Anchors []AnchorReport
}

// MeanDistance is the average post-training distance over all anchors.
func (r Report) MeanDistance() float64 {
	if len(r.Anchors) == 0 {
		return 0
	}
	var total float64
	for _, a := range r.Anchors {
		total += a.DistanceAfter
	}
	return total / float64(len(r.Anchors))
}

// Run trains a freshly constructed kernel on draws from set. Every example in
// set is reported as an anchor.
func Run(ctx context.Context, cfg RunConfig, set dataset.Set) (*model.MLP, Report, error) {
	if cfg.Iterations <= 0 {
		return nil, Report{}, errors.New("trainer: iterations must be > 0")
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = 100
	}
	if err := set.Validate(cfg.Topology); err != nil {
		return nil, Report{}, errors.Wrap(err, "trainer")
	}

	mdl, err := model.NewMLP(cfg.Topology, cfg.LearningRate, cfg.Seed)
	if err != nil {
		return nil, Report{}, err
	}
	report := Report{Seed: cfg.Seed, Anchors: make([]AnchorReport, len(set.Examples))}
	for i, ex := range set.Examples {
		out, err := mdl.Predict(ex.Input)
		if err != nil {
			return nil, Report{}, err
		}
		report.Anchors[i] = AnchorReport{Example: ex, Before: out, DistanceBefore: floats.Distance(out, ex.Target, 2)}
	}

	samplerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	samples, err := dataset.StartSampler(samplerCtx, set, cfg.Seed+1)
	if err != nil {
		return nil, Report{}, err
	}

	var window metrics.Window
	for step := 1; step <= cfg.Iterations; step++ {
		ex, err := nextExample(ctx, samples)
		if err != nil {
			return nil, Report{}, err
		}

		start := time.Now()
		loss, err := mdl.TrainStep(ex)
		if err != nil {
			return nil, Report{}, errors.Wrapf(err, "step %d", step)
		}
		window.Record(1, time.Since(start), loss)
		report.Steps = step

		if step%cfg.LogEvery == 0 {
			snap := window.Snapshot()
			log.Printf("seed=%d step=%d examples_per_sec=%.0f compute_ms=%.4f mean_loss=%.6f last_loss=%.6f",
				cfg.Seed,
				step,
				snap.ExamplesPerSec,
				snap.AvgComputeMS,
				snap.MeanLoss,
				snap.LastLoss,
			)
		}
	}

	for i := range report.Anchors {
		a := &report.Anchors[i]
		out, err := mdl.Predict(a.Example.Input)
		if err != nil {
			return nil, Report{}, err
		}
		a.After = out
		a.DistanceAfter = floats.Distance(out, a.Example.Target, 2)
	}
	return mdl, report, nil
}

// RunReplicas trains n independent kernels concurrently, seeding replica i
// with cfg.Seed+i. It returns every report and the index of the replica with
// the lowest mean anchor distance.
func RunReplicas(ctx context.Context, cfg RunConfig, set dataset.Set, n int) ([]*model.MLP, []Report, int, error) {
	if n <= 0 {
		return nil, nil, 0, errors.Errorf("trainer: replicas must be > 0 (got %d)", n)
	}
	models := make([]*model.MLP, n)
	reports := make([]Report, n)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			rc := cfg
			rc.Seed = cfg.Seed + int64(i)
			mdl, rep, err := Run(gctx, rc, set)
			if err != nil {
				return errors.Wrapf(err, "replica %d", i)
			}
			models[i] = mdl
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, 0, err
	}

	best := 0
	for i := range reports {
		if reports[i].MeanDistance() < reports[best].MeanDistance() {
			best = i
		}
	}
	return models, reports, best, nil
}

func nextExample(ctx context.Context, samples <-chan model.Example) (model.Example, error) {
	select {
	case <-ctx.Done():
		return model.Example{}, ctx.Err()
	case ex, ok := <-samples:
		if !ok {
			if err := ctx.Err(); err != nil {
				return model.Example{}, err
			}
			return model.Example{}, errors.New("sampler closed")
		}
		return ex, nil
	}
}
