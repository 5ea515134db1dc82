package main

import (
	"context"
	"fmt"
	"log"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"ecokernel/internal/config"
	"ecokernel/internal/dataset"
	"ecokernel/internal/model"
	"ecokernel/internal/trainer"
)

type rootFlags struct {
	cfgPath   string
	overrides config.Overrides
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "ecokernel",
		Short:         "Train and query a small sigmoid perceptron",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&f.cfgPath, "config", "configs/demo.yaml", "Path to YAML config")
	pf.IntVar(&f.overrides.Iterations, "iterations", 0, "Number of online training steps")
	pf.Int64Var(&f.overrides.Seed, "seed", 0, "PRNG seed")
	pf.Float64Var(&f.overrides.LearningRate, "learning-rate", 0, "Update step size")
	pf.IntVar(&f.overrides.LogEvery, "log-every", 0, "Log every N steps")
	pf.IntVar(&f.overrides.Replicas, "replicas", 0, "Independent kernels to train in parallel")
	pf.StringVar(&f.overrides.Examples, "examples", "", "Example set file or directory")

	root.AddCommand(newTrainCmd(f), newPredictCmd(f))
	return root
}

func newTrainCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Train on the configured examples and report anchor distances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, reports, best, err := train(cmd.Context(), f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, rep := range reports {
				marker := ""
				if i == best {
					marker = " (best)"
				}
				fmt.Fprintf(out, "replica=%d seed=%d mean_distance=%.6f%s\n", i, rep.Seed, rep.MeanDistance(), marker)
			}
			for _, a := range reports[best].Anchors {
				fmt.Fprintf(out, "input=%v target=%v predicted=%.4f distance=%.6f->%.6f\n",
					a.Example.Input, a.Example.Target, a.After, a.DistanceBefore, a.DistanceAfter)
			}
			return nil
		},
	}
}

func newPredictCmd(f *rootFlags) *cobra.Command {
	var input []float64
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Train as configured, then evaluate --input",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mdl, _, _, err := train(cmd.Context(), f)
			if err != nil {
				return err
			}
			pred, err := mdl.Predict(input)
			if err != nil {
				return errors.Wrap(err, "predict")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%.6f\n", pred)
			return nil
		},
	}
	cmd.Flags().Float64SliceVar(&input, "input", nil, "Comma separated input vector")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// train loads the config and examples and returns the best replica.
func train(ctx context.Context, f *rootFlags) (*model.MLP, []trainer.Report, int, error) {
	cfg, err := config.Load(f.cfgPath)
	if err != nil {
		return nil, nil, 0, err
	}
	cfg.ApplyOverrides(f.overrides)
	if err := cfg.Validate(); err != nil {
		return nil, nil, 0, errors.Wrap(err, "invalid config")
	}

	set := dataset.DefaultAnchors()
	if cfg.Examples != "" {
		set, err = dataset.Load(cfg.Examples)
		if err != nil {
			return nil, nil, 0, err
		}
	}
	log.Printf("topology=%d-%d-%d examples=%d iterations=%d replicas=%d learning_rate=%v",
		cfg.InputSize, cfg.HiddenSize, cfg.OutputSize, len(set.Examples), cfg.Iterations, cfg.Replicas, cfg.LearningRate)

	runCfg := trainer.RunConfig{
		Topology:     cfg.Topology(),
		LearningRate: cfg.LearningRate,
		Seed:         cfg.Seed,
		Iterations:   cfg.Iterations,
		LogEvery:     cfg.LogEvery,
	}
	models, reports, best, err := trainer.RunReplicas(ctx, runCfg, set, cfg.Replicas)
	if err != nil {
		return nil, nil, 0, errors.Wrap(err, "training failed")
	}
	return models[best], reports, best, nil
}
