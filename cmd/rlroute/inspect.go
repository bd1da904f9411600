package main

import (
	"fmt"
	"io"

	"github.com/samuelfneumann/rlroute/timestep"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Summarise the experience snapshot",
		Args:  cobra.NoArgs,
		RunE:  runInspect,
	}
}

func runInspect(cmd *cobra.Command, args []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := c.Logger()
	if err != nil {
		return err
	}
	store, err := c.Store(logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()
	if _, err := store.Restore(ctx); err != nil {
		return err
	}

	summarize(store.Transitions(), store.Weights()).write(cmd.OutOrStdout(),
		store.Capacity())
	return nil
}

// summary describes a collection of transitions
type summary struct {
	size  int
	dones int

	weightMean, weightStd float64
	weightMin, weightMax  float64
	rewardMean, rewardStd float64

	// actions counts how often each link was chosen
	actions []int
}

func summarize(transitions []timestep.Transition,
	weights []float64) summary {
	s := summary{size: len(transitions)}
	if s.size == 0 {
		return s
	}

	rewards := make([]float64, len(transitions))
	for i, t := range transitions {
		rewards[i] = t.Reward
		if t.Done {
			s.dones++
		}
		if n := len(t.Action.Probabilities); n > len(s.actions) {
			s.actions = append(s.actions, make([]int, n-len(s.actions))...)
		}
		if t.Action.Index >= 0 && t.Action.Index < len(s.actions) {
			s.actions[t.Action.Index]++
		}
	}

	s.rewardMean, s.rewardStd = stat.MeanStdDev(rewards, nil)
	if len(weights) > 0 {
		s.weightMean, s.weightStd = stat.MeanStdDev(weights, nil)
		s.weightMin, s.weightMax = floats.Min(weights), floats.Max(weights)
	}
	if s.size == 1 {
		s.rewardStd, s.weightStd = 0, 0
	}
	return s
}

func (s summary) write(w io.Writer, capacity int) {
	fmt.Fprintf(w, "transitions: %d/%d\n", s.size, capacity)
	if s.size == 0 {
		return
	}
	fmt.Fprintf(w, "terminal:    %d\n", s.dones)
	fmt.Fprintf(w, "reward:      mean %.4f  std %.4f\n", s.rewardMean,
		s.rewardStd)
	fmt.Fprintf(w, "weight:      mean %.4f  std %.4f  min %.4f  max %.4f\n",
		s.weightMean, s.weightStd, s.weightMin, s.weightMax)
	for i, n := range s.actions {
		fmt.Fprintf(w, "link %d:      %d (%.1f%%)\n", i, n,
			100*float64(n)/float64(s.size))
	}
}
