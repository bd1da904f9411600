package main

import (
	"github.com/samuelfneumann/rlroute/experiment"
	"github.com/samuelfneumann/rlroute/metrics"
	"github.com/spf13/cobra"
)

func newOfflineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offline",
		Short: "Train the configured algorithm on the experience snapshot",
		Args:  cobra.NoArgs,
		RunE:  runOffline,
	}
	cmd.Flags().Int("episodes", 0, "Number of training episodes")
	cmd.Flags().String("algorithm", "", "Learning algorithm: sac or dqn")
	return cmd
}

func runOffline(cmd *cobra.Command, args []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if changed(cmd, "algorithm") {
		a, _ := cmd.Flags().GetString("algorithm")
		if err := c.Training.Algorithm.UnmarshalText([]byte(a)); err != nil {
			return err
		}
	}
	logger, err := c.Logger()
	if err != nil {
		return err
	}
	store, err := c.Store(logger)
	if err != nil {
		return err
	}

	e := c.Experiment()
	e.Offline, e.Train = true, true
	off, err := experiment.NewOffline(store, e, c.Learners(), c.Graph,
		experiment.WithLogger(logger),
		experiment.WithRecorder(metrics.New()),
		experiment.WithProgress(cmd.OutOrStdout()),
	)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()
	return off.Run(ctx)
}
