package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/samuelfneumann/rlroute/environment/synthetic"
	"github.com/samuelfneumann/rlroute/experiment"
	"github.com/samuelfneumann/rlroute/experiment/trackers"
	"github.com/samuelfneumann/rlroute/metrics"
	"github.com/spf13/cobra"
)

func newTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run a learning session in the synthetic simulator",
		Long: `Runs a session in the in-process simulator. The simulator's handshake
selects the learning algorithm. With --offline, the learner is first
trained on the experience snapshot, falling back to online learning
if there is none.`,
		Args: cobra.NoArgs,
		RunE: runTrain,
	}

	cmd.Flags().Int("episodes", 0, "Number of training episodes")
	cmd.Flags().Bool("offline", false, "Train from the experience snapshot")
	cmd.Flags().Bool("train", true, "Train the learner")
	cmd.Flags().String("returns", "", "File to save cumulative rewards to")
	cmd.Flags().Bool("serve-metrics", false, "Serve Prometheus metrics while training")
	return cmd
}

func runTrain(cmd *cobra.Command, args []string) error {
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
	sim, err := synthetic.New(c.Environment, c.Seed)
	if err != nil {
		return err
	}

	rec := metrics.New()
	if serve, _ := cmd.Flags().GetBool("serve-metrics"); serve {
		stop := serveMetrics(c.Metrics.Addr, rec, logger)
		defer stop()
	}

	returns, _ := cmd.Flags().GetString("returns")
	session, err := experiment.NewSession(sim, store, c.Experiment(),
		c.Learners(), c.Graph,
		experiment.WithLogger(logger),
		experiment.WithRecorder(rec),
		experiment.WithTrackers(trackers.NewReturn(returns)),
		experiment.WithProgress(cmd.OutOrStdout()),
	)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()
	return session.Run(ctx)
}

// serveMetrics serves the metrics of rec at addr until the returned
// function is called
func serveMetrics(addr string, rec *metrics.Recorder,
	logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
	}
}
