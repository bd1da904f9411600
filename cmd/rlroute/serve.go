package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/samuelfneumann/rlroute/agent"
	"github.com/samuelfneumann/rlroute/experiment/checkpointer"
	"github.com/samuelfneumann/rlroute/metrics"
	"github.com/samuelfneumann/rlroute/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a checkpointed learner over HTTP",
		Long: `Loads the checkpointed networks of a learner and serves its greedy
policy at /v1/act, together with /healthz, /metrics and the statistics
of the experience snapshot at /v1/store.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().String("addr", "", "Address to listen on")
	cmd.Flags().String("algorithm", "", "Learning algorithm: sac or dqn")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := c.Logger()
	if err != nil {
		return err
	}

	t := c.Training.Algorithm
	if changed(cmd, "algorithm") {
		a, _ := cmd.Flags().GetString("algorithm")
		if err := t.UnmarshalText([]byte(a)); err != nil {
			return err
		}
	}
	learner, err := c.Learners().New(t, c.Graph, c.Seed)
	if err != nil {
		return err
	}
	if c.Training.CheckpointDir != "" {
		loaded, err := checkpointer.NewDir(c.Training.CheckpointDir).
			Load(learner.Networks())
		if err != nil {
			return err
		}
		logger.Info("loaded checkpoints", "networks", loaded)
	}
	learner.Eval()
	if e, ok := learner.(agent.EGreedy); ok {
		e.SetEpsilon(c.Training.EvalEpsilon)
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithMetrics(metrics.New().Handler()),
	}
	if store, err := c.Store(logger); err == nil {
		if _, err := store.Restore(ctx); err != nil {
			logger.Warn("no experience snapshot", "error", err)
		}
		opts = append(opts, server.WithStore(store))
	}

	addr := c.Metrics.Addr
	if changed(cmd, "addr") {
		addr, _ = cmd.Flags().GetString("addr")
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: server.New(learner, c.Graph, opts...).Handler(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("serving", "addr", addr, "algorithm", t)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
