package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/samuelfneumann/rlroute/config"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rlroute",
		Short: "rlroute learns routing policies for satellite networks",
		Long: `rlroute trains soft actor-critic and deep Q-learning agents that
choose the next hop of packets from graph observations of their
neighbourhood, either online in a simulator or offline from a
snapshot of collected experiences.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "YAML configuration file")
	root.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	root.PersistentFlags().String("checkpoint-dir", "", "Directory of network checkpoints")

	root.AddCommand(newTrainCmd(), newOfflineCmd(), newInspectCmd(),
		newServeCmd(), newVersionCmd())
	return root
}

// loadConfig loads the configuration file given by --config and applies
// the flags set on the command line
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	c := config.Default()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var err error
		if c, err = config.Load(path); err != nil {
			return config.Config{}, err
		}
	}

	if changed(cmd, "log-level") {
		c.Log.Level, _ = cmd.Flags().GetString("log-level")
	}
	if changed(cmd, "checkpoint-dir") {
		c.Training.CheckpointDir, _ = cmd.Flags().GetString("checkpoint-dir")
	}
	if changed(cmd, "episodes") {
		c.Training.Episodes, _ = cmd.Flags().GetInt("episodes")
	}
	if changed(cmd, "offline") {
		c.Training.Offline, _ = cmd.Flags().GetBool("offline")
	}
	if changed(cmd, "train") {
		c.Training.Train, _ = cmd.Flags().GetBool("train")
	}
	return c, c.Validate()
}

func changed(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

// signalContext returns a context cancelled on SIGINT or SIGTERM
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
