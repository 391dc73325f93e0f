package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smallnest/reelgraph/app"
	"github.com/smallnest/reelgraph/config"
	"github.com/smallnest/reelgraph/monitor"
)

type commandContext struct {
	configFlag string
}

// withMonitor opens the tracker and the configured asset store for one command.
func (c *commandContext) withMonitor(cmd *cobra.Command, fn func(context.Context, *monitor.Monitor) error) error {
	cfg, err := config.Load(strings.TrimSpace(c.configFlag))
	if err != nil {
		return err
	}
	if err := cfg.RequireCredentials(config.NeedDatastore, config.NeedTracker, config.NeedAssets); err != nil {
		return err
	}
	logger, err := app.NewLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	ds, err := app.OpenDatastore(ctx, cfg)
	if err != nil {
		return err
	}
	defer ds.Close()
	tracker, err := app.NewTracker(cfg, ds)
	if err != nil {
		return err
	}
	drive, err := app.NewAssetStore(ctx, cfg)
	if err != nil {
		return err
	}
	return fn(ctx, monitor.New(tracker, drive, logger))
}

func newRootCommand() *cobra.Command {
	c := &commandContext{}
	rootCmd := &cobra.Command{
		Use:           "reelmonitor",
		Short:         "Watch project final_draft folders and mark finished videos",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&c.configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newCheckAllCommand(c))
	rootCmd.AddCommand(newMonitorCommand(c))
	rootCmd.AddCommand(newUpdateCommand(c))
	rootCmd.AddCommand(newSummaryCommand(c))
	return rootCmd
}
