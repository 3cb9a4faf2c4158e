package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"edgesync/internal/logging"
	"edgesync/internal/sink"
)

var monitorWatch bool

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Sample the link and print conditions with a quality score",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath, schemaPath, cmd.Flags().Changed("config"))
		if err != nil {
			return err
		}
		log, err := logging.NewWithLevel(cfg.Experiment.LogLevel, os.Stderr)
		if err != nil {
			return err
		}
		mon, err := newMonitor(cfg, sink.NewStdoutWriter(os.Stdout), log)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if !monitorWatch {
			mon.CurrentConditions(ctx)
			return nil
		}
		mon.Run(ctx)
		return nil
	},
}

func init() {
	monitorCmd.Flags().BoolVar(&monitorWatch, "watch", false, "Keep sampling on the configured interval")
}
