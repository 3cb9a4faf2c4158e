package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"edgesync/internal/admin"
	"edgesync/internal/logging"
	"edgesync/internal/scheduler"
	"edgesync/internal/workload"
)

var (
	runPrintOnly bool
	runLogFile   string
	runSQLite    string
	runTUI       bool
	runRate      float64
	runDuration  time.Duration
	runAdmin     string
	runDemo      bool
	runSeed      int64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitor and scheduler against a generated workload",
	Long:  "run starts the network monitor, the sync scheduler and the admin API, feeds generated sync events and prints final stats on exit.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath, schemaPath, cmd.Flags().Changed("config"))
		if err != nil {
			return err
		}

		var logOut io.Writer = os.Stderr
		if runTUI {
			logOut = io.Discard
		}
		log, err := logging.NewWithLevel(cfg.Experiment.LogLevel, logOut)
		if err != nil {
			return err
		}
		slog.SetDefault(log)

		writer, cleanup, err := newWriters(cfg, writerOptions{
			printOnly:  runPrintOnly,
			tui:        runTUI,
			logFile:    runLogFile,
			sqlitePath: runSQLite,
		})
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		duration := runDuration
		if duration == 0 {
			duration = cfg.Experiment.RunDuration()
		}
		if duration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, duration)
			defer cancel()
		}
		ctx = logging.NewContext(ctx, log)

		mon, err := newMonitor(cfg, writer, log)
		if err != nil {
			return err
		}
		sched := scheduler.New(schedulerConfig(cfg, log), mon, writer)

		mon.Start(ctx)
		sched.Start(ctx)

		addr := cfg.Admin.Addr
		if runAdmin != "" {
			addr = runAdmin
		}
		if cfg.Admin.Enabled || runAdmin != "" {
			srv := admin.NewServer(sched, mon, log)
			go func() {
				if err := srv.Start(ctx, addr); err != nil {
					log.Error("admin server failed", "err", err)
				}
			}()
		}

		if runDemo {
			go submitDemo(ctx, sched)
		} else {
			seed := runSeed
			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			gen := workload.NewGenerator(seed, []string{cfg.Sync.NodeID}, cfg.Experiment.WorkloadTypes)
			go gen.Feed(ctx, sched, runRate)
		}

		interval := time.Duration(cfg.Experiment.DataCollectionInterval * float64(time.Second))
		go feedbackLoop(ctx, sched, interval)

		log.Info("edgesync running", "node", cfg.Sync.NodeID, "duration", duration)
		<-ctx.Done()

		sched.Stop()
		mon.Stop()
		log.Info("edgesync stopped")

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sched.PerformanceStats())
	},
}

// feedbackLoop reports the observed success rate on every interval so the
// scheduler can tune its weights.
func feedbackLoop(ctx context.Context, s *scheduler.Scheduler, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if st := s.PerformanceStats(); st.TotalSyncs > 0 {
				s.ReportFeedback(st.SuccessRate)
			}
		}
	}
}

// submitDemo submits the fixed demo mix, staggered by half a second.
func submitDemo(ctx context.Context, s *scheduler.Scheduler) {
	log := logging.FromContext(ctx)
	for _, ev := range workload.Demo(time.Now()) {
		if err := s.Submit(ev); err != nil {
			log.Warn("demo submit failed", "data_id", ev.DataID, "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func init() {
	runCmd.Flags().BoolVar(&runPrintOnly, "print-only", false, "Print results to STDOUT instead of writing to DB")
	runCmd.Flags().StringVar(&runLogFile, "log-file", "", "Path to export results/conditions logs (JSONL)")
	runCmd.Flags().StringVar(&runSQLite, "sqlite", "", "Path to a local SQLite results store")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Render a live terminal dashboard")
	runCmd.Flags().Float64Var(&runRate, "rate", 2, "Generated events per second")
	runCmd.Flags().DurationVar(&runDuration, "duration", 0, "Run length (defaults to experiment.experiment_duration)")
	runCmd.Flags().StringVar(&runAdmin, "admin", "", "Admin API listen address (enables the API)")
	runCmd.Flags().BoolVar(&runDemo, "demo", false, "Submit the fixed five-event demo instead of a generated workload")
	runCmd.Flags().Int64Var(&runSeed, "seed", 0, "Workload generator seed (time based when 0)")
}
