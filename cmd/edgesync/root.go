package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	schemaPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "edgesync",
	Short: "Network-aware edge-to-cloud sync scheduler",
	Long:  "EdgeSync samples link quality and schedules edge data synchronization around it.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadDotEnv(envFile, cmd.Flags().Changed("env-file"))
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadDotEnv loads path into the environment. A missing default file is
// ignored; a missing file named on the command line is an error.
func loadDotEnv(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if explicit {
			return err
		}
		return nil
	}
	return godotenv.Load(path)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/edgesync.yaml", "Path to configuration YAML")
	rootCmd.PersistentFlags().StringVar(&schemaPath, "schema", "", "Path to CUE schema file (embedded schema when empty)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before the command runs")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dashboardCmd)
}
