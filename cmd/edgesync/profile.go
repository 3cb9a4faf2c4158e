package main

import (
	"os"

	"github.com/spf13/cobra"

	"edgesync/internal/profile"
)

var profileFormat string

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Print the testbed topology profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath, schemaPath, cmd.Flags().Changed("config"))
		if err != nil {
			return err
		}
		return profile.Write(os.Stdout, profile.Build(cfg.Cluster), profileFormat)
	},
}

func init() {
	profileCmd.Flags().StringVar(&profileFormat, "format", "yaml", "Output format (yaml|json)")
}
