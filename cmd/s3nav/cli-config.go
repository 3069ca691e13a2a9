package main

import (
	"fmt"

	"github.com/koustreak/s3nav/internal/logger"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or save connection settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		data, err := yaml.Marshal(app.settings)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", settingsPath, data)
		return nil
	},
}

var configSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Write the effective settings (file plus flags) to the settings file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := app.settings.Validate(); err != nil {
			return err
		}
		if err := app.settings.Save(settingsPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "saved settings to %s\n", settingsPath)
		return nil
	},
}

var configLogDirCmd = &cobra.Command{
	Use:   "logdir",
	Short: "Print the directory log files are written to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dir, err := logger.DefaultLogDir()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), dir)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSaveCmd, configLogDirCmd)
	rootCmd.AddCommand(configCmd)
}
