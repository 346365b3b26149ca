// Package cli implements roadstream-cli, the offline companion of the
// server: rendering videos to files and importing existing uploads.
package cli

import (
	"fmt"
	"os"

	"roadstream/internal/config"
	"roadstream/internal/logger"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "roadstream-cli",
	Short:         "Offline tools for the road stream server",
	Long:          `roadstream-cli runs the pothole and lane pipelines over local video files and manages the upload catalogue without starting the server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and prints any error in red.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
	}
	return err
}

func init() {
	rootCmd.AddCommand(NewRenderCommand())
	rootCmd.AddCommand(NewImportCommand())
}

// loadEnv loads the server configuration and a console-only logger.
func loadEnv() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.Nop(), nil
}
