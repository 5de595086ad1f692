// Command gopherchat serves and drives the chat backend.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/suPer8Hu/gopherchat/internal/config"
	"github.com/suPer8Hu/gopherchat/internal/logger"
)

var (
	version = "0.1.0"

	configPath string
	cfg        *config.Config
	log        *slog.Logger
	logCloser  io.Closer
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gopherchat",
		Short: "Single-user AI chat backend",
		Long: `GopherChat keeps a collection of conversations with an AI assistant
and streams replies from OpenRouter or Ollama.

Configuration comes from gopherchat.yaml (or --config) and environment
variables such as OPENROUTER_API_KEY, DB_DSN and STORE_BACKEND.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(configPath)
			if err != nil {
				return err
			}
			l, closer, err := logger.Setup(c.Log)
			if err != nil {
				return err
			}
			cfg, log, logCloser = c, l, closer
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logCloser != nil {
				_ = logCloser.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (default ./gopherchat.yaml)")

	rootCmd.AddCommand(
		serveCmd(),
		chatCmd(),
		exportCmd(),
		importCmd(),
		modelsCmd(),
		eventsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
