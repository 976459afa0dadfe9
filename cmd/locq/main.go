package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	agentrun "github.com/brdigitals4u/ttm-eld-mobile-sub000/internal/cmd/agent"
	clientcmd "github.com/brdigitals4u/ttm-eld-mobile-sub000/internal/cmd/client"
	cfgpkg "github.com/brdigitals4u/ttm-eld-mobile-sub000/internal/config"
	pebblestore "github.com/brdigitals4u/ttm-eld-mobile-sub000/internal/storage/pebble"
	logpkg "github.com/brdigitals4u/ttm-eld-mobile-sub000/pkg/log"
	"github.com/spf13/cobra"
)

func main() {
	// Respect LOCQ_LOG_LEVEL for both CLI and agent start output
	level := os.Getenv("LOCQ_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)

	// Redirect standard library logs (used by Pebble) to our logger
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "locq",
		Short: "locq location queue CLI",
		Long:  "locq is a durable outbound location queue. This CLI manages the agent and queue operations.",
	}

	// agent start
	agentCmd := &cobra.Command{Use: "agent", Short: "Agent commands"}
	agentStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the locq agent (queue, auto-flush, HTTP API)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			httpAddr, _ := cmd.Flags().GetString("http")
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")
			configPath, _ := cmd.Flags().GetString("config")
			noAutoFlush, _ := cmd.Flags().GetBool("no-autoflush")

			mode := pebblestore.FsyncModeAlways
			switch fsyncMode {
			case "never":
				mode = pebblestore.FsyncModeNever
			case "always":
				mode = pebblestore.FsyncModeAlways
			default:
				return fmt.Errorf("invalid --fsync; use always|never")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfgpkg.FromEnv(&cfg)
			if logLevel != "" {
				_ = os.Setenv("LOCQ_LOG_LEVEL", logLevel)
			}
			if logFormat != "" {
				_ = os.Setenv("LOCQ_LOG_FORMAT", logFormat)
			}
			if err := agentrun.Run(ctx, agentrun.Options{
				DataDir:   dataDir,
				HTTPAddr:  httpAddr,
				Fsync:     mode,
				Config:    cfg,
				AutoFlush: !noAutoFlush,
			}); err != nil {
				return fmt.Errorf("agent error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	agentStartCmd.Flags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	agentStartCmd.Flags().String("http", ":8787", "HTTP listen address for the control API")
	agentStartCmd.Flags().String("fsync", "always", "Fsync mode: always|never")
	agentStartCmd.Flags().String("log-level", os.Getenv("LOCQ_LOG_LEVEL"), "Log level: debug|info|warn|error")
	agentStartCmd.Flags().String("log-format", os.Getenv("LOCQ_LOG_FORMAT"), "Log format: text|json (default text)")
	agentStartCmd.Flags().String("config", os.Getenv("LOCQ_CONFIG"), "Config file path (JSON or YAML)")
	agentStartCmd.Flags().Bool("no-autoflush", false, "Disable the recurring flush timer")
	agentCmd.AddCommand(agentStartCmd)
	rootCmd.AddCommand(agentCmd)

	// queue commands (in internal/cmd/client)
	rootCmd.AddCommand(clientcmd.NewQueueCommand(apiURL))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func apiURL() string {
	if v := os.Getenv("LOCQ_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8787"
}
