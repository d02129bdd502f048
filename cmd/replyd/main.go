// Command replyd runs the search-and-reply bot and its maintenance tools.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/replyd/autoreply"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "replyd",
	Short:         "Reply to matching posts from a live search feed",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "replyd.yaml", "path to the YAML configuration")
	rootCmd.PersistentFlags().String("log-level", "", "override log_level: debug, info, warn or error")
	rootCmd.AddCommand(runCmd, checkCmd, repliedCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads and validates the file named by --config.
func loadConfig(cmd *cobra.Command) (*autoreply.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := autoreply.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
