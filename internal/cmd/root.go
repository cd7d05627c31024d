// Package cmd implements the agentfleet command line.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kandev/agentfleet/internal/common/config"
	"github.com/kandev/agentfleet/internal/common/logger"
)

var (
	configDir string
	envFile   string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "agentfleet",
	Short: "Run coding agent CLIs in the background and track what they do",
	Long: `agentfleet spawns Claude, Codex, Gemini, Cursor and OpenCode CLIs as
background processes grouped by task, parses their streaming output into
per-agent summaries and lets callers poll or stop them over REST, MCP or a
WebSocket event stream.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config-dir", "c", "", "directory containing config.yaml (searched before ., $HOME/.agentfleet and /etc/agentfleet)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before configuration; missing files are ignored")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")
}

// loadConfig reads the env file, then configuration, then builds the logger.
func loadConfig() (*config.Config, *logger.Logger, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg, err := config.LoadWithPath(configDir)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = strings.ToLower(logLevel)
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetDefault(log)
	return cfg, log, nil
}
