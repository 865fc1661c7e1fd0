package main

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"domino/internal/config"
	dlog "domino/internal/log"
)

var (
	configFile string
	logLevel   string

	conf   *config.Config
	logger *log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "domino",
	Short: "Draw and block dominoes played to a target score",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			c.Log.Level = logLevel
		}
		conf = c
		logger = dlog.New("domino", conf.Log.Level)
		logger.Debug("config loaded", "file", configFile, "players", conf.Match.Players, "target", conf.Match.TargetScore)
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	rootCmd.AddCommand(playCmd(), simulateCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if logger != nil {
			logger.Error("command failed", "err", err)
		}
		os.Exit(1)
	}
}
