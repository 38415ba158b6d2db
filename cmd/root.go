package cmd

import (
	"fmt"
	"os"

	"github.com/killallgit/genesis/pkg/config"
	"github.com/killallgit/genesis/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "genesis",
	Short: "Streaming chat client for a code-generation backend",
	Long: `Chat with a code-generation backend from the terminal.

Replies stream in live, code blocks are highlighted while they are written,
and the code of every request can be exported as a file or zip bundle.`,
	SilenceUsage: true,
}

// loadConfig reads settings and starts logging. Commands call it first.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := logger.Init(); err != nil {
		return nil, err
	}
	logger.WithComponent("cmd").Debug("Configuration loaded", "config_file", config.GetConfigFileUsed(), "store", cfg.Store.Backend)
	return cfg, nil
}

func Execute() {
	err := rootCmd.Execute()
	logger.Close()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", ".genesis/settings.yaml", "config file (default is .genesis/settings.yaml)")

	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level")
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().String("backend", "", "backend base URL (overrides backend.url)")
	viper.BindPFlag("backend.url", rootCmd.PersistentFlags().Lookup("backend"))

	rootCmd.PersistentFlags().String("store", "", "chat store: remote, sqlite, memory or none")
	viper.BindPFlag("store.backend", rootCmd.PersistentFlags().Lookup("store"))
}
