/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/killallgit/genesis/pkg/config"
	"github.com/killallgit/genesis/pkg/devserver"
	"github.com/killallgit/genesis/pkg/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a local backend emulator",
	Long: `Run a local emulator of the generation backend. It echoes prompts,
answers diagram requests in auto mode with a two-step reply and serves the
chat API from the configured sqlite or memory store (memory otherwise).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		st, closeStore, err := devserverStore(cfg.Store)
		if err != nil {
			return err
		}
		if closeStore != nil {
			defer closeStore()
		}

		if cfg.Logging.Level != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Dev server listening on %s\n", cfg.DevServer.Addr)
		return devserver.New(devserver.WithStore(st)).ListenAndServe(ctx, cfg.DevServer.Addr)
	},
}

// devserverStore opens the local store for the emulator. A remote or
// disabled store would point back at the emulator itself, so memory is
// used instead.
func devserverStore(cfg config.StoreConfig) (store.Store, func() error, error) {
	switch cfg.Backend {
	case "sqlite", "memory":
		return openStore(cfg, nil)
	default:
		return store.NewMemory(), nil, nil
	}
}

func init() {
	devserverCmd.Flags().String("addr", "", "listen address (overrides devserver.addr)")
	viper.BindPFlag("devserver.addr", devserverCmd.Flags().Lookup("addr"))
	rootCmd.AddCommand(devserverCmd)
}
