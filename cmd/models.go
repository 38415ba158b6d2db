/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/killallgit/genesis/pkg/controllers"
	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List available models",
	Long:  `List the models the backend offers. Auto lets the backend pick one per request.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		app, err := NewApp(cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		controller := controllers.NewModelsController(app.Client, cfg.Models)
		return controller.ListModels(cmd.Context(), os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
