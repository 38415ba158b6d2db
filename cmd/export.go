/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/killallgit/genesis/pkg/controllers"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export <chatId> <requestN> <path>",
	Short: "Write the code of one request of a stored chat",
	Long: `Write the code produced for request N (counting from 1) of a stored
chat. A single block is written as a plain file, several blocks as a zip
bundle. When path is a directory the export is named after the request.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid request number %q", args[1])
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		app, err := NewApp(cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		return runExport(cmd.Context(), app, cmd.OutOrStdout(), args[0], n, args[2])
	},
}

func runExport(ctx context.Context, app *App, out io.Writer, chatID string, n int, path string) error {
	sess := app.NewSession()
	if err := sess.LoadChat(ctx, chatID); err != nil {
		return err
	}

	written, err := controllers.ExportCodes(sess.CodeRequests(), n, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %s\n", written)
	return nil
}

func init() {
	rootCmd.AddCommand(exportCmd)
}
