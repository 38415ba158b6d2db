/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"

	"github.com/killallgit/genesis/pkg/chat"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one prompt and print the reply",
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt, _ := cmd.Flags().GetString("prompt")
		if prompt == "" && len(args) > 0 {
			prompt = args[0]
		}
		model, _ := cmd.Flags().GetString("model")
		images, _ := cmd.Flags().GetStringSlice("image")
		if prompt == "" && len(images) == 0 {
			return errors.New("nothing to send: use --prompt or --image")
		}

		attachments := make([]chat.Attachment, 0, len(images))
		for _, path := range images {
			a, err := readAttachment(path)
			if err != nil {
				return err
			}
			attachments = append(attachments, a)
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

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		return runSend(ctx, app, os.Stdout, prompt, attachments, model, isTerminal(os.Stdout))
	},
}

// runSend runs a single turn in a fresh chat. It waits for the chat title
// so the stored chat is complete when it returns.
func runSend(ctx context.Context, app *App, out io.Writer, prompt string, attachments []chat.Attachment, model string, live bool) error {
	sess := app.NewSession()
	printer := newTurnPrinter(out, app.Renderer(out), live)

	err := runTurn(ctx, sess, printer, prompt, attachments, model)
	sess.WaitTitle()
	return err
}

func init() {
	sendCmd.Flags().StringP("prompt", "p", "", "prompt to send")
	sendCmd.Flags().StringP("model", "m", "", "model to use (default is models.default, then Auto)")
	sendCmd.Flags().StringSlice("image", nil, "image file to attach (repeatable)")
	rootCmd.AddCommand(sendCmd)
}
