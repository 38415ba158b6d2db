/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/killallgit/genesis/pkg/chat"
	"github.com/killallgit/genesis/pkg/controllers"
	"github.com/killallgit/genesis/pkg/logger"
	"github.com/killallgit/genesis/pkg/session"
	"github.com/spf13/cobra"
)

type chatOptions struct {
	model  string
	chatID string
	live   bool
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat",
	Long: `Start an interactive chat. Lines are sent as turns; lines starting
with a slash are commands (type /help to list them).`,
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

		model, _ := cmd.Flags().GetString("model")
		chatID, _ := cmd.Flags().GetString("chat")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		return runChat(ctx, app, os.Stdin, os.Stdout, chatOptions{
			model:  model,
			chatID: chatID,
			live:   isTerminal(os.Stdout),
		})
	},
}

const chatHelp = `Commands:
  /new                 start a new chat
  /load <id>           open a stored chat
  /chats               list stored chats
  /model <name>        switch model (Auto lets the backend choose)
  /attach <path>       attach an image to the next turn
  /codes               list the code generated per request
  /export <n> <path>   write the code of request n to path
  /quit                leave`

// runChat reads turns and commands from in until /quit or EOF
func runChat(ctx context.Context, app *App, in io.Reader, out io.Writer, opts chatOptions) error {
	log := logger.WithComponent("chat_repl")
	sess := app.NewSession()
	printer := newTurnPrinter(out, app.Renderer(out), opts.live)
	chats := controllers.NewChatsController(app.Store, app.Config)
	defer sess.WaitTitle()

	model := opts.model
	if opts.chatID != "" {
		if err := sess.LoadChat(ctx, opts.chatID); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		} else {
			printConversation(out, app, sess)
		}
	}

	var attachments []chat.Attachment
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		raw := scanner.Text()
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			err := runTurn(ctx, sess, printer, raw, attachments, model)
			attachments = nil
			if ctx.Err() != nil {
				return nil
			}
			if err != nil {
				log.Debug("Turn failed", "error", err)
			}
			continue
		}

		name, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)
		switch name {
		case "/quit", "/exit":
			return nil
		case "/help":
			fmt.Fprintln(out, chatHelp)
		case "/new":
			if err := sess.NewChat(); err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			attachments = nil
			printer.reset()
			fmt.Fprintln(out, "Nuevo chat")
		case "/load":
			if arg == "" {
				fmt.Fprintln(out, "Usage: /load <id>")
				continue
			}
			if err := sess.LoadChat(ctx, arg); err != nil {
				log.Debug("Load failed", "chat_id", arg, "error", err)
			}
			printer.reset()
			printConversation(out, app, sess)
		case "/chats":
			if err := chats.ListChats(ctx, out); err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
			}
		case "/model":
			if arg == "" {
				fmt.Fprintf(out, "Model: %s\n", displayModel(app, model))
				continue
			}
			model = arg
			fmt.Fprintf(out, "Model: %s\n", displayModel(app, model))
		case "/attach":
			a, err := readAttachment(arg)
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			attachments = append(attachments, a)
			fmt.Fprintf(out, "Attached %s\n", a.Name)
		case "/codes":
			controllers.ListCodes(out, sess.CodeRequests())
		case "/export":
			n, path, err := parseExportArgs(strings.Fields(arg))
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			written, err := controllers.ExportCodes(sess.CodeRequests(), n, path)
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "Wrote %s\n", written)
		default:
			fmt.Fprintf(out, "Unknown command %s\n%s\n", name, chatHelp)
		}
	}
}

func printConversation(out io.Writer, app *App, sess *session.Session) {
	r := app.Renderer(out)
	if title := sess.Title(); title != "" {
		fmt.Fprintln(out, title)
	}
	for _, msg := range sess.Messages() {
		fmt.Fprintln(out, r.Message(msg))
	}
}

func displayModel(app *App, model string) string {
	if model == "" {
		model = app.Config.Models.Default
	}
	if model == "" {
		model = app.Config.Models.AutoAlias
	}
	return model
}

// readAttachment loads an image file for a turn
func readAttachment(path string) (chat.Attachment, error) {
	if path == "" {
		return chat.Attachment{}, errors.New("no file given")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return chat.Attachment{}, fmt.Errorf("failed to read attachment: %w", err)
	}
	return chat.Attachment{
		Name:        filepath.Base(path),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Data:        data,
	}, nil
}

func parseExportArgs(args []string) (int, string, error) {
	if len(args) != 2 {
		return 0, "", errors.New("usage: <request number> <path>")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, "", fmt.Errorf("invalid request number %q", args[0])
	}
	return n, args[1], nil
}

func init() {
	chatCmd.Flags().StringP("model", "m", "", "model to use (default is models.default, then Auto)")
	chatCmd.Flags().String("chat", "", "stored chat to continue")
	rootCmd.AddCommand(chatCmd)
}
