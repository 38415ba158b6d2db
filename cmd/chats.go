/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/killallgit/genesis/pkg/controllers"
	"github.com/spf13/cobra"
)

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "Manage stored chats",
}

// withChats runs fn with a chats controller over the configured store
func withChats(fn func(cmd *cobra.Command, app *App, cc *controllers.ChatsController, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		app, err := NewApp(cfg)
		if err != nil {
			return err
		}
		defer app.Close()
		return fn(cmd, app, controllers.NewChatsController(app.Store, cfg), args)
	}
}

var chatsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List chats, pinned first",
	Args:  cobra.NoArgs,
	RunE: withChats(func(cmd *cobra.Command, app *App, cc *controllers.ChatsController, args []string) error {
		return cc.ListChats(cmd.Context(), os.Stdout)
	}),
}

var chatsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a chat",
	Args:  cobra.ExactArgs(1),
	RunE: withChats(func(cmd *cobra.Command, app *App, cc *controllers.ChatsController, args []string) error {
		return cc.ShowChat(cmd.Context(), args[0], app.Renderer(os.Stdout), os.Stdout)
	}),
}

var chatsRenameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Rename a chat",
	Args:  cobra.MinimumNArgs(2),
	RunE: withChats(func(cmd *cobra.Command, app *App, cc *controllers.ChatsController, args []string) error {
		c, err := cc.RenameChat(cmd.Context(), args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		fmt.Printf("Renamed %s to %q\n", c.ID, c.Title)
		return nil
	}),
}

func pinCommand(use, short string, pinned bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: withChats(func(cmd *cobra.Command, app *App, cc *controllers.ChatsController, args []string) error {
			c, err := cc.PinChat(cmd.Context(), args[0], pinned)
			if err != nil {
				return err
			}
			fmt.Printf("%s pinned=%t\n", c.ID, c.Pinned)
			return nil
		}),
	}
}

var chatsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a chat with its messages and code",
	Args:  cobra.ExactArgs(1),
	RunE: withChats(func(cmd *cobra.Command, app *App, cc *controllers.ChatsController, args []string) error {
		if err := cc.DeleteChat(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	}),
}

func init() {
	chatsCmd.AddCommand(
		chatsListCmd,
		chatsShowCmd,
		chatsRenameCmd,
		pinCommand("pin", "Pin a chat to the top of the list", true),
		pinCommand("unpin", "Unpin a chat", false),
		chatsDeleteCmd,
	)
	rootCmd.AddCommand(chatsCmd)
}
