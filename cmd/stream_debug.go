package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/killallgit/genesis/pkg/chat"
	"github.com/killallgit/genesis/pkg/config"
	"github.com/killallgit/genesis/pkg/render"
	"github.com/killallgit/genesis/pkg/stream"
	"github.com/spf13/cobra"
)

var streamDebugCmd = &cobra.Command{
	Use:    "stream-debug [file]",
	Short:  "Decode a captured response stream without a backend",
	Hidden: true,
	Args:   cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := io.Reader(os.Stdin)
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		return debugStream(in, cmd.OutOrStdout(), config.Defaults())
	},
}

// debugStream prints every decoded event with the assembler state it
// leads to, then the rendered final message
func debugStream(in io.Reader, out io.Writer, cfg *config.Config) error {
	asm := chat.NewAssembler(chat.NewPlaceholder(), cfg.Stream.NoDiagramSentinel)
	reader := stream.NewReader(in, cfg.Stream.ReadBuffer)

	for {
		events, err := reader.Next()
		for _, ev := range events {
			applyErr := asm.Apply(ev)
			fmt.Fprintf(out, "%-40s -> %s\n", ev, asm.State())
			if applyErr != nil && !errors.Is(applyErr, chat.ErrFinalized) {
				fmt.Fprintf(out, "stream failed: %v\n", applyErr)
				return nil
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read stream: %w", err)
		}
	}

	final := asm.Finalize()
	stats := asm.Stats()
	fmt.Fprintf(out, "\ntokens=%d two_step=%t error=%t\n\n", stats.Tokens, final.IsTwoStep, final.IsError)
	fmt.Fprintln(out, render.New(cfg.Render, render.WithColor(false)).Message(final))
	return nil
}

func init() {
	rootCmd.AddCommand(streamDebugCmd)
}
