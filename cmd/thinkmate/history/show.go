package historycmder

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vincenthz/ThinkMate/pkg/cliui"
)

const showLongDesc string = `Print a saved conversation.

Assistant replies are rendered as markdown when writing to a terminal,
unless chat.plain is set or --plain is given.

Examples:
  thinkmate history show 1
  thinkmate history show 019a3c --plain`

func newShowCmd() *cobra.Command {
	h := &historyCommander{}
	var plain bool

	cmd := &cobra.Command{
		Use:   "show <n|id>",
		Short: "Print a saved conversation",
		Long:  showLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := contextOf(cmd)

			driver, err := h.openDriver(ctx)
			if err != nil {
				return err
			}
			defer driver.Close()

			c, _, err := h.load(ctx, driver, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			opts := cliui.TranscriptOptions{Width: 80}
			if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
				opts.Markdown = !plain && !h.cfg.Chat.Plain
				if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
					opts.Width = w
				}
			}

			cliui.PrintTranscript(out, c, opts)
			return nil
		},
	}
	h.bind(cmd)
	cmd.Flags().BoolVar(&plain, "plain", false, "Print replies without markdown rendering")

	return cmd
}
