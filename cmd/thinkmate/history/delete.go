package historycmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vincenthz/ThinkMate/pkg/cliui"
	"github.com/vincenthz/ThinkMate/pkg/dotdir"
)

const deleteLongDesc string = `Delete a saved conversation.

Examples:
  thinkmate history delete 3
  thinkmate history delete 019a3c`

func newDeleteCmd() *cobra.Command {
	h := &historyCommander{}

	cmd := &cobra.Command{
		Use:     "delete <n|id>",
		Aliases: []string{"rm"},
		Short:   "Delete a saved conversation",
		Long:    deleteLongDesc,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := contextOf(cmd)

			driver, err := h.openDriver(ctx)
			if err != nil {
				return err
			}
			defer driver.Close()

			_, entry, err := h.resolve(ctx, driver, args[0])
			if err != nil {
				return err
			}

			if err := driver.Delete(ctx, entry.ID); err != nil {
				return fmt.Errorf("deleting conversation: %w", err)
			}

			// The next chat session must not try to resume it.
			if h.activeID() == entry.ID {
				_ = dotdir.NewManager().ClearSession(h.configDir)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "  %s Deleted %s\n",
				cliui.SuccessMark,
				cliui.NameStyle.Render(entry.Title),
			)
			return nil
		},
	}
	h.bind(cmd)

	return cmd
}
