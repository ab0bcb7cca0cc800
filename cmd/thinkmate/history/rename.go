package historycmder

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vincenthz/ThinkMate/pkg/cliui"
)

const renameLongDesc string = `Rename a saved conversation.

Examples:
  thinkmate history rename 1 "Trip planning"`

func newRenameCmd() *cobra.Command {
	h := &historyCommander{}

	cmd := &cobra.Command{
		Use:   "rename <n|id> <title>",
		Short: "Rename a saved conversation",
		Long:  renameLongDesc,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.TrimSpace(strings.Join(args[1:], " "))
			if title == "" {
				return errors.New("title is empty")
			}

			ctx := contextOf(cmd)

			driver, err := h.openDriver(ctx)
			if err != nil {
				return err
			}
			defer driver.Close()

			c, entry, err := h.load(ctx, driver, args[0])
			if err != nil {
				return err
			}

			c.Title = title
			c.UpdatedAt = time.Now().UTC()
			if err := driver.Save(ctx, c); err != nil {
				return fmt.Errorf("saving conversation: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "  %s Renamed %s to %s\n",
				cliui.SuccessMark,
				cliui.DimStyle.Render(entry.Title),
				cliui.NameStyle.Render(title),
			)
			return nil
		},
	}
	h.bind(cmd)

	return cmd
}
