package historycmder

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vincenthz/ThinkMate/pkg/cliui"
	"github.com/vincenthz/ThinkMate/pkg/registry"
)

const listLongDesc string = `List saved conversations, most recently updated first.

The conversation the next chat session resumes is marked. Records that
cannot be read are counted and skipped.

Examples:
  thinkmate history list
  thinkmate history list --sqlite ./chats.db --storage sqlite`

func newListCmd() *cobra.Command {
	h := &historyCommander{}

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved conversations",
		Long:    listLongDesc,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := contextOf(cmd)

			driver, err := h.openDriver(ctx)
			if err != nil {
				return err
			}
			defer driver.Close()

			reg := registry.New(driver, h.logger)
			if err := reg.Refresh(ctx); err != nil {
				return fmt.Errorf("listing conversations: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out)
			cliui.PrintEntries(out, reg.Entries(), reg.Skipped(), h.activeID(), time.Now())
			fmt.Fprintln(out)
			return nil
		},
	}
	h.bind(cmd)

	return cmd
}
