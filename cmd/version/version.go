// Package versioncmder
package versioncmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vincenthz/ThinkMate/pkg/utils"
)

type VersionCommander struct{}

func NewVersionCmd() *cobra.Command {
	cmder := &VersionCommander{}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "displays version",
		Long:  "displays the version of the thinkmate CLI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.OutOrStdout())
		},
	}

	return cmd
}

func (c *VersionCommander) run(w io.Writer) error {
	b := utils.BuildInfo()
	fmt.Fprintf(w, "Version: %s\nSha: %s\nBuilt at: %s\n", b.Version, b.Sha, b.Buildtime)
	if b.Modified {
		fmt.Fprintln(w, "Built from a modified tree")
	}
	return nil
}
