// Package thinkmatecmder
package thinkmatecmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/vincenthz/ThinkMate/cmd/thinkmate/auth"
	chatcmder "github.com/vincenthz/ThinkMate/cmd/thinkmate/chat"
	configcmder "github.com/vincenthz/ThinkMate/cmd/thinkmate/config"
	historycmder "github.com/vincenthz/ThinkMate/cmd/thinkmate/history"
	initcmder "github.com/vincenthz/ThinkMate/cmd/thinkmate/init"
	modelscmder "github.com/vincenthz/ThinkMate/cmd/thinkmate/models"
	versioncmder "github.com/vincenthz/ThinkMate/cmd/version"
)

const thinkmateLongDesc string = `ThinkMate is a terminal chat client for local and remote language models.

Conversations are streamed from an Ollama or OpenAI compatible server and
saved as they complete, so a session can be resumed later.

Get started with:
  thinkmate init --preset ollama Create ./.thinkmate with a backend preset
  thinkmate chat                 Chat with the configured model
  thinkmate models               List the models the backend serves
  thinkmate history list         List saved conversations
  thinkmate config list          Show the configuration`

const thinkmateShortDesc string = "ThinkMate - terminal chat for language models"

func NewThinkmateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "thinkmate",
		Short:        thinkmateShortDesc,
		Long:         thinkmateLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .thinkmate/ config directory")

	// Add subcommands
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(historycmder.NewHistoryCmd())
	cmd.AddCommand(modelscmder.NewModelsCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
