package configcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vincenthz/ThinkMate/pkg/cliui"
	"github.com/vincenthz/ThinkMate/pkg/config"
)

const setLongDesc string = `Set a configuration value.

Sets the given key to the provided value in the config.toml file
stored in the .thinkmate/ directory. Keys use dotted notation matching
the TOML section structure.

Values are checked before they are written: providers must be known,
durations use Go syntax ("10s", "1m30s") and chat.title_length must be
a whole number. Generation options (chat.temperature, chat.top_p,
chat.max_tokens, chat.seed) are range checked, and an empty value
unsets them so the backend default applies again.

Examples:
  thinkmate config set backend.provider openai
  thinkmate config set backend.target https://api.openai.com
  thinkmate config set backend.monitor_interval 30s
  thinkmate config set chat.title_length 60
  thinkmate config set chat.temperature 0.2
  thinkmate config set chat.temperature ""`

const setShortDesc string = "Set a configuration value"

func newSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: setShortDesc,
		Long:  setLongDesc,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runSet(cmd.OutOrStdout(), args[0], args[1], configDir)
		},
		ValidArgsFunction: completeKeys,
	}

	return cmd
}

func runSet(w io.Writer, key, value, configDir string) error {
	if !config.IsValidConfigKey(key) {
		return unknownKey(key)
	}

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	printTarget(w, cfger)

	err = cfger.SetConfigValue(key, value)
	if err != nil {
		return err
	}

	shown := value
	if key == "backend.api_key" {
		shown = "<redacted>"
	}
	fmt.Fprintf(w, "  %s Set %s = %s\n\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(key),
		cliui.ValueStyle.Render(shown),
	)
	return nil
}
