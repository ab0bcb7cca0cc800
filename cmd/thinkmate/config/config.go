// Package configcmder provides the config command for managing persistent
// thinkmate configuration stored in the .thinkmate/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent thinkmate configuration.

Configuration is stored as config.toml in the .thinkmate/ directory and
provides default values for command flags. CLI flags always take precedence
over config file values.

Keys use dotted notation matching the TOML section structure:
  storage.provider, storage.history_dir, storage.sqlite_path, storage.postgres_dsn,
  backend.provider, backend.target, backend.model, backend.api_key,
  backend.connect_timeout, backend.monitor_interval,
  chat.system_prompt, chat.title_length, chat.plain,
  eventstream.provider, eventstream.brokers, eventstream.topic

Use subcommands to get, set, or list configuration values:
  thinkmate config set <key> <value>    Set a configuration value
  thinkmate config get <key>            Get a configuration value
  thinkmate config list                 List all configuration values

Examples:
  thinkmate config set backend.model llama3.2
  thinkmate config set storage.provider sqlite
  thinkmate config get backend.target
  thinkmate config list`

const configShortDesc string = "Manage persistent thinkmate configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
