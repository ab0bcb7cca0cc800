// Package authcmder provides the auth command for storing backend API keys.
package authcmder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vincenthz/ThinkMate/pkg/cliui"
	"github.com/vincenthz/ThinkMate/pkg/config"
	"github.com/vincenthz/ThinkMate/pkg/credentials"
)

const authLongDesc string = `Store API keys for OpenAI compatible backends.

Keys are stored per endpoint host in credentials.toml in the .thinkmate/
directory, readable only by you. Without a target the configured
backend.target is used.

A key set in THINKMATE_BACKEND_API_KEY or backend.api_key takes
precedence over a stored key; OPENAI_API_KEY is used when neither is set.

Examples:
  thinkmate auth                              Prompt for the configured backend's key
  thinkmate auth https://api.groq.com/openai  Prompt for another endpoint's key
  thinkmate auth --list                       List endpoints with stored keys
  thinkmate auth --remove api.openai.com      Remove a stored key
  echo $KEY | thinkmate auth                  Pipe the key from stdin`

const authShortDesc string = "Store API keys for OpenAI compatible backends"

func NewAuthCmd() *cobra.Command {
	var listFlag bool
	var removeFlag string

	cmd := &cobra.Command{
		Use:   "auth [target]",
		Short: authShortDesc,
		Long:  authLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			out := cmd.OutOrStdout()

			switch {
			case listFlag:
				return runList(out, configDir)
			case removeFlag != "":
				return runRemove(out, removeFlag, configDir)
			}

			target := ""
			if len(args) == 1 {
				target = args[0]
			} else {
				v, err := config.InitViper(configDir)
				if err != nil {
					return fmt.Errorf("loading config: %w", err)
				}
				target = config.FromViper(v).Backend.Target
			}
			return runAuth(cmd.InOrStdin(), out, target, configDir)
		},
	}

	cmd.Flags().BoolVar(&listFlag, "list", false, "List endpoints with stored keys")
	cmd.Flags().StringVar(&removeFlag, "remove", "", "Remove the stored key for an endpoint")

	return cmd
}

func runAuth(in io.Reader, out io.Writer, target, configDir string) error {
	host, err := credentials.HostKey(target)
	if err != nil {
		return err
	}

	apiKey, err := readAPIKey(in, out, host)
	if err != nil {
		return err
	}

	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return errors.New("API key cannot be empty")
	}

	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	if err := mgr.SetKey(host, apiKey); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n  %s Stored API key for %s %s\n\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(host),
		cliui.DimStyle.Render("("+mgr.GetTarget()+")"),
	)
	return nil
}

func runList(out io.Writer, configDir string) error {
	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	hosts, err := mgr.ListHosts()
	if err != nil {
		return err
	}

	if len(hosts) == 0 {
		fmt.Fprintf(out, "\n  %s No stored API keys.\n", cliui.DimStyle.Render("●"))
		fmt.Fprintf(out, "  Use 'thinkmate auth [target]' to store one.\n\n")
		return nil
	}

	fmt.Fprintf(out, "\n  %s\n\n", cliui.HeaderStyle.Render("Stored API keys"))
	for _, h := range hosts {
		fmt.Fprintf(out, "  %s  %s\n", cliui.SuccessMark, cliui.NameStyle.Render(h))
	}
	fmt.Fprintln(out)

	return nil
}

func runRemove(out io.Writer, target, configDir string) error {
	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	if err := mgr.RemoveKey(target); err != nil {
		return err
	}

	host, _ := credentials.HostKey(target)
	fmt.Fprintf(out, "\n  %s Removed API key for %s.\n\n", cliui.SuccessMark, cliui.NameStyle.Render(host))

	return nil
}

// readAPIKey reads an API key from in. A terminal is prompted with hidden
// input; anything else has its first line read.
func readAPIKey(in io.Reader, out io.Writer, host string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(out, "Enter API key for %s: ", host)

		keyBytes, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out) // newline after hidden input
		if err != nil {
			return "", fmt.Errorf("reading API key: %w", err)
		}
		return string(keyBytes), nil
	}

	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return "", errors.New("no input received on stdin")
}
