// Package modelscmder provides the models command, which checks that the
// model backend is reachable and lists the models it serves.
package modelscmder

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vincenthz/ThinkMate/pkg/cliui"
	"github.com/vincenthz/ThinkMate/pkg/config"
	"github.com/vincenthz/ThinkMate/pkg/credentials"
	"github.com/vincenthz/ThinkMate/pkg/llm"
	backendutils "github.com/vincenthz/ThinkMate/pkg/llm/backend/utils"
	"github.com/vincenthz/ThinkMate/pkg/logger"
)

type modelsCommander struct {
	configDir string
	cfg       *config.Config

	provider string
	target   string
	model    string
}

var modelsFlags = []string{
	config.FlagBackendProvider,
	config.FlagBackendTarget,
	config.FlagModel,
}

const modelsLongDesc string = `List the models served by the configured backend.

The configured model is marked; a warning is printed when the backend does
not serve it.

Examples:
  thinkmate models
  thinkmate models --target http://gpu-box:11434
  thinkmate models --provider openai --target https://api.openai.com`

const modelsShortDesc string = "List the models served by the backend"

func NewModelsCmd() *cobra.Command {
	cmder := &modelsCommander{}

	cmd := &cobra.Command{
		Use:   "models",
		Short: modelsShortDesc,
		Long:  modelsLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, modelsFlags)
			cmder.cfg = config.FromViper(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return cmder.run(ctx, cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagBackendProvider, &cmder.provider)
	config.AddStringFlag(cmd, config.Flags, config.FlagBackendTarget, &cmder.target)
	config.AddStringFlag(cmd, config.Flags, config.FlagModel, &cmder.model)

	return cmd
}

func (c *modelsCommander) run(ctx context.Context, w io.Writer) error {
	apiKey, err := credentials.ResolveAPIKey(c.cfg.Backend, c.configDir)
	if err != nil {
		return err
	}
	c.cfg.Backend.APIKey = apiKey

	be, err := backendutils.NewBackend(c.cfg.Backend, logger.Nop())
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\n  %s %s\n\n",
		cliui.KeyStyle.Render(be.Name()),
		cliui.DimStyle.Render(c.cfg.Backend.Target),
	)

	var models []llm.Model
	err = cliui.Step(w, "Listing models", func() error {
		ctx, cancel := context.WithTimeout(ctx, c.cfg.Backend.ConnectTimeoutDuration())
		defer cancel()

		var err error
		models, err = be.ListModels(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("backend %s unreachable: %w", c.cfg.Backend.Target, err)
	}

	fmt.Fprintln(w)
	if len(models) == 0 {
		fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render("The backend serves no models."))
	}

	configured := c.cfg.Backend.Model
	for _, m := range models {
		marker := " "
		if m.Name == configured {
			marker = cliui.SuccessMark
		}

		var details []string
		if m.Family != "" {
			details = append(details, m.Family)
		}
		if m.Size > 0 {
			details = append(details, formatSize(m.Size))
		}
		fmt.Fprintf(w, "  %s %s %s\n", marker, cliui.NameStyle.Render(m.Name), cliui.DimStyle.Render(strings.Join(details, ", ")))
	}

	served := slices.ContainsFunc(models, func(m llm.Model) bool { return m.Name == configured })
	if configured != "" && !served {
		fmt.Fprintf(w, "\n  %s %s\n", cliui.WarnMark,
			cliui.WarnStyle.Render(fmt.Sprintf("configured model %q is not served by this backend", configured)))
	}
	fmt.Fprintln(w)

	return nil
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
