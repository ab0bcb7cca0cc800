// Package historycmder provides the history command for inspecting and
// editing stored conversations outside of a chat session.
package historycmder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vincenthz/ThinkMate/pkg/config"
	"github.com/vincenthz/ThinkMate/pkg/conversation"
	"github.com/vincenthz/ThinkMate/pkg/dotdir"
	"github.com/vincenthz/ThinkMate/pkg/logger"
	"github.com/vincenthz/ThinkMate/pkg/registry"
	"github.com/vincenthz/ThinkMate/pkg/storage"
	storageutils "github.com/vincenthz/ThinkMate/pkg/storage/utils"
)

const historyLongDesc string = `Inspect and edit saved conversations.

Conversations are referenced by their number in "thinkmate history list",
by their full id or by a unique id prefix.

Examples:
  thinkmate history list
  thinkmate history show 1
  thinkmate history rename 2 "Trip planning"
  thinkmate history delete 019a3c
  thinkmate history list --storage sqlite`

const historyShortDesc string = "Inspect and edit saved conversations"

var storageFlags = []string{
	config.FlagStorageProvider,
	config.FlagHistoryDir,
	config.FlagSQLite,
	config.FlagPostgres,
}

// historyCommander holds what every history subcommand shares: the resolved
// configuration and the storage flags.
type historyCommander struct {
	configDir string
	debug     bool
	cfg       *config.Config

	storage     string
	historyDir  string
	sqlitePath  string
	postgresDSN string

	logger *slog.Logger
}

func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"hist"},
		Short:   historyShortDesc,
		Long:    historyLongDesc,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newRenameCmd())

	return cmd
}

// bind registers the storage flags on cmd and loads the configuration
// before it runs.
func (h *historyCommander) bind(cmd *cobra.Command) {
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageProvider, &h.storage)
	config.AddStringFlag(cmd, config.Flags, config.FlagHistoryDir, &h.historyDir)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &h.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &h.postgresDSN)

	cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		h.configDir, _ = cmd.Flags().GetString("config-dir")
		h.debug, _ = cmd.Flags().GetBool("debug")

		v, err := config.InitViper(h.configDir)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		config.BindRegisteredFlags(v, cmd, config.Flags, storageFlags)
		h.cfg = config.FromViper(v)

		if h.debug {
			h.logger = logger.New(logger.WithDebug(true), logger.WithFormat(logger.FormatPretty), logger.WithWriter(cmd.ErrOrStderr()), logger.WithComponent("history"))
		} else {
			h.logger = logger.Nop()
		}
		return nil
	}
}

func (h *historyCommander) openDriver(ctx context.Context) (storage.Driver, error) {
	driver, err := storageutils.NewDriver(ctx, h.cfg.Storage, h.configDir, h.logger)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	return driver, nil
}

// resolve lists the store and finds the conversation ref names.
func (h *historyCommander) resolve(ctx context.Context, driver storage.Driver, ref string) (*registry.Registry, storage.Entry, error) {
	reg := registry.New(driver, h.logger)
	if err := reg.Refresh(ctx); err != nil {
		return nil, storage.Entry{}, fmt.Errorf("listing conversations: %w", err)
	}

	entry, err := registry.Resolve(reg.Entries(), strings.TrimSpace(ref))
	if err != nil {
		return nil, storage.Entry{}, fmt.Errorf("%w\n\nSee \"thinkmate history list\" for saved conversations", err)
	}
	return reg, entry, nil
}

// load resolves ref and reads the whole conversation.
func (h *historyCommander) load(ctx context.Context, driver storage.Driver, ref string) (*conversation.Conversation, storage.Entry, error) {
	reg, entry, err := h.resolve(ctx, driver, ref)
	if err != nil {
		return nil, storage.Entry{}, err
	}

	c, err := reg.Load(ctx, entry.ID)
	if err != nil {
		return nil, storage.Entry{}, fmt.Errorf("loading conversation: %w", err)
	}
	return c, entry, nil
}

// activeID is the conversation the next chat session resumes.
func (h *historyCommander) activeID() string {
	state, err := dotdir.NewManager().LoadSession(h.configDir)
	if err != nil || state == nil {
		return ""
	}
	return state.ActiveID
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
