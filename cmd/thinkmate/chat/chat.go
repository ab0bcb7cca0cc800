// Package chatcmder provides the chat command: an interactive session
// driving the conversation engine.
package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vincenthz/ThinkMate/pkg/config"
	"github.com/vincenthz/ThinkMate/pkg/credentials"
	"github.com/vincenthz/ThinkMate/pkg/dotdir"
	"github.com/vincenthz/ThinkMate/pkg/engine"
	eventstreamutils "github.com/vincenthz/ThinkMate/pkg/eventstream/utils"
	"github.com/vincenthz/ThinkMate/pkg/llm"
	backendutils "github.com/vincenthz/ThinkMate/pkg/llm/backend/utils"
	"github.com/vincenthz/ThinkMate/pkg/logger"
	"github.com/vincenthz/ThinkMate/pkg/monitor"
	storageutils "github.com/vincenthz/ThinkMate/pkg/storage/utils"
	"github.com/vincenthz/ThinkMate/pkg/utils"
)

const shutdownTimeout = 5 * time.Second

type chatCommander struct {
	configDir string
	debug     bool
	fresh     bool
	cfg       *config.Config

	// Flag targets; the resolved values are read back through viper.
	provider     string
	target       string
	model        string
	storage      string
	historyDir   string
	sqlitePath   string
	postgresDSN  string
	systemPrompt string
	titleLength  uint

	logger *slog.Logger
}

var chatFlags = []string{
	config.FlagBackendProvider,
	config.FlagBackendTarget,
	config.FlagModel,
	config.FlagStorageProvider,
	config.FlagHistoryDir,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagSystemPrompt,
	config.FlagTitleLength,
}

const chatLongDesc string = `Start an interactive chat session.

Replies stream as they are generated. Every finished turn is saved to the
conversation history, and the last active conversation is resumed on the
next run unless --new is given.

Press Ctrl+C while a reply is streaming to stop it; the partial reply is
kept. Press Ctrl+C at the prompt, type /exit or send EOF (Ctrl+D) to quit.

Commands:
  /new                 Start a new conversation
  /list                List saved conversations
  /switch <n|id>       Switch to a saved conversation
  /delete <n|id>       Delete a saved conversation
  /rename <title>      Rename the active conversation
  /show                Print the active conversation
  /retry               Retry the last failed reply
  /cancel              Stop the streaming reply
  /save                Retry a failed save
  /models              Show backend status and models
  /help                Show commands
  /exit                Quit

Examples:
  thinkmate chat
  thinkmate chat --model llama3.2
  thinkmate chat --provider openai --target https://api.openai.com --model gpt-4o-mini
  thinkmate chat --storage sqlite --new`

const chatShortDesc string = "Interactive chat with a local or remote model"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, chatFlags)
			cmder.cfg = config.FromViper(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagBackendProvider, &cmder.provider)
	config.AddStringFlag(cmd, config.Flags, config.FlagBackendTarget, &cmder.target)
	config.AddStringFlag(cmd, config.Flags, config.FlagModel, &cmder.model)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageProvider, &cmder.storage)
	config.AddStringFlag(cmd, config.Flags, config.FlagHistoryDir, &cmder.historyDir)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagSystemPrompt, &cmder.systemPrompt)
	config.AddUintFlag(cmd, config.Flags, config.FlagTitleLength, &cmder.titleLength)
	cmd.Flags().BoolVarP(&cmder.fresh, "new", "n", false, "Start a new conversation instead of resuming the last one")

	return cmd
}

func (c *chatCommander) run(ctx context.Context, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	closeLog, err := c.openLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	c.cfg.Backend.APIKey, err = credentials.ResolveAPIKey(c.cfg.Backend, c.configDir)
	if err != nil {
		return err
	}

	be, err := backendutils.NewBackend(c.cfg.Backend, c.logger)
	if err != nil {
		return err
	}

	driver, err := storageutils.NewDriver(ctx, c.cfg.Storage, c.configDir, c.logger)
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	defer driver.Close()

	publisher, err := eventstreamutils.NewPublisher(c.cfg.EventStream, c.logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	ddm := dotdir.NewManager()
	activeID := ""
	if !c.fresh {
		state, err := ddm.LoadSession(c.configDir)
		switch {
		case err != nil:
			c.logger.Warn("ignoring unreadable session state", "error", err)
		case state != nil:
			activeID = state.ActiveID
		}
	}

	eng, err := engine.New(ctx, &engine.Config{
		Backend:   be,
		Driver:    driver,
		Publisher: publisher,
		Monitor: monitor.New(&monitor.Config{
			Backend:  be,
			Interval: c.cfg.Backend.MonitorIntervalDuration(),
			Logger:   c.logger,
		}),
		Model:        c.cfg.Backend.Model,
		SystemPrompt: c.cfg.Chat.SystemPrompt,
		TitleLength:  int(c.cfg.Chat.TitleLength),
		Options: llm.Options{
			MaxTokens:   c.cfg.Chat.MaxTokens,
			Temperature: c.cfg.Chat.Temperature,
			TopP:        c.cfg.Chat.TopP,
			Seed:        c.cfg.Chat.Seed,
		},
		ActiveID: activeID,
		Logger:   c.logger,
	})
	if err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}

	markdown, width := !c.cfg.Chat.Plain, 80
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			width = w
		}
	} else {
		markdown = false
	}

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	r := newREPL(eng, out, replOptions{
		Model:    c.cfg.Backend.Model,
		Backend:  be.Name(),
		Markdown: markdown,
		Width:    width,
	})
	runErr := r.run(ctx, readLines(in), interrupts)

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	closeErr := eng.Close(closeCtx)

	c.saveSession(ddm, eng.Snapshot())

	return errors.Join(runErr, closeErr)
}

// openLogger sends logs to the log file in the dot directory so they never
// interleave with the conversation. With --debug they are also printed to
// stderr.
func (c *chatCommander) openLogger() (func(), error) {
	path, err := dotdir.NewManager().LogPath(c.configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving log file: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	c.logger = newChatLogger(f, os.Stderr, c.debug)
	c.logger.Info("chat starting", "build", utils.BuildInfo().String(), "pid", os.Getpid())

	return func() { _ = f.Close() }, nil
}

// newChatLogger writes JSON records to file and, with debug, pretty records
// to stderr as well.
func newChatLogger(file, stderr io.Writer, debug bool) *slog.Logger {
	fileLog := logger.New(logger.WithWriter(file), logger.WithFormat(logger.FormatJSON), logger.WithDebug(debug))
	if !debug {
		return fileLog
	}
	return logger.Multi(fileLog, logger.New(
		logger.WithWriter(stderr),
		logger.WithFormat(logger.FormatPretty),
		logger.WithDebug(true),
	))
}

func (c *chatCommander) saveSession(ddm *dotdir.Manager, snap engine.Snapshot) {
	if snap.Active == nil || len(snap.Active.Messages) == 0 {
		if err := ddm.ClearSession(c.configDir); err != nil {
			c.logger.Warn("clearing session state", "error", err)
		}
		return
	}

	state := &dotdir.SessionState{ActiveID: snap.Active.ID, Model: snap.Active.Model}
	if err := ddm.SaveSession(state, c.configDir); err != nil {
		c.logger.Warn("saving session state", "error", err)
	}
}

// readLines delivers input lines until EOF, then closes the channel.
func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}
