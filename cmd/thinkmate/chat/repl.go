package chatcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/vincenthz/ThinkMate/pkg/cliui"
	"github.com/vincenthz/ThinkMate/pkg/conversation"
	"github.com/vincenthz/ThinkMate/pkg/engine"
	"github.com/vincenthz/ThinkMate/pkg/monitor"
	"github.com/vincenthz/ThinkMate/pkg/registry"
)

type replOptions struct {
	Model    string
	Backend  string
	Markdown bool
	Width    int
}

// repl renders engine snapshots as a line oriented chat. Replies are
// printed as they grow; everything else is printed between turns.
type repl struct {
	eng  *engine.Engine
	out  io.Writer
	opts replOptions

	// waiting is set from a successful submit or retry until the reply
	// reached a terminal status and the turn settled.
	waiting bool
	replyID string
	printed int

	banner  string
	backend monitor.Status
}

func newREPL(eng *engine.Engine, out io.Writer, opts replOptions) *repl {
	return &repl{eng: eng, out: out, opts: opts}
}

// run reads lines until EOF, /exit, an interrupt at the prompt or ctx done.
// An interrupt while a reply streams cancels it instead.
func (r *repl) run(ctx context.Context, lines <-chan string, interrupts <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	snapshots := r.eng.Subscribe(ctx)
	r.header()
	r.prompt()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-interrupts:
			if !r.waiting {
				fmt.Fprintln(r.out)
				return nil
			}
			if err := r.eng.Cancel(); err != nil {
				r.fail(err)
			}

		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(r.out)
				return nil
			}
			if r.handle(line) {
				return nil
			}

		case snap, ok := <-snapshots:
			if !ok {
				return nil
			}
			r.render(snap)
		}
	}
}

func (r *repl) header() {
	fmt.Fprintf(r.out, "\n  %s %s %s\n",
		cliui.HeaderStyle.Render("thinkmate"),
		cliui.KeyStyle.Render(r.opts.Backend),
		cliui.ValueStyle.Render(r.opts.Model),
	)

	snap := r.eng.Snapshot()
	if snap.Active != nil && len(snap.Active.Messages) > 0 {
		fmt.Fprintf(r.out, "  %s %s\n",
			cliui.DimStyle.Render("Resuming"),
			cliui.NameStyle.Render(snap.Active.DisplayTitle()),
		)
	}
	if snap.Err != nil {
		r.fail(snap.Err)
	}
	fmt.Fprintf(r.out, "  %s\n\n", cliui.DimStyle.Render("Type /help for commands, Ctrl+C to stop a reply."))
}

func (r *repl) prompt() {
	fmt.Fprint(r.out, cliui.UserPrompt)
}

func (r *repl) fail(err error) {
	fmt.Fprintf(r.out, "  %s %s\n", cliui.FailMark, cliui.ErrorStyle.Render(err.Error()))
}

func (r *repl) note(format string, args ...any) {
	fmt.Fprintf(r.out, "  %s\n", cliui.DimStyle.Render(fmt.Sprintf(format, args...)))
}

// handle processes one input line and reports whether to quit.
func (r *repl) handle(line string) bool {
	line = strings.TrimSpace(line)

	if r.waiting {
		switch line {
		case "/exit", "/quit":
			return true
		case "/cancel":
			if err := r.eng.Cancel(); err != nil {
				r.fail(err)
			}
		case "":
		default:
			r.note("A reply is in progress; press Ctrl+C or type /cancel to stop it.")
		}
		return false
	}

	if line == "" {
		r.prompt()
		return false
	}

	if !strings.HasPrefix(line, "/") {
		r.start(r.eng.Submit(line))
		return false
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/exit", "/quit":
		return true
	case "/help":
		r.help()
	case "/new":
		r.newConversation()
	case "/list":
		snap := r.eng.Snapshot()
		cliui.PrintEntries(r.out, snap.Entries, snap.Skipped, activeID(snap), time.Now())
	case "/switch":
		r.switchTo(arg)
	case "/delete":
		r.delete(arg)
	case "/rename":
		r.rename(arg)
	case "/show":
		r.show()
	case "/retry":
		r.start(r.eng.RetryLastTurn())
		return false
	case "/cancel":
		r.note("Nothing to cancel.")
	case "/save":
		r.save()
	case "/models":
		r.models()
	default:
		r.fail(fmt.Errorf("unknown command %s, type /help for commands", name))
	}

	r.prompt()
	return false
}

// start begins printing the reply of a turn that err did not reject.
func (r *repl) start(err error) {
	if err != nil {
		r.fail(err)
		r.prompt()
		return
	}

	snap := r.eng.Snapshot()
	r.waiting = true
	r.replyID = ""
	r.printed = 0
	if last := lastMessage(snap); last != nil {
		r.replyID = last.ID
	}

	fmt.Fprint(r.out, cliui.AssistantPrompt)
	r.render(snap)
}

func (r *repl) render(snap engine.Snapshot) {
	if r.waiting {
		r.renderReply(snap)
	}
	if r.waiting {
		return
	}

	if snap.Banner != r.banner {
		r.banner = snap.Banner
		if snap.Banner != "" {
			fmt.Fprintf(r.out, "\n  %s\n", cliui.BannerStyle.Render(snap.Banner))
		}
	}

	if st := snap.Backend.Status; st != r.backend && st != monitor.StatusUnknown {
		prev := r.backend
		r.backend = st
		switch {
		case st == monitor.StatusDisconnected:
			fmt.Fprintf(r.out, "\n  %s %s\n", cliui.WarnMark, cliui.WarnStyle.Render("Backend unreachable: "+snap.Backend.Error))
		case prev == monitor.StatusDisconnected:
			fmt.Fprintf(r.out, "\n  %s %s\n", cliui.SuccessMark, cliui.DimStyle.Render("Backend reachable again"))
		}
	}
}

func (r *repl) renderReply(snap engine.Snapshot) {
	msg := findMessage(snap.Active, r.replyID)
	if msg == nil {
		r.finish()
		return
	}

	if len(msg.Content) > r.printed {
		fmt.Fprint(r.out, msg.Content[r.printed:])
		r.printed = len(msg.Content)
	}

	if !msg.Status.Terminal() {
		return
	}
	switch snap.State {
	case engine.Idle, engine.Errored:
	default:
		return
	}

	fmt.Fprintln(r.out)
	if note := cliui.StatusNote(*msg); note != "" {
		fmt.Fprintf(r.out, "  %s\n", note)
	}
	if snap.PendingFlush {
		r.note("Not saved yet; type /save to retry.")
	}
	r.finish()
}

func (r *repl) finish() {
	r.waiting = false
	r.replyID = ""
	r.printed = 0
	fmt.Fprintln(r.out)
	r.prompt()
}

func (r *repl) help() {
	fmt.Fprintln(r.out)
	for _, c := range [][2]string{
		{"/new", "Start a new conversation"},
		{"/list", "List saved conversations"},
		{"/switch <n|id>", "Switch to a saved conversation"},
		{"/delete <n|id>", "Delete a saved conversation"},
		{"/rename <title>", "Rename the active conversation"},
		{"/show", "Print the active conversation"},
		{"/retry", "Retry the last failed reply"},
		{"/cancel", "Stop the streaming reply"},
		{"/save", "Retry a failed save"},
		{"/models", "Show backend status and models"},
		{"/exit", "Quit"},
	} {
		fmt.Fprintf(r.out, "  %-18s %s\n", cliui.KeyStyle.Render(c[0]), cliui.DimStyle.Render(c[1]))
	}
	fmt.Fprintln(r.out)
}

func (r *repl) newConversation() {
	if _, err := r.eng.CreateNew(); err != nil {
		r.fail(err)
		return
	}
	fmt.Fprintf(r.out, "  %s %s\n", cliui.SuccessMark, "New conversation")
}

func (r *repl) resolve(ref string) (string, string, bool) {
	if ref == "" {
		r.fail(errors.New("expected a conversation number or id, see /list"))
		return "", "", false
	}
	entry, err := registry.Resolve(r.eng.Snapshot().Entries, ref)
	if err != nil {
		r.fail(err)
		return "", "", false
	}
	return entry.ID, entry.Title, true
}

func (r *repl) switchTo(ref string) {
	id, _, ok := r.resolve(ref)
	if !ok {
		return
	}
	if err := r.eng.SwitchActive(id); err != nil {
		r.fail(err)
		return
	}
	r.show()
}

func (r *repl) delete(ref string) {
	id, title, ok := r.resolve(ref)
	if !ok {
		return
	}
	if err := r.eng.Delete(id); err != nil {
		r.fail(err)
		return
	}
	fmt.Fprintf(r.out, "  %s Deleted %s\n", cliui.SuccessMark, cliui.NameStyle.Render(title))
}

func (r *repl) rename(title string) {
	snap := r.eng.Snapshot()
	if snap.Active == nil {
		r.fail(engine.ErrNoConversation)
		return
	}
	if err := r.eng.Rename(snap.Active.ID, title); err != nil {
		r.fail(err)
		return
	}
	fmt.Fprintf(r.out, "  %s Renamed to %s\n", cliui.SuccessMark, cliui.NameStyle.Render(strings.TrimSpace(title)))
}

func (r *repl) show() {
	snap := r.eng.Snapshot()
	if snap.Active == nil {
		r.note("No active conversation.")
		return
	}
	cliui.PrintTranscript(r.out, snap.Active, cliui.TranscriptOptions{
		Markdown: r.opts.Markdown,
		Width:    r.opts.Width,
	})
}

func (r *repl) save() {
	if err := r.eng.RetryFlush(); err != nil {
		r.fail(err)
		return
	}
	r.note("Saving.")
}

func (r *repl) models() {
	st := r.eng.Snapshot().Backend
	model := r.opts.Model
	if snap := r.eng.Snapshot(); snap.Active != nil && snap.Active.Model != "" {
		model = snap.Active.Model
	}

	fmt.Fprintf(r.out, "  %s %s\n", cliui.KeyStyle.Render("backend:"), cliui.ValueStyle.Render(r.opts.Backend+" ("+st.Status.String()+")"))
	if st.Error != "" {
		fmt.Fprintf(r.out, "  %s %s\n", cliui.WarnMark, cliui.WarnStyle.Render(st.Error))
	}
	for _, name := range st.ModelNames() {
		marker := " "
		if name == model {
			marker = cliui.SuccessMark
		}
		fmt.Fprintf(r.out, "  %s %s\n", marker, name)
	}
}

func activeID(snap engine.Snapshot) string {
	if snap.Active == nil {
		return ""
	}
	return snap.Active.ID
}

func lastMessage(snap engine.Snapshot) *conversation.Message {
	if snap.Active == nil {
		return nil
	}
	return snap.Active.Last()
}

func findMessage(c *conversation.Conversation, id string) *conversation.Message {
	if c == nil || id == "" {
		return nil
	}
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].ID == id {
			return &c.Messages[i]
		}
	}
	return nil
}
