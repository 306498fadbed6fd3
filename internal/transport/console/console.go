// Package console drives the bot over a line-oriented reader and writer, one
// user per stream. It backs `epibot serve` on a terminal and the transport
// tests.
//
// Input lines map to actions as follows:
//
//	/start, /menu   main menu
//	/form           start the wizard
//	/search         start a search
//	/quit           stop reading
//	#<n>            press the n-th button of the last reply
//	#<action-id>    press a button by id
//	anything else   free text
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"epibot/internal/core"
	"epibot/pkg/domain"
)

// Bot is the subset of core.Service the transport needs.
type Bot interface {
	Menu(ctx context.Context, user domain.UserID) (core.Reply, error)
	StartForm(ctx context.Context, user domain.UserID) (core.Reply, error)
	StartSearch(ctx context.Context, user domain.UserID) (core.Reply, error)
	Handle(ctx context.Context, a core.Action) (core.Reply, error)
}

var _ Bot = (*core.Service)(nil)

// Option configures a Transport.
type Option func(*Transport)

// WithUser sets the user id the stream speaks for.
func WithUser(id domain.UserID) Option {
	return func(t *Transport) { t.user = id }
}

// WithLogger installs a structured logger.
func WithLogger(l core.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithPrompt sets the string written before each read. Empty disables it.
func WithPrompt(p string) Option {
	return func(t *Transport) { t.prompt = p }
}

// Transport reads actions from in and writes replies to out.
type Transport struct {
	bot    Bot
	in     io.Reader
	out    io.Writer
	user   domain.UserID
	logger core.Logger
	prompt string

	buttons []core.Button
}

// New constructs a transport. The default user id is 1.
func New(bot Bot, in io.Reader, out io.Writer, opts ...Option) *Transport {
	t := &Transport{
		bot:    bot,
		in:     in,
		out:    out,
		user:   1,
		logger: nopLogger{},
		prompt: "> ",
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run shows the main menu and then serves lines until EOF, /quit or ctx is
// done. It returns nil on EOF and /quit.
func (t *Transport) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		scanner := bufio.NewScanner(t.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
		readErr <- scanner.Err()
	}()

	if err := t.dispatch(ctx, "/start"); err != nil {
		return err
	}
	for {
		if err := t.writePrompt(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			return nil
		case line := <-lines:
			if strings.TrimSpace(line) == "/quit" {
				return nil
			}
			if err := t.dispatch(ctx, line); err != nil {
				return err
			}
		}
	}
}

func (t *Transport) writePrompt() error {
	if t.prompt == "" {
		return nil
	}
	_, err := io.WriteString(t.out, t.prompt)
	return err
}

// dispatch handles one line and writes the reply. Only write failures are
// returned; handling errors are already reflected in the reply.
func (t *Transport) dispatch(ctx context.Context, line string) error {
	out, err := t.handle(ctx, line)
	if err != nil {
		t.log(err)
	}
	if out.Empty() {
		return nil
	}
	t.buttons = out.Last().Actions
	return Write(t.out, out)
}

func (t *Transport) handle(ctx context.Context, line string) (core.Reply, error) {
	trimmed := strings.TrimSpace(line)
	switch trimmed {
	case "/start", "/menu":
		return t.bot.Menu(ctx, t.user)
	case "/form":
		return t.bot.StartForm(ctx, t.user)
	case "/search":
		return t.bot.StartSearch(ctx, t.user)
	}
	if id, ok := strings.CutPrefix(trimmed, "#"); ok && id != "" {
		return t.bot.Handle(ctx, core.Press(t.user, t.resolve(id)))
	}
	return t.bot.Handle(ctx, core.Text(t.user, line))
}

// resolve maps a 1-based button number from the last reply to its id.
// Anything else is taken as an action id.
func (t *Transport) resolve(ref string) string {
	n, err := strconv.Atoi(ref)
	if err != nil || n < 1 || n > len(t.buttons) {
		return ref
	}
	return t.buttons[n-1].ID
}

func (t *Transport) log(err error) {
	class := core.Classify(err)
	switch class {
	case core.OutcomeUnavailable:
		t.logger.Warn("console action failed", "user_id", int64(t.user), "outcome", string(class), "error", err.Error())
	case core.OutcomeInternal:
		t.logger.Error("console action failed", "user_id", int64(t.user), "outcome", string(class), "error", err.Error())
	default:
		if !errors.Is(err, context.Canceled) {
			t.logger.Debug("console action rejected", "user_id", int64(t.user), "outcome", string(class))
		}
	}
}

// Write renders r as plain text. Buttons are numbered per message.
func Write(w io.Writer, r core.Reply) error {
	bw := bufio.NewWriter(w)
	for _, m := range r.Messages {
		if m.Text != "" {
			fmt.Fprintln(bw, m.Text)
		}
		for i, b := range m.Actions {
			fmt.Fprintf(bw, "  [%d] %s\n", i+1, b.Label)
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
