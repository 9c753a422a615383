// Package chatcmder provides the chat command, an interactive terminal client
// for ADP chat servers and the relay.
package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/TencentCloudADP/adp-chat-client/pkg/cliui"
	"github.com/TencentCloudADP/adp-chat-client/pkg/config"
	"github.com/TencentCloudADP/adp-chat-client/pkg/dotdir"
	"github.com/TencentCloudADP/adp-chat-client/pkg/logger"
	"github.com/TencentCloudADP/adp-chat-client/pkg/reconcile"
	"github.com/TencentCloudADP/adp-chat-client/pkg/session"
	"github.com/TencentCloudADP/adp-chat-client/pkg/transport"
	"github.com/TencentCloudADP/adp-chat-client/pkg/utils"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("assistant> ")
)

var errCancelled = errors.New("cancelled")

type chatCommander struct {
	target          string
	applicationID   string
	query           string
	newConversation bool
	configDir       string
	debug           bool

	conversationID string
	client         *transport.Client
	ddm            *dotdir.Manager
	out            io.Writer
	plain          bool
	logger         *zap.Logger
}

var chatFlags = []string{
	config.FlagRelayTarget,
	config.FlagApplicationID,
}

const chatLongDesc string = `Chat with an ADP application from the terminal.

Messages are sent to the configured target, an ADP chat server or an
adpchat relay. Replies stream in as they are generated: reasoning steps
appear as status lines, followed by the reply, its references and the token
usage of the turn.

The conversation is saved in the .adpchat/ directory and resumed by the next
"adpchat chat". Use --new, or type /new, to start a fresh conversation.
Press Ctrl+C to cancel the turn in progress.

Examples:
  adpchat chat --application-id my-app
  adpchat chat --target http://localhost:8080 -q "What is ADP?"`

const chatShortDesc string = "Chat with an ADP application"

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

			cmder.target = v.GetString("client.relay_target")
			cmder.applicationID = v.GetString("client.application_id")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			return cmder.run(cmd)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagRelayTarget, &cmder.target)
	config.AddStringFlag(cmd, config.Flags, config.FlagApplicationID, &cmder.applicationID)
	cmd.Flags().StringVarP(&cmder.query, "query", "q", "", "Send a single message and exit")
	cmd.Flags().BoolVar(&cmder.newConversation, "new", false, "Start a new conversation")

	return cmd
}

func (c *chatCommander) run(cmd *cobra.Command) error {
	c.logger = logger.Nop()
	if c.debug {
		c.logger = logger.NewLoggerWithWriters(true, cmd.ErrOrStderr())
	}
	defer func() { _ = c.logger.Sync() }()

	c.out = cmd.OutOrStdout()
	c.plain = !isTerminal(c.out)
	c.client = &transport.Client{
		BaseURL: c.target,
		// No overall timeout: turns end on their own or on Ctrl+C.
		HTTPClient: &http.Client{},
	}
	c.ddm = dotdir.NewManager()

	if err := c.restoreConversation(); err != nil {
		return err
	}

	if c.query != "" {
		return c.turn(c.query)
	}
	return c.loop(cmd.InOrStdin())
}

func (c *chatCommander) restoreConversation() error {
	if c.newConversation {
		return c.ddm.ClearConversation(c.configDir)
	}

	state, err := c.ddm.LoadConversation(c.configDir)
	if err != nil {
		return fmt.Errorf("loading conversation state: %w", err)
	}
	if state == nil || state.ApplicationID != c.applicationID {
		return nil
	}

	c.conversationID = state.ConversationID
	if c.query == "" {
		fmt.Fprintf(c.out, "  %s Resuming %s %s\n",
			c.mark(nil),
			c.style(cliui.TitleStyle, state.Title),
			c.style(cliui.DimStyle, "("+utils.Truncate(state.ConversationID, 16)+")"),
		)
	}
	return nil
}

func (c *chatCommander) loop(in io.Reader) error {
	fmt.Fprintf(c.out, "  %s\n\n", c.style(cliui.DimStyle, "Type your message and press Enter. /new starts over, /exit or Ctrl+D quits."))

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(c.out, c.prompt(userPrompt, "you> "))
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/exit":
			return nil
		case "/new":
			c.conversationID = ""
			if err := c.ddm.ClearConversation(c.configDir); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "  %s\n\n", c.style(cliui.DimStyle, "New conversation"))
			continue
		}

		// A failed turn is reported and the loop goes on.
		_ = c.turn(input)
		fmt.Fprintln(c.out)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	fmt.Fprintln(c.out)
	return nil
}

// turn sends one message and prints the reply as it streams.
func (c *chatCommander) turn(query string) error {
	req, err := c.client.Chat(transport.ChatRequest{
		Query:          query,
		ConversationID: c.conversationID,
		ApplicationID:  c.applicationID,
	})
	if err != nil {
		return err
	}

	c.logger.Debug("sending chat request",
		zap.String("target", c.target),
		zap.String("conversation_id", c.conversationID),
	)

	fmt.Fprintln(c.out, c.prompt(assistantPrompt, "assistant> "))
	printer := cliui.NewTurnPrinter(c.out, c.plain)
	s := session.New(req, session.Callbacks{
		OnUpdate: printer.Update,
	}, session.WithLogger(c.logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runErr := s.Run(ctx)
	snap := s.Snapshot()

	switch s.State() {
	case session.StateCompleted:
		printer.Finish(snap)
	case session.StateCancelled:
		printer.Error(errCancelled)
		runErr = errCancelled
	default:
		printer.Error(runErr)
	}

	c.remember(snap)
	return runErr
}

// remember saves the conversation of snap so the next turn continues it.
func (c *chatCommander) remember(snap reconcile.Snapshot) {
	conv := snap.Conversation
	if conv == nil || conv.ID == "" {
		return
	}
	c.conversationID = conv.ID

	err := c.ddm.SaveConversation(&dotdir.ConversationState{
		ConversationID: conv.ID,
		ApplicationID:  c.applicationID,
		Title:          conv.Title,
		UpdatedAt:      time.Now().UTC(),
	}, c.configDir)
	if err != nil {
		c.logger.Warn("failed to save conversation state", zap.Error(err))
	}
}

func (c *chatCommander) prompt(styled, plain string) string {
	if c.plain {
		return plain
	}
	return styled
}

func (c *chatCommander) style(s lipgloss.Style, text string) string {
	if c.plain {
		return text
	}
	return s.Render(text)
}

func (c *chatCommander) mark(err error) string {
	if c.plain {
		return "-"
	}
	return cliui.Mark(err)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
