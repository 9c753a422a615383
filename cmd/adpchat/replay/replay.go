// Package replaycmder provides the replay command, which reconciles a
// recorded chat stream offline.
package replaycmder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/TencentCloudADP/adp-chat-client/pkg/cliui"
	"github.com/TencentCloudADP/adp-chat-client/pkg/logger"
	"github.com/TencentCloudADP/adp-chat-client/pkg/reconcile"
	"github.com/TencentCloudADP/adp-chat-client/pkg/record"
	"github.com/TencentCloudADP/adp-chat-client/pkg/session"
)

var errCancelled = errors.New("cancelled")

const (
	formatJSON = "json"
	formatText = "text"
)

type replayCommander struct {
	source string
	format string
	debug  bool

	logger *zap.Logger
}

// result is the JSON rendition of a replayed turn.
type result struct {
	State        string               `json:"state"`
	Error        string               `json:"error,omitempty"`
	Sequence     uint64               `json:"sequence"`
	Conversation *record.Conversation `json:"conversation,omitempty"`
	Record       record.Record        `json:"record"`
}

const replayLongDesc string = `Replay a recorded ADP chat stream.

Reads the raw server-sent event stream of one turn, as captured with
"curl -N" or written by the relay, and reconciles it exactly like a live
turn. The file is read from stdin when omitted or "-".

The final record is printed as JSON (default) or rendered as the chat
command would show it (--format text). A summary line is written to stderr
and the command fails when the stream fails.

Examples:
  adpchat replay turn.sse
  curl -sN -d '{"Query":"hi"}' http://localhost:8080/chat/message | adpchat replay --format text`

const replayShortDesc string = "Reconcile a recorded chat stream"

func NewReplayCmd() *cobra.Command {
	cmder := &replayCommander{}

	cmd := &cobra.Command{
		Use:   "replay [file]",
		Short: replayShortDesc,
		Long:  replayLongDesc,
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(_ *cobra.Command, args []string) error {
			switch cmder.format {
			case formatJSON, formatText:
			default:
				return fmt.Errorf("invalid format %q (available: %s, %s)", cmder.format, formatJSON, formatText)
			}
			if len(args) == 1 {
				cmder.source = args[0]
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVar(&cmder.format, "format", formatJSON, "Output format (json, text)")

	return cmd
}

func (c *replayCommander) run(cmd *cobra.Command) error {
	c.logger = logger.Nop()
	if c.debug {
		c.logger = logger.NewLoggerWithWriters(true, cmd.ErrOrStderr())
	}
	defer func() { _ = c.logger.Sync() }()

	open := func(context.Context) (io.ReadCloser, error) {
		if c.source == "" || c.source == "-" {
			return io.NopCloser(cmd.InOrStdin()), nil
		}
		return os.Open(c.source)
	}

	out := cmd.OutOrStdout()
	callbacks := session.Callbacks{}
	var printer *cliui.TurnPrinter
	if c.format == formatText {
		printer = cliui.NewTurnPrinter(out, !isTerminal(out))
		callbacks.OnUpdate = printer.Update
	}

	s := session.New(session.TransportFunc(open), callbacks, session.WithLogger(c.logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runErr := s.Run(ctx)
	snap := s.Snapshot()

	if printer != nil {
		switch s.State() {
		case session.StateCompleted:
			printer.Finish(snap)
		case session.StateCancelled:
			printer.Error(errCancelled)
		default:
			printer.Error(runErr)
		}
	} else if err := writeJSON(out, s.State(), runErr, snap); err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "replayed %d updates: %s (%s)\n",
		snap.Sequence, s.State(), cliui.FormatDuration(s.Duration()))

	return runErr
}

func writeJSON(w io.Writer, state session.State, runErr error, snap reconcile.Snapshot) error {
	res := result{
		State:        state.String(),
		Sequence:     snap.Sequence,
		Conversation: snap.Conversation,
		Record:       snap.Record,
	}
	if runErr != nil {
		res.Error = runErr.Error()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
