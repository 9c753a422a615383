// Package mockcmder provides the mock command serving scripted ADP chat
// turns for local development.
package mockcmder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TencentCloudADP/adp-chat-client/pkg/config"
	"github.com/TencentCloudADP/adp-chat-client/pkg/logger"
	"github.com/TencentCloudADP/adp-chat-client/pkg/mockupstream"
	"github.com/TencentCloudADP/adp-chat-client/pkg/transport"
)

const shutdownTimeout = 5 * time.Second

type mockCommander struct {
	listen    string
	script    string
	delay     time.Duration
	chunkSize int
	failAfter int
	debug     bool

	logger *zap.Logger
}

var mockFlags = []string{
	config.FlagMockListen,
}

const mockLongDesc string = `Serve scripted ADP chat turns.

Answers POST /chat/message with the same turn on every request: a streamed
reasoning trace, a reply with references and the token usage. Point the
relay or the chat command at it to develop without an ADP account.

A recorded stream, one "data:" frame per line, replaces the built in turn
with --script. --delay, --chunk-size and --fail-after shape how the turn is
delivered.

Examples:
  adpchat mock
  adpchat mock --delay 200ms --chunk-size 7
  adpchat mock --script turn.sse --fail-after 4`

const mockShortDesc string = "Serve scripted chat turns"

func NewMockCmd() *cobra.Command {
	cmder := &mockCommander{}

	cmd := &cobra.Command{
		Use:   "mock",
		Short: mockShortDesc,
		Long:  mockLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, mockFlags)

			cmder.listen = v.GetString("mock.listen")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagMockListen, &cmder.listen)
	cmd.Flags().StringVar(&cmder.script, "script", "", "Recorded stream to serve instead of the built in turn")
	cmd.Flags().DurationVar(&cmder.delay, "delay", 50*time.Millisecond, "Pause between frames")
	cmd.Flags().IntVar(&cmder.chunkSize, "chunk-size", 0, "Split frames into writes of at most this many bytes")
	cmd.Flags().IntVar(&cmder.failAfter, "fail-after", -1, "End every turn with an error after this many frames")

	return cmd
}

func (c *mockCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	script, err := c.loadScript()
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr: c.listen,
		Handler: mockupstream.Handler(script,
			mockupstream.WithDelay(c.delay),
			mockupstream.WithChunkSize(c.chunkSize),
			mockupstream.WithFailAfter(c.failAfter),
			mockupstream.WithLogger(c.logger),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		c.logger.Info("starting mock upstream",
			zap.String("listen", c.listen),
			zap.String("path", transport.ChatPath),
			zap.Int("frames", len(script)),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("mock upstream error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(ctx)
}

func (c *mockCommander) loadScript() (mockupstream.Script, error) {
	if c.script == "" {
		return mockupstream.DefaultScript(), nil
	}

	f, err := os.Open(c.script)
	if err != nil {
		return nil, fmt.Errorf("opening script: %w", err)
	}
	defer f.Close()

	script, err := mockupstream.LoadScript(f)
	if err != nil {
		return nil, fmt.Errorf("loading script %s: %w", c.script, err)
	}
	if len(script) == 0 {
		return nil, fmt.Errorf("script %s has no frames", c.script)
	}
	return script, nil
}
