// Package servecmder provides the serve command running the streaming relay.
package servecmder

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TencentCloudADP/adp-chat-client/pkg/config"
	"github.com/TencentCloudADP/adp-chat-client/pkg/eventstream"
	"github.com/TencentCloudADP/adp-chat-client/pkg/eventstream/kafka"
	"github.com/TencentCloudADP/adp-chat-client/pkg/eventstream/nop"
	"github.com/TencentCloudADP/adp-chat-client/pkg/logger"
	"github.com/TencentCloudADP/adp-chat-client/pkg/utils"
	"github.com/TencentCloudADP/adp-chat-client/relay"
)

type serveCommander struct {
	listen   string
	upstream string
	workers  uint
	logFile  string
	debug    bool

	eventProvider string
	eventBrokers  []string
	eventTopic    string

	logger *zap.Logger
}

var serveFlags = []string{
	config.FlagListen,
	config.FlagUpstream,
	config.FlagWorkers,
	config.FlagLogFile,
	config.FlagEventProvider,
	config.FlagEventBrokers,
	config.FlagEventTopic,
}

const serveLongDesc string = `Run the streaming relay.

The relay forwards every request to the configured ADP chat server. Streamed
turns are copied to the client unchanged while the relay reconciles them,
and every finished turn is published to the configured event stream.

Active turns are listed at GET /sessions and can be cancelled with
DELETE /sessions/<id>. The session id of a turn is returned in the
X-Adpchat-Session-Id response header.

Event stream providers: nop, kafka

With --log-file the relay also appends JSON logs to the given file.

Examples:
  adpchat serve --upstream http://localhost:8000
  adpchat serve --eventstream-provider kafka --eventstream-brokers localhost:9092
  adpchat serve --log-file relay.log`

const serveShortDesc string = "Run the streaming relay"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, serveFlags)

			cmder.listen = v.GetString("relay.listen")
			cmder.upstream = v.GetString("relay.upstream")
			cmder.workers = v.GetUint("relay.workers")
			cmder.logFile = v.GetString("relay.log_file")
			cmder.eventProvider = v.GetString("eventstream.provider")
			cmder.eventBrokers = brokersOf(v.GetStringSlice("eventstream.brokers"))
			cmder.eventTopic = v.GetString("eventstream.topic")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run(cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagUpstream, &cmder.upstream)
	config.AddUintFlag(cmd, config.Flags, config.FlagWorkers, &cmder.workers)
	config.AddStringFlag(cmd, config.Flags, config.FlagLogFile, &cmder.logFile)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventProvider, &cmder.eventProvider)
	config.AddStringSliceFlag(cmd, config.Flags, config.FlagEventBrokers, &cmder.eventBrokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventTopic, &cmder.eventTopic)

	return cmd
}

func (c *serveCommander) run(console io.Writer) error {
	closeLog, err := c.newLogger(console)
	if err != nil {
		return err
	}
	defer func() {
		_ = c.logger.Sync()
		_ = closeLog()
	}()

	c.logger.Info("loaded relay configuration",
		zap.String("listen", c.listen),
		zap.String("upstream", c.upstream),
		zap.Uint("workers", c.workers),
	)

	publisher, err := c.newPublisher()
	if err != nil {
		return err
	}

	r, err := relay.New(relay.Config{
		ListenAddr:  c.listen,
		UpstreamURL: c.upstream,
		Publisher:   publisher,
		Workers:     c.workers,
	}, c.logger)
	if err != nil {
		_ = publisher.Close()
		return fmt.Errorf("creating relay: %w", err)
	}
	defer func() {
		if err := r.Close(); err != nil {
			c.logger.Warn("relay shutdown", zap.Error(err))
		}
	}()

	errChan := make(chan error, 1)
	go func() {
		if err := r.Run(); err != nil {
			errChan <- fmt.Errorf("relay error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return nil
	}
}

// newLogger logs to console and, with a log file configured, tees every
// entry as JSON into that file. The returned func closes the file.
func (c *serveCommander) newLogger(console io.Writer) (func() error, error) {
	c.logger = logger.NewLoggerWithWriters(c.debug, console)
	if c.logFile == "" {
		return func() error { return nil }, nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	c.logger = logger.Multi(c.logger, logger.New(
		logger.WithJSON(true),
		logger.WithDebug(c.debug),
		logger.WithWriter(f),
	))
	return f.Close, nil
}

func (c *serveCommander) newPublisher() (eventstream.Publisher, error) {
	switch c.eventProvider {
	case "", config.ProviderNop:
		c.logger.Info("event publishing disabled")
		return nop.NewPublisher(), nil

	case config.ProviderKafka:
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers:  c.eventBrokers,
			Topic:    c.eventTopic,
			ClientID: "adpchat-relay/" + utils.Version,
		}, c.logger)
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		c.logger.Info("publishing finished turns to kafka",
			zap.Strings("brokers", c.eventBrokers),
			zap.String("topic", c.eventTopic),
		)
		return p, nil

	default:
		return nil, fmt.Errorf("unknown event stream provider %q (available: %s, %s)",
			c.eventProvider, config.ProviderNop, config.ProviderKafka)
	}
}

// brokersOf accepts brokers given either as a list or as a single comma
// separated value, which is how environment variables carry them.
func brokersOf(values []string) []string {
	var out []string
	for _, v := range values {
		out = append(out, config.SplitList(v)...)
	}
	return out
}
