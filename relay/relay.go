// Package relay is a transparent HTTP relay in front of an ADP chat server.
//
// Every request is forwarded upstream unchanged. Event stream responses are
// copied to the client byte for byte while a session.Session reconciles the
// same bytes into a record, so the relay knows the final state of every turn
// it carried and publishes it once the turn ends.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"go.uber.org/zap"

	"github.com/TencentCloudADP/adp-chat-client/pkg/eventstream"
	"github.com/TencentCloudADP/adp-chat-client/pkg/session"
	"github.com/TencentCloudADP/adp-chat-client/pkg/transport"
	"github.com/TencentCloudADP/adp-chat-client/relay/header"
	"github.com/TencentCloudADP/adp-chat-client/relay/worker"
)

var (
	ErrUpstreamRequired  = errors.New("relay: upstream URL is required")
	ErrPublisherRequired = errors.New("relay: event publisher is required")
)

// Relay forwards client requests to the ADP chat server and reconciles the
// turns streamed back.
type Relay struct {
	config        Config
	workerPool    *worker.Pool
	sessions      *session.Registry
	logger        *zap.Logger
	httpClient    *http.Client
	server        *fiber.App
	headerHandler *header.Handler

	// turns tracks relayed turns until their event is enqueued.
	turns sync.WaitGroup
}

// New creates a Relay. The publisher of c is closed by Close.
func New(c Config, logger *zap.Logger) (*Relay, error) {
	if c.UpstreamURL == "" {
		return nil, ErrUpstreamRequired
	}
	if c.Publisher == nil {
		return nil, ErrPublisherRequired
	}
	c.UpstreamURL = strings.TrimRight(c.UpstreamURL, "/")

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		StreamRequestBody:     true,
	})

	// Compressing an event stream buffers frames until the encoder
	// flushes, so streaming requests are left alone.
	app.Use(compress.New(compress.Config{
		Next: func(c *fiber.Ctx) bool {
			return strings.Contains(c.Get(fiber.HeaderAccept), "text/event-stream")
		},
	}))

	wp, err := worker.NewPool(&worker.Config{
		Publisher:  c.Publisher,
		NumWorkers: c.Workers,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	r := &Relay{
		config:        c,
		workerPool:    wp,
		sessions:      session.NewRegistry(logger),
		logger:        logger,
		server:        app,
		headerHandler: header.NewHandler(),
		httpClient: &http.Client{
			// Turns with long reasoning traces can take minutes.
			Timeout: 5 * time.Minute,
		},
	}

	app.Get("/sessions", r.handleListSessions)
	app.Delete("/sessions/:id", r.handleCancelSession)
	app.All("/*", r.handleForward)

	return r, nil
}

// Run starts the relay on the configured listen address.
func (r *Relay) Run() error {
	r.logger.Info("starting relay server",
		zap.String("listen", r.config.ListenAddr),
		zap.String("upstream", r.config.UpstreamURL),
	)

	return r.server.Listen(r.config.ListenAddr)
}

// RunWithListener starts the relay on listener.
func (r *Relay) RunWithListener(listener net.Listener) error {
	r.logger.Info("starting relay server",
		zap.String("listen", listener.Addr().String()),
		zap.String("upstream", r.config.UpstreamURL),
	)

	return r.server.Listener(listener)
}

// Handler exposes the relay as a net/http handler for embedding in another
// server. Responses are buffered whole, so streamed turns reach the caller
// only once they end.
func (r *Relay) Handler() http.Handler {
	return adaptor.FiberApp(r.server)
}

// Sessions returns the registry of turns currently streaming.
func (r *Relay) Sessions() *session.Registry {
	return r.sessions
}

// Close cancels streaming turns, stops the server, publishes the queued
// events and closes the publisher.
func (r *Relay) Close() error {
	for _, id := range r.sessions.List() {
		r.sessions.Cancel(id)
	}
	r.waitSessions()
	err := r.server.Shutdown()
	r.workerPool.Close()
	return errors.Join(err, r.config.Publisher.Close())
}

// waitSessions waits, bounded, for cancelled turns to enqueue their event.
func (r *Relay) waitSessions() {
	done := make(chan struct{})
	go func() {
		r.turns.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		r.logger.Warn("sessions still running at shutdown", zap.Int("count", r.sessions.Len()))
	}
}

type sessionInfo struct {
	ID         string `json:"id"`
	State      string `json:"state"`
	DurationMs int64  `json:"duration_ms"`
}

func (r *Relay) handleListSessions(c *fiber.Ctx) error {
	infos := []sessionInfo{}
	for _, id := range r.sessions.List() {
		s, ok := r.sessions.Get(id)
		if !ok {
			continue
		}
		infos = append(infos, sessionInfo{
			ID:         id,
			State:      s.State().String(),
			DurationMs: s.Duration().Milliseconds(),
		})
	}
	return c.JSON(fiber.Map{"sessions": infos})
}

func (r *Relay) handleCancelSession(c *fiber.Ctx) error {
	id := c.Params("id")
	if !r.sessions.Cancel(id) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session not found"})
	}
	r.logger.Info("session cancelled by client", zap.String("session_id", id))
	return c.SendStatus(fiber.StatusNoContent)
}

// handleForward relays any other request upstream.
func (r *Relay) handleForward(c *fiber.Ctx) error {
	startedAt := time.Now()
	path := c.Path()
	target := r.config.UpstreamURL + path
	if q := c.Context().QueryArgs().String(); q != "" {
		target += "?" + q
	}

	// fasthttp reuses the request buffer once the handler returns, while
	// the upstream request may still be reading from it.
	body := bytes.Clone(c.Body())

	var reqBody io.Reader
	if len(body) > 0 {
		reqBody = bytes.NewReader(body)
	}

	// The upstream request outlives the handler when the response is
	// streamed, so it is not bound to the fasthttp request context.
	ctx, cancel := context.WithCancel(context.Background())
	httpReq, err := http.NewRequestWithContext(ctx, c.Method(), target, reqBody)
	if err != nil {
		cancel()
		r.logger.Error("failed to create upstream request", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
	r.headerHandler.CopyToUpstream(c, httpReq)

	r.logger.Debug("forwarding request to upstream",
		zap.String("method", c.Method()),
		zap.String("url", target),
	)

	httpResp, err := r.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		r.logger.Error("upstream request failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upstream request failed"})
	}

	if httpResp.StatusCode == http.StatusOK && isEventStream(httpResp) {
		return r.relayTurn(c, httpResp, cancel, turnMeta{
			path:          path,
			applicationID: applicationIDOf(path, body),
			startedAt:     startedAt,
			status:        httpResp.StatusCode,
		})
	}

	defer cancel()
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		r.logger.Error("failed to read upstream response", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "failed to read upstream response"})
	}

	r.headerHandler.CopyToClient(c, httpResp)
	return c.Status(httpResp.StatusCode).Send(respBody)
}

func isEventStream(resp *http.Response) bool {
	return strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream")
}

// applicationIDOf extracts the application of a chat request, best effort.
func applicationIDOf(path string, body []byte) string {
	if path != transport.ChatPath || len(body) == 0 {
		return ""
	}
	var req transport.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return ""
	}
	return req.ApplicationID
}

func (r *Relay) publish(s *session.Session, meta turnMeta) {
	snap := s.Snapshot()
	completedAt := time.Now()

	var errText string
	if err := s.Err(); err != nil {
		errText = err.Error()
	}

	event := eventstream.NewTurnFinishedEvent(
		eventstream.EventSource{
			Upstream:      r.config.UpstreamURL,
			ApplicationID: meta.applicationID,
		},
		eventstream.TurnRequestMeta{
			SessionID:   s.ID(),
			Path:        meta.path,
			StartedAt:   meta.startedAt,
			CompletedAt: completedAt,
			DurationMs:  completedAt.Sub(meta.startedAt).Milliseconds(),
			HTTPStatus:  meta.status,
			State:       s.State().String(),
			Error:       errText,
		},
		snap.Conversation,
		snap.Record,
	)

	r.workerPool.Enqueue(worker.Job{Event: event})
}
