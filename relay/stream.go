package relay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/TencentCloudADP/adp-chat-client/pkg/envelope"
	"github.com/TencentCloudADP/adp-chat-client/pkg/session"
	"github.com/TencentCloudADP/adp-chat-client/relay/header"
)

const (
	// Messages of the error frames the relay writes itself.
	interruptedMessage = "upstream stream interrupted"
	cancelledMessage   = "turn cancelled"
)

type turnMeta struct {
	path          string
	applicationID string
	startedAt     time.Time
	status        int
}

// relayTurn streams resp to the client and reconciles it on the way.
//
// The session pulls from the upstream body; every chunk it reads is first
// written to the client pipe. pw.Write blocks until fasthttp has flushed the
// previous chunk to the socket, so the client sees frames as soon as the
// upstream sends them.
func (r *Relay) relayTurn(c *fiber.Ctx, resp *http.Response, cancel context.CancelFunc, meta turnMeta) error {
	pr, pw := io.Pipe()
	body := &teeBody{upstream: resp.Body, client: pw, lastByte: '\n'}

	s := r.sessions.Create(session.TransportFunc(func(context.Context) (io.ReadCloser, error) {
		return body, nil
	}), session.Callbacks{})

	r.headerHandler.CopyToClient(c, resp)
	c.Set(header.SessionIDHeader, s.ID())

	r.turns.Add(1)
	go r.runTurn(s, body, pw, cancel, meta)

	// Unknown size (-1) makes fasthttp use chunked transfer encoding.
	c.Context().Response.SetBodyStream(pr, -1)
	return nil
}

func (r *Relay) runTurn(s *session.Session, body *teeBody, pw *io.PipeWriter, cancel context.CancelFunc, meta turnMeta) {
	defer r.turns.Done()
	defer cancel()

	logger := r.logger.With(zap.String("session_id", s.ID()))
	err := s.Run(context.Background())

	var (
		remote   *session.RemoteError
		parseErr *envelope.ParseError
	)
	switch {
	case s.State() == session.StateCancelled:
		body.sendError(cancelledMessage)
	case errors.As(err, &remote), errors.As(err, &parseErr):
		// The client received the offending frame and fails on it too.
	case err != nil:
		logger.Warn("upstream stream failed", zap.Error(err))
		body.sendError(interruptedMessage)
	}
	_ = pw.Close()

	if body.clientGone() {
		logger.Info("client disconnected before the turn ended")
	}
	logger.Debug("turn finished",
		zap.String("state", s.State().String()),
		zap.Duration("duration", s.Duration()),
	)

	r.publish(s, meta)
	r.sessions.Destroy(s.ID())
}

// teeBody copies what is read from the upstream to the client. Once the
// client is gone reading goes on, so the turn is still reconciled to its
// end.
type teeBody struct {
	upstream io.ReadCloser
	client   *io.PipeWriter

	mu       sync.Mutex
	gone     bool
	lastByte byte
}

func (t *teeBody) Read(p []byte) (int, error) {
	n, err := t.upstream.Read(p)
	if n > 0 {
		t.forward(p[:n])
	}
	return n, err
}

func (t *teeBody) forward(b []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gone {
		return
	}
	if _, err := t.client.Write(b); err != nil {
		t.gone = true
		return
	}
	t.lastByte = b[len(b)-1]
}

// sendError ends the client stream with an error frame, on a line of its
// own.
func (t *teeBody) sendError(message string) {
	b, err := envelope.Marshal(envelope.Error{Message: message})
	if err != nil {
		return
	}
	t.mu.Lock()
	last := t.lastByte
	t.mu.Unlock()
	if last != '\n' {
		b = append([]byte("\n"), b...)
	}
	t.forward(b)
}

func (t *teeBody) clientGone() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gone
}

func (t *teeBody) Close() error {
	return t.upstream.Close()
}
