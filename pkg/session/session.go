// Package session drives one streamed assistant turn from its byte source to
// the caller's callbacks.
//
// A Session owns the pipeline
//
//	Transport ──> frame.Reader ──> envelope.Parse ──> reconcile.Reconciler
//	                                                        │
//	                     OnUpdate / OnError / OnComplete <──┘
//
// and runs it on the goroutine calling Run. Envelopes are consumed strictly
// in arrival order; the byte read is the only blocking point.
package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/TencentCloudADP/adp-chat-client/pkg/envelope"
	"github.com/TencentCloudADP/adp-chat-client/pkg/frame"
	"github.com/TencentCloudADP/adp-chat-client/pkg/reconcile"
)

// Transport opens the byte stream of one turn. Cancelling ctx or closing
// the returned body aborts the stream.
type Transport interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// TransportFunc adapts a function to a Transport.
type TransportFunc func(ctx context.Context) (io.ReadCloser, error)

func (f TransportFunc) Open(ctx context.Context) (io.ReadCloser, error) {
	return f(ctx)
}

// Callbacks receive the state of a turn. Every callback is optional and is
// invoked from the goroutine running the session.
type Callbacks struct {
	// OnUpdate receives a snapshot after every successfully parsed envelope
	// other than an error envelope.
	OnUpdate func(reconcile.Snapshot)

	// OnError receives the reason a session failed: a *RemoteError, an
	// *envelope.ParseError or a transport error. It is never called for
	// cancellation.
	OnError func(error)

	// OnComplete is called exactly once with the terminal state.
	OnComplete func(State)
}

// Session is a single streamed turn.
type Session struct {
	id            string
	transport     Transport
	callbacks     Callbacks
	logger        *zap.Logger
	reconcileOpts []reconcile.Option
	reconciler    *reconcile.Reconciler

	mu              sync.Mutex
	state           State
	err             error
	last            reconcile.Snapshot
	started         bool
	cancelRequested bool
	cancel          context.CancelFunc
	startedAt       time.Time
	finishedAt      time.Time

	done chan struct{}
}

// Option configures a Session.
type Option func(*Session)

// WithID sets the session id.
func WithID(id string) Option {
	return func(s *Session) {
		s.id = id
	}
}

// WithLogger sets the session logger. The reconciler logs through it too
// unless WithReconcileOptions overrides it.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithReconcileOptions configures the reconciler of the session.
func WithReconcileOptions(opts ...reconcile.Option) Option {
	return func(s *Session) {
		s.reconcileOpts = append(s.reconcileOpts, opts...)
	}
}

// New creates a pending session.
func New(transport Transport, callbacks Callbacks, opts ...Option) *Session {
	s := &Session{
		transport: transport,
		callbacks: callbacks,
		logger:    zap.NewNop(),
		state:     StatePending,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("session_id", s.id))
	s.reconciler = reconcile.New(append([]reconcile.Option{reconcile.WithLogger(s.logger)}, s.reconcileOpts...)...)
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Run streams the turn until it completes, fails or is cancelled. It returns
// the error passed to OnError, nil otherwise. A session runs at most once.
func (s *Session) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.cancel = cancel
	s.startedAt = time.Now()
	cancelled := s.cancelRequested
	if !cancelled {
		s.state = StateStreaming
	}
	s.mu.Unlock()
	defer close(s.done)

	if cancelled {
		return s.finish(StateCancelled, nil)
	}

	s.logger.Debug("opening stream")
	body, err := s.transport.Open(runCtx)
	if err != nil {
		return s.abort(ctx, err)
	}
	if body == nil {
		return s.finish(StateFailed, ErrNoBody)
	}
	defer body.Close()

	// Unblock a pending read on cancellation even when the transport does
	// not watch ctx itself.
	stop := context.AfterFunc(runCtx, func() {
		_ = body.Close()
	})
	defer stop()

	lines := frame.NewReader(body)
	for {
		line, err := lines.Next()
		if errors.Is(err, io.EOF) {
			return s.finish(StateCompleted, nil)
		}
		if err != nil {
			return s.abort(ctx, err)
		}
		if s.isCancelled() {
			return s.finish(StateCancelled, nil)
		}

		env, err := envelope.Parse(line)
		if err != nil {
			return s.finish(StateFailed, err)
		}

		snap, outcome := s.reconciler.Apply(env)
		s.mu.Lock()
		s.last = snap
		s.mu.Unlock()

		if outcome == reconcile.OutcomeTerminated {
			msg := env.(envelope.Error).Message
			return s.finish(StateFailed, &RemoteError{Message: msg})
		}
		if s.isCancelled() {
			return s.finish(StateCancelled, nil)
		}
		if s.callbacks.OnUpdate != nil {
			s.callbacks.OnUpdate(snap)
		}
	}
}

// Cancel aborts the session. A session cancelled before Run starts
// completes as cancelled without opening its transport. Cancel is safe to
// call from any goroutine and more than once.
func (s *Session) Cancel() {
	s.mu.Lock()
	s.cancelRequested = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Done is closed once Run has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that failed the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Snapshot returns the last reconciled state. After a failure it holds the
// partial record.
func (s *Session) Snapshot() reconcile.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Duration returns how long the session has been running, or ran.
func (s *Session) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.startedAt.IsZero():
		return 0
	case s.finishedAt.IsZero():
		return time.Since(s.startedAt)
	default:
		return s.finishedAt.Sub(s.startedAt)
	}
}

func (s *Session) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelRequested
}

// abort classifies a transport error. Errors caused by Cancel or by the
// caller cancelling ctx end the session as cancelled; deadlines and every
// other error fail it.
func (s *Session) abort(ctx context.Context, err error) error {
	if s.isCancelled() || errors.Is(ctx.Err(), context.Canceled) {
		return s.finish(StateCancelled, nil)
	}
	return s.finish(StateFailed, err)
}

func (s *Session) finish(state State, err error) error {
	s.mu.Lock()
	s.state = state
	s.err = err
	s.finishedAt = time.Now()
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("stream failed", zap.Error(err))
		if s.callbacks.OnError != nil {
			s.callbacks.OnError(err)
		}
	} else {
		s.logger.Debug("stream finished", zap.String("state", state.String()))
	}

	if s.callbacks.OnComplete != nil {
		s.callbacks.OnComplete(state)
	}
	return err
}
