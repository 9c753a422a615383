// Package worker publishes finished turns off the relay's request path.
//
// The relay hands every finished turn to the Pool and moves on, so a slow or
// unreachable event broker never holds up a client stream.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/TencentCloudADP/adp-chat-client/pkg/eventstream"
)

var (
	defaultNumWorkers     uint = 2
	defaultJobQueueSize   uint = 256
	defaultPublishTimeout      = 10 * time.Second
)

// Job is a finished turn waiting to be published.
type Job struct {
	Event *eventstream.TurnFinishedEvent
}

// Config is the configuration of the worker pool.
type Config struct {
	// Publisher receives every enqueued event.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers (defaults to 2).
	NumWorkers uint

	// QueueSize is the capacity of the job channel (defaults to 256).
	QueueSize uint

	// PublishTimeout bounds a single publish (defaults to 10s).
	PublishTimeout time.Duration

	Logger *zap.Logger
}

// Pool publishes turn events asynchronously.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a Pool and starts its workers.
func NewPool(c *Config) (*Pool, error) {
	if c.Publisher == nil {
		return nil, errors.New("worker pool publisher is required")
	}
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}
	if c.PublishTimeout == 0 {
		c.PublishTimeout = defaultPublishTimeout
	}
	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job without blocking. It returns false, dropping the
// job, when the queue is full or the pool is closed.
func (p *Pool) Enqueue(job Job) bool {
	fields := jobFields(job)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.Warn("turn event dropped, pool closed", fields...)
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("turn event queued", fields...)
		return true
	default:
		p.logger.Error("turn event dropped, queue full", fields...)
		return false
	}
}

// Close stops accepting jobs and waits for queued ones to be published.
// Call it after the relay server has stopped.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.publish(job)
	}

	p.logger.Debug("worker stopped", zap.Uint("worker_id", id))
}

func (p *Pool) publish(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.PublishTimeout)
	defer cancel()

	if err := p.config.Publisher.PublishTurn(ctx, job.Event); err != nil {
		p.logger.Error("failed to publish turn event", append(jobFields(job), zap.Error(err))...)
		return
	}
	p.logger.Debug("turn event published", jobFields(job)...)
}

func jobFields(job Job) []zap.Field {
	if job.Event == nil {
		return nil
	}
	return []zap.Field{
		zap.String("event_id", job.Event.EventID),
		zap.String("session_id", job.Event.RequestMeta.SessionID),
		zap.String("state", job.Event.RequestMeta.State),
	}
}
