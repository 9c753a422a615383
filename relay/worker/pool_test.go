package worker

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/TencentCloudADP/adp-chat-client/pkg/eventstream"
	"github.com/TencentCloudADP/adp-chat-client/pkg/record"
)

// recordingPublisher keeps every published event. When block is set each
// publish waits on it.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.TurnFinishedEvent
	err    error
	block  chan struct{}
}

func (r *recordingPublisher) PublishTurn(_ context.Context, event *eventstream.TurnFinishedEvent) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) published() []*eventstream.TurnFinishedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*eventstream.TurnFinishedEvent(nil), r.events...)
}

func turnEvent(sessionID, content string) *eventstream.TurnFinishedEvent {
	return eventstream.NewTurnFinishedEvent(
		eventstream.EventSource{Upstream: "http://upstream"},
		eventstream.TurnRequestMeta{SessionID: sessionID, State: "completed"},
		nil,
		record.Record{RecordID: "r-" + sessionID, Content: content},
	)
}

var _ = Describe("Worker Pool", func() {
	var publisher *recordingPublisher

	BeforeEach(func() {
		publisher = &recordingPublisher{}
	})

	It("requires a publisher", func() {
		_, err := NewPool(&Config{})
		Expect(err).To(HaveOccurred())
	})

	It("applies defaults", func() {
		c := &Config{Publisher: publisher}
		wp, err := NewPool(c)
		Expect(err).NotTo(HaveOccurred())
		defer wp.Close()

		Expect(c.NumWorkers).To(Equal(defaultNumWorkers))
		Expect(c.QueueSize).To(Equal(defaultJobQueueSize))
		Expect(c.PublishTimeout).To(Equal(defaultPublishTimeout))
	})

	It("publishes every queued event before Close returns", func() {
		wp, err := NewPool(&Config{Publisher: publisher, NumWorkers: 3})
		Expect(err).NotTo(HaveOccurred())

		for _, id := range []string{"a", "b", "c", "d"} {
			Expect(wp.Enqueue(Job{Event: turnEvent(id, "hello "+id)})).To(BeTrue())
		}
		wp.Close()

		ids := []string{}
		for _, ev := range publisher.published() {
			ids = append(ids, ev.RequestMeta.SessionID)
		}
		Expect(ids).To(ConsistOf("a", "b", "c", "d"))
	})

	It("drops jobs when the queue is full", func() {
		publisher.block = make(chan struct{})
		wp, err := NewPool(&Config{Publisher: publisher, NumWorkers: 1, QueueSize: 1})
		Expect(err).NotTo(HaveOccurred())

		// The single worker takes the first job and blocks; the second
		// fills the queue.
		Expect(wp.Enqueue(Job{Event: turnEvent("a", "")})).To(BeTrue())
		Eventually(func() int { return len(wp.queue) }).Should(BeZero())
		Expect(wp.Enqueue(Job{Event: turnEvent("b", "")})).To(BeTrue())
		Expect(wp.Enqueue(Job{Event: turnEvent("c", "")})).To(BeFalse())

		close(publisher.block)
		wp.Close()
		Expect(publisher.published()).To(HaveLen(2))
	})

	It("logs publish failures and keeps going", func() {
		core, logs := observer.New(zapcore.DebugLevel)
		publisher.err = errors.New("broker down")
		wp, err := NewPool(&Config{Publisher: publisher, NumWorkers: 1, Logger: zap.New(core)})
		Expect(err).NotTo(HaveOccurred())

		wp.Enqueue(Job{Event: turnEvent("a", "")})
		wp.Enqueue(Job{Event: turnEvent("b", "")})
		wp.Close()

		failures := logs.FilterMessage("failed to publish turn event").All()
		Expect(failures).To(HaveLen(2))
		Expect(failures[0].ContextMap()).To(HaveKeyWithValue("session_id", "a"))
	})

	It("refuses jobs once closed", func() {
		wp, err := NewPool(&Config{Publisher: publisher})
		Expect(err).NotTo(HaveOccurred())
		wp.Close()

		Expect(wp.Enqueue(Job{Event: turnEvent("late", "")})).To(BeFalse())
		Expect(publisher.published()).To(BeEmpty())

		// Closing twice is harmless.
		wp.Close()
	})
})
