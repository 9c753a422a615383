package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/TencentCloudADP/adp-chat-client/pkg/envelope"
	"github.com/TencentCloudADP/adp-chat-client/pkg/eventstream"
	adplogger "github.com/TencentCloudADP/adp-chat-client/pkg/logger"
	"github.com/TencentCloudADP/adp-chat-client/pkg/mockupstream"
	"github.com/TencentCloudADP/adp-chat-client/pkg/record"
	"github.com/TencentCloudADP/adp-chat-client/pkg/session"
	"github.com/TencentCloudADP/adp-chat-client/pkg/transport"
	"github.com/TencentCloudADP/adp-chat-client/relay/header"
)

const wantContent = "Here is what I found in the documentation[1]."

type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.TurnFinishedEvent
	closed bool
}

func (p *recordingPublisher) PublishTurn(_ context.Context, event *eventstream.TurnFinishedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *recordingPublisher) published() []*eventstream.TurnFinishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*eventstream.TurnFinishedEvent(nil), p.events...)
}

func chatRequest(query string) *http.Request {
	body, err := json.Marshal(transport.ChatRequest{Query: query, ApplicationID: "app-1"})
	Expect(err).NotTo(HaveOccurred())
	req := httptest.NewRequest(http.MethodPost, transport.ChatPath, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	return req
}

// reconcileBody runs the stream received by a client through a session.
func reconcileBody(body []byte) *session.Session {
	s := session.New(session.TransportFunc(func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}), session.Callbacks{})
	_ = s.Run(context.Background())
	return s
}

// brokenStream answers with one frame and drops the connection mid-body.
func brokenStream(w http.ResponseWriter, _ *http.Request) {
	conn, buf, err := w.(http.Hijacker).Hijack()
	if err != nil {
		return
	}
	defer conn.Close()

	frame, _ := envelope.Marshal(envelope.Reply{Delta: envelope.Delta{
		Record:      record.Record{RecordID: "r1", Content: "partial"},
		Incremental: true,
	}})
	fmt.Fprintf(buf, "HTTP/1.1 200 OK\r\nContent-Type: text/event-stream\r\nTransfer-Encoding: chunked\r\n\r\n")
	fmt.Fprintf(buf, "%x\r\n%s\r\n", len(frame), frame)
	_ = buf.Flush()
}

var _ = Describe("Relay", func() {
	var (
		r         *Relay
		publisher *recordingPublisher
		upstream  *httptest.Server
		mockOpts  []mockupstream.Option
	)

	BeforeEach(func() {
		mockOpts = nil
		publisher = &recordingPublisher{}
	})

	JustBeforeEach(func() {
		mux := http.NewServeMux()
		mux.Handle(transport.ChatPath, mockupstream.Handler(mockupstream.DefaultScript(), mockOpts...))
		mux.HandleFunc("POST /broken", brokenStream)
		mux.HandleFunc("GET /status", func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Upstream", "yes")
			fmt.Fprintf(w, `{"q":%q,"auth":%q}`, req.URL.Query().Get("q"), req.Header.Get("Authorization"))
		})
		upstream = httptest.NewServer(mux)

		var err error
		r, err = New(Config{
			ListenAddr:  ":0",
			UpstreamURL: upstream.URL + "/",
			Publisher:   publisher,
		}, adplogger.Nop())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(r.Close()).To(Succeed())
		upstream.Close()
	})

	Describe("New", func() {
		It("requires an upstream", func() {
			_, err := New(Config{Publisher: publisher}, adplogger.Nop())
			Expect(err).To(MatchError(ErrUpstreamRequired))
		})

		It("requires a publisher", func() {
			_, err := New(Config{UpstreamURL: "http://localhost:8000"}, adplogger.Nop())
			Expect(err).To(MatchError(ErrPublisherRequired))
		})
	})

	Context("when relaying a streamed turn", func() {
		var (
			resp *http.Response
			body []byte
		)

		JustBeforeEach(func() {
			var err error
			resp, err = r.server.Test(chatRequest("what is ADP?"), -1)
			Expect(err).NotTo(HaveOccurred())
			body, err = io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
		})

		It("streams every upstream frame to the client", func() {
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/event-stream"))
			Expect(strings.Count(string(body), "data: ")).To(Equal(len(mockupstream.DefaultScript())))

			s := reconcileBody(body)
			Expect(s.State()).To(Equal(session.StateCompleted))
			Expect(s.Snapshot().Record.Content).To(Equal(wantContent))
		})

		It("returns the session id", func() {
			Expect(resp.Header.Get(header.SessionIDHeader)).NotTo(BeEmpty())
		})

		It("publishes the finished turn", func() {
			Eventually(publisher.published).Should(HaveLen(1))
			event := publisher.published()[0]

			Expect(event.EventType).To(Equal(eventstream.EventTypeTurnFinished))
			Expect(event.Source.ApplicationID).To(Equal("app-1"))
			Expect(event.Source.Upstream).To(Equal(upstream.URL))
			Expect(event.RequestMeta.SessionID).To(Equal(resp.Header.Get(header.SessionIDHeader)))
			Expect(event.RequestMeta.Path).To(Equal(transport.ChatPath))
			Expect(event.RequestMeta.State).To(Equal("completed"))
			Expect(event.RequestMeta.HTTPStatus).To(Equal(http.StatusOK))
			Expect(event.RequestMeta.Error).To(BeEmpty())
			Expect(event.Record.Content).To(Equal(wantContent))
			Expect(event.Record.IsFinal).To(BeTrue())
			Expect(event.Conversation).NotTo(BeNil())
			Expect(event.Conversation.Title).To(Equal("Product documentation"))
			Expect(event.Key()).To(Equal(event.Conversation.ID))
		})

		It("forgets the session once it ends", func() {
			Eventually(r.Sessions().Len).Should(BeZero())
		})

		Context("and the upstream reports an error", func() {
			BeforeEach(func() {
				mockOpts = []mockupstream.Option{mockupstream.WithFailAfter(6)}
			})

			It("passes the error frame through", func() {
				s := reconcileBody(body)
				Expect(s.State()).To(Equal(session.StateFailed))

				var remote *session.RemoteError
				Expect(errors.As(s.Err(), &remote)).To(BeTrue())
				Expect(remote.Message).To(Equal(mockupstream.FailureMessage))
				Expect(strings.Count(string(body), `"Type":"error"`)).To(Equal(1))
			})

			It("publishes the failed turn with its partial record", func() {
				Eventually(publisher.published).Should(HaveLen(1))
				event := publisher.published()[0]
				Expect(event.RequestMeta.State).To(Equal("failed"))
				Expect(event.RequestMeta.Error).To(ContainSubstring(mockupstream.FailureMessage))
				Expect(event.Record.Content).To(Equal("Here is "))
			})
		})
	})

	It("ends an interrupted stream with an error frame", func() {
		req := httptest.NewRequest(http.MethodPost, "/broken", strings.NewReader(`{"Query":"hi"}`))
		resp, err := r.server.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()

		s := reconcileBody(body)
		Expect(s.Snapshot().Record.Content).To(Equal("partial"))
		var remote *session.RemoteError
		Expect(errors.As(s.Err(), &remote)).To(BeTrue())
		Expect(remote.Message).To(Equal(interruptedMessage))

		Eventually(publisher.published).Should(HaveLen(1))
		Expect(publisher.published()[0].RequestMeta.State).To(Equal("failed"))
	})

	Context("when the client cancels a streaming turn", func() {
		BeforeEach(func() {
			mockOpts = []mockupstream.Option{mockupstream.WithDelay(100 * time.Millisecond)}
		})

		It("stops the turn and publishes it as cancelled", func() {
			done := make(chan []byte, 1)
			go func() {
				defer GinkgoRecover()
				resp, err := r.server.Test(chatRequest("slow"), -1)
				Expect(err).NotTo(HaveOccurred())
				body, _ := io.ReadAll(resp.Body)
				resp.Body.Close()
				done <- body
			}()

			Eventually(r.Sessions().List).Should(HaveLen(1))
			id := r.Sessions().List()[0]

			resp, err := r.server.Test(httptest.NewRequest(http.MethodDelete, "/sessions/"+id, nil), -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

			var body []byte
			Eventually(done, 5*time.Second).Should(Receive(&body))
			s := reconcileBody(body)
			var remote *session.RemoteError
			Expect(errors.As(s.Err(), &remote)).To(BeTrue())
			Expect(remote.Message).To(Equal(cancelledMessage))

			Eventually(publisher.published).Should(HaveLen(1))
			event := publisher.published()[0]
			Expect(event.RequestMeta.SessionID).To(Equal(id))
			Expect(event.RequestMeta.State).To(Equal("cancelled"))
			Expect(event.Record.IsFinal).To(BeFalse())
		})
	})

	Describe("session routes", func() {
		It("lists no sessions when idle", func() {
			resp, err := r.server.Test(httptest.NewRequest(http.MethodGet, "/sessions", nil), -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			var out struct {
				Sessions []sessionInfo `json:"sessions"`
			}
			Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
			Expect(out.Sessions).To(BeEmpty())
		})

		It("returns 404 when cancelling an unknown session", func() {
			resp, err := r.server.Test(httptest.NewRequest(http.MethodDelete, "/sessions/nope", nil), -1)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("plain requests", func() {
		It("forwards path, query and headers", func() {
			req := httptest.NewRequest(http.MethodGet, "/status?q=ping", nil)
			req.Header.Set("Authorization", "Bearer t")
			resp, err := r.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("X-Upstream")).To(Equal("yes"))
			Expect(resp.Header.Get(header.SessionIDHeader)).To(BeEmpty())

			b, _ := io.ReadAll(resp.Body)
			Expect(string(b)).To(MatchJSON(`{"q":"ping","auth":"Bearer t"}`))
			Expect(publisher.published()).To(BeEmpty())
		})

		It("passes upstream status codes through", func() {
			resp, err := r.server.Test(httptest.NewRequest(http.MethodGet, "/missing", nil), -1)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("passes rejected chat requests through", func() {
			req := httptest.NewRequest(http.MethodPost, transport.ChatPath, strings.NewReader(`{"Query":""}`))
			resp, err := r.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(publisher.published()).To(BeEmpty())
		})
	})

	Describe("Handler", func() {
		It("serves turns to net/http clients", func() {
			server := httptest.NewServer(r.Handler())
			defer server.Close()

			client := &transport.Client{BaseURL: server.URL}
			chat, err := client.Chat(transport.ChatRequest{Query: "hi"})
			Expect(err).NotTo(HaveOccurred())

			s := session.New(chat, session.Callbacks{})
			Expect(s.Run(context.Background())).To(Succeed())
			Expect(s.Snapshot().Record.Content).To(Equal(wantContent))
		})
	})
})

var _ = Describe("Relay without upstream", func() {
	It("answers 502 when the upstream is unreachable", func() {
		r, err := New(Config{UpstreamURL: "http://127.0.0.1:1", Publisher: &recordingPublisher{}}, adplogger.Nop())
		Expect(err).NotTo(HaveOccurred())
		defer r.Close()

		resp, err := r.server.Test(chatRequest("hi"), -1)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
	})

	It("closes the publisher on Close", func() {
		publisher := &recordingPublisher{}
		r, err := New(Config{UpstreamURL: "http://127.0.0.1:1", Publisher: publisher}, adplogger.Nop())
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Close()).To(Succeed())
		Expect(publisher.closed).To(BeTrue())
	})
})
