// Package mockupstream serves scripted ADP chat turns over HTTP. It stands in
// for the real chat backend when developing against the relay or the chat
// client, and lets tests control frame timing and chunk boundaries.
package mockupstream

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TencentCloudADP/adp-chat-client/pkg/envelope"
	"github.com/TencentCloudADP/adp-chat-client/pkg/transport"
)

// FailureMessage is the message of the error envelope written by a handler
// configured WithFailAfter.
const FailureMessage = "mock upstream failure"

// Script is the ordered list of envelopes served for every chat request.
type Script []envelope.Envelope

type handler struct {
	script    Script
	delay     time.Duration
	chunkSize int
	failAfter int
	logger    *zap.Logger
}

// Option configures a mock handler.
type Option func(*handler)

// WithDelay pauses between frames.
func WithDelay(d time.Duration) Option {
	return func(h *handler) {
		h.delay = d
	}
}

// WithChunkSize splits every frame into writes of at most n bytes, each
// flushed separately. Zero writes whole frames.
func WithChunkSize(n int) Option {
	return func(h *handler) {
		h.chunkSize = n
	}
}

// WithFailAfter ends the stream with an error envelope after n frames.
func WithFailAfter(n int) Option {
	return func(h *handler) {
		h.failAfter = n
	}
}

// WithLogger sets the handler logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// Handler returns an http.Handler answering POST transport.ChatPath with
// script as a server-sent event stream.
//
// Conversation envelopes of the script are stamped with the conversation id
// of the request. Requests without one start a new conversation under a
// generated id.
func Handler(script Script, opts ...Option) http.Handler {
	h := &handler{
		script:    script,
		failAfter: -1,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+transport.ChatPath, h.serveChat)
	return mux
}

func (h *handler) serveChat(w http.ResponseWriter, r *http.Request) {
	var req transport.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "Query is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	conversationID := req.ConversationID
	isNew := conversationID == ""
	if isNew {
		conversationID = uuid.New().String()
	}

	h.logger.Debug("serving scripted turn",
		zap.String("conversation_id", conversationID),
		zap.Bool("new_conversation", isNew),
		zap.Int("frames", len(h.script)),
	)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for i, env := range h.script {
		if h.failAfter >= 0 && i >= h.failAfter {
			h.write(w, flusher, envelope.Error{Message: FailureMessage})
			return
		}
		if conv, ok := env.(envelope.Conversation); ok {
			conv.ID = conversationID
			conv.IsNewConversation = conv.IsNewConversation && isNew
			env = conv
		}
		if !h.write(w, flusher, env) {
			return
		}
		if h.delay > 0 && i < len(h.script)-1 {
			select {
			case <-r.Context().Done():
				h.logger.Debug("client went away", zap.Int("frames_sent", i+1))
				return
			case <-time.After(h.delay):
			}
		}
	}
}

// write sends one frame, reporting false once the client is gone.
func (h *handler) write(w http.ResponseWriter, flusher http.Flusher, env envelope.Envelope) bool {
	b, err := envelope.Marshal(env)
	if err != nil {
		h.logger.Error("failed to marshal frame", zap.Error(err))
		return false
	}

	size := h.chunkSize
	if size <= 0 {
		size = len(b)
	}
	for len(b) > 0 {
		n := min(size, len(b))
		if _, err := w.Write(b[:n]); err != nil {
			h.logger.Debug("write failed", zap.Error(err))
			return false
		}
		flusher.Flush()
		b = b[n:]
	}
	return true
}
