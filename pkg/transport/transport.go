// Package transport opens ADP chat streams over HTTP.
//
// A Client builds Requests; every Request satisfies session.Transport, so a
// session can be driven straight off the HTTP response body. The engine
// itself imposes no timeouts, so the http.Client in use owns that policy.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	// ChatPath is the streaming chat endpoint.
	ChatPath = "/chat/message"

	// maxErrorBody bounds the response body kept in a StatusError.
	maxErrorBody = 4096
)

// ChatRequest is the body of a chat request.
type ChatRequest struct {
	Query           string            `json:"Query"`
	ConversationID  string            `json:"ConversationId,omitempty"`
	ApplicationID   string            `json:"ApplicationId,omitempty"`
	SearchNetwork   bool              `json:"SearchNetwork,omitempty"`
	CustomVariables map[string]string `json:"CustomVariables,omitempty"`
}

// StatusError is returned when the server answers with a non 200 status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client issues requests against one ADP chat server.
type Client struct {
	// BaseURL is the server root, e.g. "http://localhost:8000".
	BaseURL string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Header is added to every request.
	Header http.Header
}

// Request is a prepared, not yet sent, HTTP request. Each Open sends it
// anew.
type Request struct {
	client *Client
	method string
	path   string
	body   []byte
	header http.Header
}

// Chat prepares a streaming chat request.
func (c *Client) Chat(req ChatRequest) (*Request, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("chat query is required")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling chat request: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "text/event-stream")
	return c.Raw(http.MethodPost, ChatPath, body, header), nil
}

// Raw prepares an arbitrary request. header is merged over the client
// header.
func (c *Client) Raw(method, path string, body []byte, header http.Header) *Request {
	return &Request{
		client: c,
		method: method,
		path:   path,
		body:   body,
		header: header,
	}
}

// Open sends the request and returns the response body of a 200 response.
// Cancelling ctx aborts the request and any read in progress.
func (r *Request) Open(ctx context.Context) (io.ReadCloser, error) {
	url := strings.TrimRight(r.client.BaseURL, "/") + "/" + strings.TrimLeft(r.path, "/")

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, vs := range r.client.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, vs := range r.header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := r.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(b)),
		}
	}

	return resp.Body, nil
}

func (r *Request) httpClient() *http.Client {
	if r.client.HTTPClient != nil {
		return r.client.HTTPClient
	}
	return http.DefaultClient
}
