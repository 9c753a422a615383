// Package header decides which headers cross the relay.
//
// The relay sits between a chat client and the ADP chat server:
//
//	Client <--> Relay <--> ADP chat server
//
// Each leg negotiates its own connection and compression, so headers scoped
// to one leg are dropped when copied to the other.
package header

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// SessionIDHeader carries the relay session id of a streamed turn back to
// the client. A client supplied value is never forwarded upstream.
const SessionIDHeader = "X-Adpchat-Session-Id"

// Handler filters headers between the two legs of a relayed request.
type Handler struct {
	dropUpstream   map[string]struct{}
	dropDownstream map[string]struct{}
}

// NewHandler creates a Handler with the relay's filtering rules.
func NewHandler() *Handler {
	return &Handler{
		dropUpstream: set(
			"Connection",
			// Rewritten by http.Transport for the upstream host.
			"Host",
			// Let http.Transport negotiate gzip and decompress on read, so
			// the relay always reconciles plain frames.
			"Accept-Encoding",
			"Content-Length",
			SessionIDHeader,
		),
		dropDownstream: set(
			"Connection",
			// fasthttp chunks the client response itself.
			"Transfer-Encoding",
			// The body was decompressed upstream side; the compress
			// middleware re-encodes it when the client asks.
			"Content-Encoding",
			"Content-Length",
		),
	}
}

// CopyToUpstream copies the client request headers of c onto req.
func (h *Handler) CopyToUpstream(c *fiber.Ctx, req *http.Request) {
	c.Request().Header.VisitAll(func(key, value []byte) {
		k := http.CanonicalHeaderKey(string(key))
		if _, drop := h.dropUpstream[k]; drop {
			return
		}
		req.Header.Add(k, string(value))
	})
}

// CopyToClient copies the upstream response headers of resp onto c.
func (h *Handler) CopyToClient(c *fiber.Ctx, resp *http.Response) {
	for k, v := range resp.Header {
		if _, drop := h.dropDownstream[http.CanonicalHeaderKey(k)]; drop {
			continue
		}
		c.Set(k, strings.Join(v, ", "))
	}
}

func set(keys ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[http.CanonicalHeaderKey(k)] = struct{}{}
	}
	return m
}
