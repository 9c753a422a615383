package relay

import (
	"github.com/TencentCloudADP/adp-chat-client/pkg/eventstream"
)

// Config is the relay server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080").
	ListenAddr string

	// UpstreamURL is the ADP chat server (e.g., "http://localhost:8000").
	UpstreamURL string

	// Publisher receives a TurnFinishedEvent for every relayed turn.
	Publisher eventstream.Publisher

	// Workers is the number of publishing workers. Zero uses the pool
	// default.
	Workers uint
}
