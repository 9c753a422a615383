package config

const (
	// ProviderNop disables event publishing.
	ProviderNop = "nop"

	// ProviderKafka publishes finished turns to Kafka.
	ProviderKafka = "kafka"
)

const (
	defaultRelayListen   = ":8080"
	defaultRelayUpstream = "http://localhost:8000"
	defaultRelayWorkers  = 2

	defaultClientRelayTarget = "http://localhost:8080"

	defaultEventStreamProvider = ProviderNop
	defaultEventStreamTopic    = "adpchat.turns"

	defaultMockListen = ":8000"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Relay: RelayConfig{
			Listen:   defaultRelayListen,
			Upstream: defaultRelayUpstream,
			Workers:  defaultRelayWorkers,
		},
		Client: ClientConfig{
			RelayTarget: defaultClientRelayTarget,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    defaultEventStreamTopic,
		},
		Mock: MockConfig{
			Listen: defaultMockListen,
		},
	}
}
