package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent adpchat configuration stored as
// config.toml in the .adpchat/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Relay       RelayConfig       `toml:"relay"`
	Client      ClientConfig      `toml:"client"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Mock        MockConfig        `toml:"mock"`
}

// RelayConfig holds settings of the streaming relay started by
// "adpchat serve".
type RelayConfig struct {
	Listen   string `toml:"listen,omitempty"`
	Upstream string `toml:"upstream,omitempty"`

	// Workers is the number of goroutines publishing finished turns.
	Workers uint `toml:"workers,omitempty"`

	// LogFile, when set, receives a JSON copy of the relay log.
	LogFile string `toml:"log_file,omitempty"`
}

// ClientConfig holds settings for CLI commands that talk to a chat server,
// either the relay or an ADP chat server directly. RelayTarget is a full URL
// (scheme + host + port).
type ClientConfig struct {
	RelayTarget   string `toml:"relay_target,omitempty"`
	ApplicationID string `toml:"application_id,omitempty"`
}

// EventStreamConfig selects where finished turns are published.
type EventStreamConfig struct {
	// Provider is "nop" or "kafka".
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// MockConfig holds settings of the scripted upstream started by
// "adpchat mock".
type MockConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"relay.listen": {
		get: func(c *Config) string { return c.Relay.Listen },
		set: func(c *Config, v string) error { c.Relay.Listen = v; return nil },
	},
	"relay.upstream": {
		get: func(c *Config) string { return c.Relay.Upstream },
		set: func(c *Config, v string) error { c.Relay.Upstream = v; return nil },
	},
	"relay.workers": {
		get: func(c *Config) string {
			if c.Relay.Workers == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Relay.Workers), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return fmt.Errorf("invalid value for relay.workers: %w", err)
			}
			c.Relay.Workers = uint(n)
			return nil
		},
	},
	"relay.log_file": {
		get: func(c *Config) string { return c.Relay.LogFile },
		set: func(c *Config, v string) error { c.Relay.LogFile = v; return nil },
	},
	"client.relay_target": {
		get: func(c *Config) string { return c.Client.RelayTarget },
		set: func(c *Config, v string) error { c.Client.RelayTarget = v; return nil },
	},
	"client.application_id": {
		get: func(c *Config) string { return c.Client.ApplicationID },
		set: func(c *Config, v string) error { c.Client.ApplicationID = v; return nil },
	},
	"eventstream.provider": {
		get: func(c *Config) string { return c.EventStream.Provider },
		set: func(c *Config, v string) error {
			switch v {
			case ProviderNop, ProviderKafka:
				c.EventStream.Provider = v
				return nil
			default:
				return fmt.Errorf("invalid value for eventstream.provider: %q (available: %s, %s)", v, ProviderNop, ProviderKafka)
			}
		},
	},
	"eventstream.brokers": {
		get: func(c *Config) string { return strings.Join(c.EventStream.Brokers, ",") },
		set: func(c *Config, v string) error { c.EventStream.Brokers = SplitList(v); return nil },
	},
	"eventstream.topic": {
		get: func(c *Config) string { return c.EventStream.Topic },
		set: func(c *Config, v string) error { c.EventStream.Topic = v; return nil },
	},
	"mock.listen": {
		get: func(c *Config) string { return c.Mock.Listen },
		set: func(c *Config, v string) error { c.Mock.Listen = v; return nil },
	},
}

// SplitList splits a comma separated value, dropping empty items.
func SplitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
