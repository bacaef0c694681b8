// Separate package for tele config structure, avoids import cycle with state.
package tele_config

const (
	TransportMQTT = "mqtt"
	TransportNATS = "nats"
)

type Config struct { //nolint:maligned
	Enabled   bool   `hcl:"enable"`
	Transport string `hcl:"transport"` // mqtt|nats
	// tcp://host:1883 for mqtt, nats://host:4222 for nats
	Broker            string `hcl:"broker"`
	ClientID          string `hcl:"client_id"`
	Username          string `hcl:"username"`
	Password          string `hcl:"password"`
	TopicPrefix       string `hcl:"topic_prefix"`
	KeepaliveSec      int    `hcl:"keepalive_sec"`
	PingTimeoutSec    int    `hcl:"ping_timeout_sec"`
	NetworkTimeoutSec int    `hcl:"network_timeout_sec"`
	ReconnectSec      int    `hcl:"reconnect_sec"`
	MaxReconnects     int    `hcl:"max_reconnects"`
	TlsCaFile         string `hcl:"tls_ca_file"`
	// empty: send directly, otherwise spool messages on disk until delivered
	PersistPath string `hcl:"persist_path"`
	LogDebug    bool   `hcl:"log_debug"`
}

func (self *Config) TopicPrefixOrDefault() string {
	if self.TopicPrefix == "" {
		return "blnet"
	}
	return self.TopicPrefix
}

func (self *Config) ClientIDOrDefault() string {
	if self.ClientID == "" {
		return "blnet"
	}
	return self.ClientID
}
