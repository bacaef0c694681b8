// Separate package for hardware/blnet config structure, avoids import cycle with state.
package blnet_config

import (
	"time"

	"github.com/temoto/blnet/helpers"
)

const (
	DefaultPort        = 40000
	DefaultMaxRetries  = 10
	DefaultDialTimeout = 5 * time.Second
	DefaultIOTimeout   = 10 * time.Second
)

type Config struct { //nolint:maligned
	Address        string `hcl:"address"`
	Port           int    `hcl:"port"`
	Reset          bool   `hcl:"reset"` // clear device memory after successful drain
	DialTimeoutSec int    `hcl:"dial_timeout_sec"`
	IOTimeoutSec   int    `hcl:"io_timeout_sec"`
	MaxRetries     int    `hcl:"max_retries"`
	LogDebug       bool   `hcl:"log_debug"`
}

func (self *Config) PortOrDefault() int {
	if self.Port == 0 {
		return DefaultPort
	}
	return self.Port
}

func (self *Config) MaxRetriesOrDefault() int {
	if self.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return self.MaxRetries
}

func (self *Config) DialTimeout() time.Duration {
	return helpers.IntSecondDefault(self.DialTimeoutSec, DefaultDialTimeout)
}

func (self *Config) IOTimeout() time.Duration {
	return helpers.IntSecondDefault(self.IOTimeoutSec, DefaultIOTimeout)
}
