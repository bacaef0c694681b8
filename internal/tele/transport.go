package tele

import (
	"context"

	"github.com/juju/errors"
	tele_config "github.com/temoto/blnet/internal/tele/config"
	"github.com/temoto/blnet/log2"
)

// Tele transport contract:
// - Init fails only with invalid config, ignores network errors
// - Publish delivers within network timeout or fails; caller decides to retry
// - application may start without network available
type Transporter interface {
	Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config) error
	// topic is relative to configured prefix
	Publish(topic string, payload []byte) error
	Close()
}

func newTransport(kind string) (Transporter, error) {
	switch kind {
	case "", tele_config.TransportMQTT:
		return &transportMqtt{}, nil
	case tele_config.TransportNATS:
		return &transportNats{}, nil
	}
	return nil, errors.NotValidf("tele transport=%s", kind)
}
