package tele

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/nats-io/nats.go"
	"github.com/temoto/blnet/helpers"
	tele_config "github.com/temoto/blnet/internal/tele/config"
	"github.com/temoto/blnet/log2"
)

// Subjects are dot separated: prefix.topic
type transportNats struct {
	log     *log2.Log
	nc      *nats.Conn
	prefix  string
	timeout time.Duration
}

func (self *transportNats) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config) error {
	self.log = log
	if teleConfig.Broker == "" {
		return errors.NotValidf("tele broker empty")
	}
	tlsconf, err := tlsConfig(teleConfig)
	if err != nil {
		return errors.Trace(err)
	}
	self.prefix = teleConfig.TopicPrefixOrDefault()
	self.timeout = helpers.IntSecondDefault(teleConfig.NetworkTimeoutSec, DefaultNetworkTimeout)
	maxReconnects := teleConfig.MaxReconnects
	if maxReconnects == 0 {
		maxReconnects = -1 // forever
	}

	opts := []nats.Option{
		nats.Name(teleConfig.ClientIDOrDefault()),
		nats.UserInfo(teleConfig.Username, teleConfig.Password),
		nats.Timeout(self.timeout),
		nats.ReconnectWait(helpers.IntSecondDefault(teleConfig.ReconnectSec, 5*time.Second)),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			self.log.Infof("nats disconnected err=%v", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			self.log.Infof("nats reconnected url=%s", c.ConnectedUrl())
		}),
	}
	if tlsconf != nil {
		opts = append(opts, nats.Secure(tlsconf))
	}
	nc, err := nats.Connect(teleConfig.Broker, opts...)
	if err != nil {
		return errors.Annotatef(err, "nats connect broker=%s", teleConfig.Broker)
	}
	self.nc = nc
	return nil
}

func (self *transportNats) Publish(topic string, payload []byte) error {
	subject := fmt.Sprintf("%s.%s", self.prefix, topic)
	if err := self.nc.Publish(subject, payload); err != nil {
		return errors.Annotatef(err, "nats publish subject=%s", subject)
	}
	// flush round trip confirms server received message
	return errors.Annotatef(self.nc.FlushTimeout(self.timeout), "nats flush subject=%s", subject)
}

func (self *transportNats) Close() {
	if self.nc == nil {
		return
	}
	if err := self.nc.Drain(); err != nil {
		self.log.Errorf("nats drain err=%v", err)
	}
	self.nc.Close()
}
