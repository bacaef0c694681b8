package tele

import (
	"context"
	"sync"

	"github.com/juju/errors"
	tele_config "github.com/temoto/blnet/internal/tele/config"
	"github.com/temoto/blnet/log2"
)

type MockPublished struct {
	Topic   string
	Payload []byte
}

// TransportMock records published messages, Fail makes Publish return error.
type TransportMock struct {
	mu     sync.Mutex
	Fail   error
	Closed bool
	ch     chan MockPublished
}

func NewTransportMock() *TransportMock {
	return &TransportMock{ch: make(chan MockPublished, 64)}
}

func (self *TransportMock) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config) error {
	return nil
}

func (self *TransportMock) Publish(topic string, payload []byte) error {
	self.mu.Lock()
	fail := self.Fail
	self.mu.Unlock()
	if fail != nil {
		return errors.Trace(fail)
	}
	self.ch <- MockPublished{Topic: topic, Payload: append([]byte(nil), payload...)}
	return nil
}

func (self *TransportMock) SetFail(err error) {
	self.mu.Lock()
	self.Fail = err
	self.mu.Unlock()
}

func (self *TransportMock) Published() <-chan MockPublished { return self.ch }

func (self *TransportMock) Close() {
	self.mu.Lock()
	self.Closed = true
	self.mu.Unlock()
}
