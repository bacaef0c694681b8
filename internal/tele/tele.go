package tele

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/blnet/helpers"
	tele_config "github.com/temoto/blnet/internal/tele/config"
	"github.com/temoto/blnet/log2"
	"github.com/temoto/spq"
)

const (
	DefaultNetworkTimeout = 30 * time.Second

	TopicDataset = "dataset"
)

// Tele contract:
//   - Init() fails only with invalid config, network issues ignored
//   - with persist_path, Send blocks at most for disk write
//     messages are delivered in background at least once
//   - without persist_path, Send publishes directly and returns delivery error
//   - Close() stops background delivery, spooled messages stay on disk
type Tele struct {
	config    tele_config.Config
	log       *log2.Log
	transport Transporter
	q         *spq.Queue
	alive     *alive.Alive
	backoff   helpers.Backoff
	stat      Stat
}

func New() *Tele { return &Tele{} }

func NewWithTransporter(trans Transporter) *Tele {
	return &Tele{transport: trans}
}

func (self *Tele) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config) error {
	self.config = teleConfig
	self.log = log
	if self.config.LogDebug {
		self.log = log.Clone(log2.LDebug)
	}
	if !self.config.Enabled {
		self.log.Infof("tele disabled")
		return nil
	}

	// test code sets .transport
	if self.transport == nil {
		t, err := newTransport(self.config.Transport)
		if err != nil {
			return errors.Trace(err)
		}
		self.transport = t
	}
	if err := self.transport.Init(ctx, self.log, self.config); err != nil {
		return errors.Annotate(err, "tele transport")
	}

	if self.config.PersistPath == "" {
		return nil
	}
	var err error
	self.q, err = spq.Open(self.config.PersistPath)
	if err != nil {
		return errors.Annotate(err, "tele queue")
	}
	self.backoff = helpers.Backoff{Min: time.Second, Max: time.Minute, K: 2}
	self.alive = alive.NewAlive()
	self.alive.Add(1)
	go self.qworker()
	return nil
}

func (self *Tele) Enabled() bool { return self.config.Enabled && self.transport != nil }

func (self *Tele) Stat() Stat { return self.stat.load() }

// Send forwards one dataset message.
func (self *Tele) Send(m *Message) error {
	if !self.Enabled() {
		return nil
	}
	b, err := m.Marshal()
	if err != nil {
		return errors.Trace(err)
	}
	if self.q != nil {
		if err := self.q.Push(append([]byte{qDataset}, b...)); err != nil {
			atomicInc(&self.stat.Errors)
			return errors.Annotate(err, "tele queue push")
		}
		atomicInc(&self.stat.Queued)
		return nil
	}
	return self.publish(b)
}

func (self *Tele) SendAll(ms []*Message) error {
	errs := make([]error, 0)
	for _, m := range ms {
		if err := self.Send(m); err != nil {
			errs = append(errs, err)
		}
	}
	return helpers.FoldErrors(errs)
}

func (self *Tele) Close() {
	if self.alive != nil {
		self.alive.Stop()
	}
	if self.q != nil {
		if err := self.q.Close(); err != nil {
			self.log.Errorf("tele queue close err=%v", err)
		}
	}
	if self.alive != nil {
		self.alive.Wait()
	}
	if self.transport != nil {
		self.transport.Close()
	}
}

func (self *Tele) publish(b []byte) error {
	if err := self.transport.Publish(TopicDataset, b); err != nil {
		atomicInc(&self.stat.Errors)
		return errors.Trace(err)
	}
	atomicInc(&self.stat.Sent)
	return nil
}

// denote value type in persistent queue bytes form
const (
	qDataset byte = 1
)

func (self *Tele) qworker() {
	defer self.alive.Done()
	for {
		box, err := self.q.Peek()
		switch err {
		case nil:
			// success path
			b := box.Bytes()
			var del bool
			del, err = self.qhandle(b)
			if err != nil {
				self.log.Errorf("tele qhandle b=%x err=%v", b, err)
			}
			if del {
				if err = self.q.Delete(box); err != nil {
					self.log.Errorf("tele qhandle Delete b=%x err=%v", b, err)
				}
			} else {
				if err = self.q.DeletePush(box); err != nil {
					self.log.Errorf("tele qhandle DeletePush b=%x err=%v", b, err)
				}
			}
			if delay := self.backoff.DelayAfter(del); delay > 0 {
				select {
				case <-time.After(delay):
				case <-self.alive.StopChan():
					return
				}
			}

		case spq.ErrClosed:
			if self.alive.IsRunning() {
				self.log.Errorf("CRITICAL tele spq closed unexpectedly")
			}
			return

		default:
			self.log.Errorf("CRITICAL tele spq err=%v", err)
			select {
			case <-time.After(time.Second):
			case <-self.alive.StopChan():
				return
			}
		}
	}
}

// qhandle returns true when message should be removed from queue.
func (self *Tele) qhandle(b []byte) (bool, error) {
	if len(b) == 0 {
		return true, errors.Errorf("tele spq peek=empty")
	}
	switch b[0] {
	case qDataset:
		if err := self.publish(b[1:]); err != nil {
			return false, err
		}
		return true, nil
	default:
		return true, errors.Errorf("unknown kind=%d", b[0])
	}
}
