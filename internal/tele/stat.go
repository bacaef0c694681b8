package tele

import (
	"fmt"
	"sync/atomic"
)

// Stat counters are updated concurrently by Send and spool worker.
type Stat struct {
	Sent   uint32
	Queued uint32
	Errors uint32
}

func (self *Stat) load() Stat {
	return Stat{
		Sent:   atomic.LoadUint32(&self.Sent),
		Queued: atomic.LoadUint32(&self.Queued),
		Errors: atomic.LoadUint32(&self.Errors),
	}
}

func (self Stat) String() string {
	return fmt.Sprintf("sent=%d queued=%d errors=%d", self.Sent, self.Queued, self.Errors)
}

func atomicInc(x *uint32) { atomic.AddUint32(x, 1) }
