package blnet

import (
	"context"
	"fmt"

	"github.com/juju/errors"
	"github.com/temoto/blnet/crc"
	"github.com/temoto/blnet/hardware/blnet/frame"
)

type State uint8

const (
	StateIdle State = iota
	StateCounting
	StateReading
	StateEnded
)

func (self State) String() string {
	switch self {
	case StateIdle:
		return "Idle"
	case StateCounting:
		return "Counting"
	case StateReading:
		return "Reading"
	case StateEnded:
		return "Ended"
	}
	return fmt.Sprintf("State(%d)", self)
}

// Cursor walks memory backwards from newest record.
// Address stays in [0, AddressEnd] aligned to Inc.
type Cursor struct {
	Address    int
	Remaining  int
	AddressEnd int
	Inc        int
}

func (self *Cursor) Advance() {
	if self.Address < self.Inc {
		self.Address = self.AddressEnd
	} else {
		self.Address -= self.Inc
	}
	if self.Remaining > 0 {
		self.Remaining--
	}
}

// Record is one READ_DATA response. Datasets[i] is nil for blank frame i.
type Record struct {
	Seq      int
	Address  int
	Datasets []*frame.Dataset
	Empty    bool
}

// Session is explicit memory walk state, one per drain.
type Session struct {
	client   *Client
	variant  *Variant
	state    State
	header   Header
	geometry Geometry
	cursor   Cursor
	seq      int
}

func (self *Client) NewSession(dev *Device) *Session {
	return &Session{
		client:   self,
		variant:  dev.Variant,
		header:   dev.Header,
		geometry: dev.Geometry,
	}
}

func (self *Session) State() State       { return self.state }
func (self *Session) Cursor() Cursor     { return self.cursor }
func (self *Session) Geometry() Geometry { return self.geometry }

// StartRead re-reads header and places cursor at newest record.
func (self *Session) StartRead(ctx context.Context) (int, error) {
	switch self.state {
	case StateIdle, StateEnded:
	default:
		return 0, errors.NotValidf("start read in state=%s", self.state)
	}
	self.state = StateCounting
	h, g, err := self.client.ReadHeader(ctx, self.variant)
	if err != nil {
		self.state = StateIdle
		return 0, errors.Annotate(err, "start read")
	}
	self.header, self.geometry = h, g
	self.cursor = Cursor{
		Address:    h.End,
		Remaining:  h.Count,
		AddressEnd: g.AddressEnd,
		Inc:        g.AddressInc,
	}
	self.seq = 0
	self.state = StateReading
	self.client.Log.Debugf("blnet start read count=%d end=%06x", h.Count, h.End)
	return h.Count, nil
}

// ReadDataCommand encodes READ_DATA for memory address.
func ReadDataCommand(address int) []byte {
	return crc.Append([]byte{
		CmdReadData,
		byte(address & 0xff),
		byte((address & 0x7f00) >> 7),
		byte((address & 0xff8000) >> 15),
		readDataCount,
	})
}

func (self *Session) FetchData(ctx context.Context) (Record, error) {
	const op = "read data"
	if self.state != StateReading {
		return Record{}, errors.NotValidf("fetch in state=%s", self.state)
	}
	if self.cursor.Remaining <= 0 {
		return Record{}, errors.NotValidf("fetch past end of memory")
	}

	address := self.cursor.Address
	var b []byte
	err := self.client.withConn(ctx, func(c *Conn) error {
		var e error
		b, e = c.Query(ReadDataCommand(address), self.geometry.FetchSize)
		return e
	})
	if err != nil {
		return Record{}, errors.Annotatef(err, "address=%06x", address)
	}
	if len(b) < 1 || !crc.Verify(b) {
		ic := InvalidChecksum{Op: op, Actual: crc.Sum8(b)}
		if len(b) >= 1 {
			ic.Received, ic.Actual = b[len(b)-1], crc.Sum8(b[:len(b)-1])
		}
		return Record{}, errors.Annotatef(ic, "address=%06x", address)
	}
	if len(b) < self.geometry.FetchSize {
		return Record{}, connError(op, errors.NotValidf("address=%06x response length=%d expected=%d", address, len(b), self.geometry.FetchSize))
	}
	self.cursor.Advance()

	rec := Record{
		Seq:      self.seq,
		Address:  address,
		Datasets: make([]*frame.Dataset, len(self.geometry.RecordOffsets)),
		Empty:    true,
	}
	self.seq++
	for i, off := range self.geometry.RecordOffsets {
		rb := b[off : off+frame.RecordSize]
		if frame.Blank(rb) {
			continue
		}
		d, err := frame.Decode(rb)
		if err != nil {
			return rec, connError(op, errors.Annotatef(err, "address=%06x frame=%d", address, i))
		}
		rec.Datasets[i] = &d
		rec.Empty = false
	}
	return rec, nil
}

// EndRead finishes the walk. commit with Config.Reset also clears device memory.
func (self *Session) EndRead(ctx context.Context, commit bool) error {
	switch self.state {
	case StateCounting, StateReading:
	default:
		return errors.NotValidf("end read in state=%s", self.state)
	}
	defer func() {
		self.cursor = Cursor{}
		self.state = StateEnded
	}()
	reset := commit && self.client.Config.Reset
	err := self.client.withConn(ctx, func(c *Conn) error {
		return self.client.endRead(c, reset)
	})
	return errors.Annotate(err, "end read")
}

// Drain walks up to max records (all when max <= 0), newest first, calling fn for each.
// Blank records are passed with Empty set. Returns number of records fetched.
func (self *Client) Drain(ctx context.Context, dev *Device, max int, fn func(Record) error) (int, error) {
	s := self.NewSession(dev)
	count, err := s.StartRead(ctx)
	if err != nil {
		return 0, errors.Annotate(err, "drain")
	}
	if max > 0 && max < count {
		count = max
	}

	fetched := 0
	for fetched < count {
		rec, err := s.FetchData(ctx)
		if err == nil {
			fetched++
			err = fn(rec)
		}
		if err != nil {
			self.Log.Errorf("blnet drain fetched=%d err=%v", fetched, err)
			// best effort, device must leave read mode
			if errEnd := s.EndRead(context.Background(), false); errEnd != nil {
				return fetched, errors.Annotatef(err, "drain (%v)", errEnd)
			}
			return fetched, errors.Annotate(err, "drain")
		}
	}
	if err := s.EndRead(ctx, true); err != nil {
		return fetched, errors.Annotate(err, "drain")
	}
	return fetched, nil
}
