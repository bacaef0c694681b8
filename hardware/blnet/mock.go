package blnet

// Public API to emulate bootloader in tests.
import (
	"io"
	"net"
	"strconv"
	"sync"
	"testing"

	"github.com/juju/errors"
	"github.com/temoto/blnet/crc"
	blnet_config "github.com/temoto/blnet/hardware/blnet/config"
	"github.com/temoto/blnet/hardware/blnet/frame"
	"github.com/temoto/blnet/log2"
)

// MockInject may replace device response to cmd. Return nil to keep normal behavior.
type MockInject func(cmd []byte) []byte

// MockDevice is in-process TCP bootloader on 127.0.0.1.
// Memory is map of address to record frames, missing address reads as erased.
type MockDevice struct {
	t       testing.TB
	ln      net.Listener
	wg      sync.WaitGroup
	mu      sync.Mutex
	variant *Variant
	geom    Geometry

	Mode    byte
	Frames  int
	Start   int
	End     int
	Memory  map[int][][]byte
	Live    [][]byte       // GET_LATEST data per frame, frame.DataSize each
	Waits   map[int][]byte // GET_LATEST request -> wait seconds answered before data
	Inject  MockInject
	Resets  int // RESET_DATA count
	history [][]byte
	conns   map[net.Conn]struct{}
}

// NewMockDevice starts listener, closed by t.Cleanup. frames is used only by CAN.
func NewMockDevice(t testing.TB, v *Variant, frames int) *MockDevice {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(errors.ErrorStack(err))
	}
	if frames <= 0 {
		frames = 1
	}
	self := &MockDevice{
		t:       t,
		ln:      ln,
		variant: v,
		geom:    v.Geometry(frames),
		Mode:    v.Mode,
		Start:   AddressInvalid,
		End:     AddressInvalid,
		Memory:  make(map[int][][]byte),
		Waits:   make(map[int][]byte),
		conns:   make(map[net.Conn]struct{}),
	}
	self.Frames = self.geom.Frames
	self.Live = make([][]byte, self.Frames)
	self.wg.Add(1)
	go self.serve()
	t.Cleanup(self.Close)
	return self
}

func (self *MockDevice) Config() blnet_config.Config {
	host, port, _ := net.SplitHostPort(self.ln.Addr().String())
	p, _ := strconv.Atoi(port)
	return blnet_config.Config{Address: host, Port: p, IOTimeoutSec: 5, DialTimeoutSec: 5}
}

// NewClient returns client for this device logging into t.
func (self *MockDevice) NewClient(reset bool) *Client {
	conf := self.Config()
	conf.Reset = reset
	conf.LogDebug = true
	return NewClient(conf, log2.NewTest(self.t, log2.LDebug))
}

func (self *MockDevice) Geometry() Geometry { return self.geom }

// Store writes records at consecutive addresses from start, wrapping like device memory,
// and sets header Start/End accordingly.
func (self *MockDevice) Store(start int, records ...[][]byte) {
	self.mu.Lock()
	defer self.mu.Unlock()
	a := start
	self.Start = start
	for i, r := range records {
		if i > 0 {
			a += self.geom.AddressInc
			if a > self.geom.AddressEnd {
				a = 0
			}
		}
		self.Memory[a] = r
		self.End = a
	}
}

// With runs f holding device lock, use it to change fields after start.
func (self *MockDevice) With(f func(*MockDevice)) {
	self.mu.Lock()
	defer self.mu.Unlock()
	f(self)
}

// History returns copy of commands received so far.
func (self *MockDevice) History() [][]byte {
	self.mu.Lock()
	defer self.mu.Unlock()
	h := make([][]byte, len(self.history))
	copy(h, self.history)
	return h
}

func (self *MockDevice) Close() {
	_ = self.ln.Close()
	self.mu.Lock()
	for c := range self.conns {
		_ = c.Close()
	}
	self.mu.Unlock()
	self.wg.Wait()
}

func (self *MockDevice) serve() {
	defer self.wg.Done()
	for {
		c, err := self.ln.Accept()
		if err != nil {
			return
		}
		self.mu.Lock()
		self.conns[c] = struct{}{}
		self.mu.Unlock()
		self.wg.Add(1)
		go func() {
			defer self.wg.Done()
			self.handle(c)
			self.mu.Lock()
			delete(self.conns, c)
			self.mu.Unlock()
			_ = c.Close()
		}()
	}
}

func (self *MockDevice) handle(c net.Conn) {
	for {
		cmd, err := readCommand(c)
		if err != nil {
			return
		}
		resp := self.respond(cmd)
		if resp == nil {
			continue
		}
		if _, err := c.Write(resp); err != nil {
			return
		}
	}
}

func readCommand(r io.Reader) ([]byte, error) {
	cmd := make([]byte, 1, 6)
	if _, err := io.ReadFull(r, cmd); err != nil {
		return nil, err
	}
	rest := 0
	switch cmd[0] {
	case CmdGetLatest:
		rest = 1
	case CmdReadData:
		rest = 5
	}
	if rest > 0 {
		cmd = cmd[:1+rest]
		if _, err := io.ReadFull(r, cmd[1:]); err != nil {
			return nil, err
		}
	}
	return cmd, nil
}

func (self *MockDevice) respond(cmd []byte) []byte {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.history = append(self.history, append([]byte(nil), cmd...))
	if self.Inject != nil {
		if resp := self.Inject(cmd); resp != nil {
			return resp
		}
	}

	switch cmd[0] {
	case CmdGetMode:
		return []byte{self.Mode}
	case CmdGetHeader:
		return self.header()
	case CmdReadData:
		if !crc.Verify(cmd) {
			return []byte{0}
		}
		return self.readData(int(cmd[1]) | int(cmd[2])<<7 | int(cmd[3])<<15)
	case CmdGetLatest:
		return self.latest(int(cmd[1]))
	case CmdEndRead:
		return []byte{CmdEndRead}
	case CmdResetData:
		self.Resets++
		self.Memory = make(map[int][][]byte)
		self.Start, self.End = AddressInvalid, AddressInvalid
		return []byte{CmdResetData}
	}
	return []byte{0}
}

func put24(b []byte, x int) []byte {
	return append(b, byte(x), byte(x>>8), byte(x>>16))
}

func (self *MockDevice) header() []byte {
	b := make([]byte, 0, headerSize)
	switch self.variant {
	case VariantCAN:
		b = append(b, 0x01, 0x01, 0x00, 0x00, 0x00, byte(self.Frames))
		for i := 0; i < self.Frames; i++ {
			b = append(b, byte(i+1))
		}
	case VariantDL:
		b = append(b, 0, 0, 0, 0, 0, 0x01)
	case VariantDL2:
		b = append(b, 0, 0, 0, 0, 0, 0x01, 0x02)
	}
	b = put24(b, self.Start)
	b = put24(b, self.End)
	return crc.Append(b)
}

func blankRecord() []byte {
	b := make([]byte, frame.RecordSize)
	for i := range b {
		b[i] = 0xff
	}
	return b
}

func (self *MockDevice) readData(address int) []byte {
	b := make([]byte, self.geom.FetchSize-1)
	records := self.Memory[address]
	for i, off := range self.geom.RecordOffsets {
		r := blankRecord()
		if i < len(records) && records[i] != nil {
			r = records[i]
		}
		copy(b[off:], r)
	}
	return crc.Append(b)
}

func (self *MockDevice) latest(request int) []byte {
	if q := self.Waits[request]; len(q) > 0 {
		self.Waits[request] = q[1:]
		return crc.Append([]byte{RespWait, q[0]})
	}
	b := make([]byte, self.geom.ActualSize-1)
	b[0] = 0x80
	per := len(self.geom.LatestOffsets)
	for j, off := range self.geom.LatestOffsets {
		idx := (request-1)*per + j
		if idx < len(self.Live) && self.Live[idx] != nil {
			copy(b[off:off+frame.DataSize], self.Live[idx])
		}
	}
	return crc.Append(b)
}
