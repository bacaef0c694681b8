package blnet

import (
	"encoding/binary"
	"fmt"

	"github.com/juju/errors"
	"github.com/temoto/blnet/crc"
	"github.com/temoto/blnet/hardware/blnet/frame"
)

// Variant describes one bootloader mode as data: header layout and frame geometry.
type Variant struct {
	Name string
	Mode byte

	// header bytes before start/end addresses, excluding per-frame CAN node ids
	headerPrefix int
	// CAN reports frame count in header, others are fixed
	framesFromHeader bool
	fixedFrames      int
	incPerFrame      int
	fixedInc         int
	actualSize       func(frames int) int
	fetchSize        func(frames int) int
	recordOffsets    func(frames int) []int
	// frames in one GET_LATEST response
	latestOffsets []int
}

var (
	VariantCAN = &Variant{
		Name:             "CAN",
		Mode:             ModeCAN,
		headerPrefix:     6, // type, version, stamp[3], frames
		framesFromHeader: true,
		incPerFrame:      64,
		actualSize:       func(int) int { return 57 },
		fetchSize:        func(n int) int { return 4 + frame.RecordSize*n },
		recordOffsets: func(n int) []int {
			offs := make([]int, n)
			for i := range offs {
				offs[i] = 3 + frame.RecordSize*i
			}
			return offs
		},
		latestOffsets: []int{1},
	}
	VariantDL = &Variant{
		Name:          "DL",
		Mode:          ModeDL,
		headerPrefix:  6, // [5], device
		fixedFrames:   1,
		fixedInc:      64,
		actualSize:    func(int) int { return 57 },
		fetchSize:     func(int) int { return 65 },
		recordOffsets: func(int) []int { return []int{0} },
		latestOffsets: []int{1},
	}
	VariantDL2 = &Variant{
		Name:          "DL2",
		Mode:          ModeDL2,
		headerPrefix:  7, // [5], device[2]
		fixedFrames:   2,
		fixedInc:      128,
		actualSize:    func(int) int { return 113 },
		fetchSize:     func(int) int { return 126 },
		recordOffsets: func(int) []int { return []int{0, 64} },
		latestOffsets: []int{1, 57},
	}

	Variants = []*Variant{VariantCAN, VariantDL, VariantDL2}
)

func VariantByMode(mode byte) (*Variant, error) {
	for _, v := range Variants {
		if v.Mode == mode {
			return v, nil
		}
	}
	return nil, UnsupportedMode(mode)
}

func (self *Variant) String() string { return self.Name }

// Geometry is fixed by variant and frame count, immutable after header read.
type Geometry struct {
	AddressInc int
	Frames     int // logical datasets per memory record
	Requests   int // GET_LATEST requests per snapshot
	ActualSize int // GET_LATEST response length
	FetchSize  int // READ_DATA response length
	AddressEnd int

	RecordOffsets []int // READ_DATA response, one per frame
	LatestOffsets []int // GET_LATEST response, frames per request
}

func (self *Variant) Geometry(frames int) Geometry {
	if !self.framesFromHeader {
		frames = self.fixedFrames
	}
	inc := self.fixedInc
	if inc == 0 {
		inc = self.incPerFrame * frames
	}
	return Geometry{
		AddressInc:    inc,
		Frames:        frames,
		Requests:      frames / len(self.latestOffsets),
		ActualSize:    self.actualSize(frames),
		FetchSize:     self.fetchSize(frames),
		AddressEnd:    (addressCeiling / inc) * inc,
		RecordOffsets: self.recordOffsets(frames),
		LatestOffsets: self.latestOffsets,
	}
}

func (self *Geometry) String() string {
	return fmt.Sprintf("inc=%d frames=%d requests=%d actual=%d fetch=%d end=%06x",
		self.AddressInc, self.Frames, self.Requests, self.ActualSize, self.FetchSize, self.AddressEnd)
}

// Header is parsed GET_HEADER response.
type Header struct {
	Frames  int
	NodeIDs []byte // CAN only
	Start   int
	End     int
	Count   int
}

func (self *Header) Valid() bool {
	return self.Start != AddressInvalid && self.End != AddressInvalid
}

func (self *Variant) headerLen(frames int) int {
	n := self.headerPrefix + 3 + 3 + 1
	if self.framesFromHeader {
		n += frames
	}
	return n
}

// ParseHeader validates checksum and extracts addresses per variant layout.
func (self *Variant) ParseHeader(b []byte) (Header, Geometry, error) {
	const op = "header"
	var h Header
	if len(b) < 2 {
		return h, Geometry{}, connError(op, errors.NotValidf("response=%x", b))
	}
	if !crc.Verify(b) {
		return h, Geometry{}, InvalidChecksum{Op: op, Received: b[len(b)-1], Actual: crc.Sum8(b[:len(b)-1])}
	}
	h.Frames = self.fixedFrames
	if self.framesFromHeader {
		if len(b) <= 5 || b[5] == 0 {
			return h, Geometry{}, connError(op, errors.NotValidf("frames in response=%x", b))
		}
		h.Frames = int(b[5])
	}
	if expect := self.headerLen(h.Frames); len(b) != expect {
		return h, Geometry{}, connError(op, errors.NotValidf("%s response length=%d expected=%d", self.Name, len(b), expect))
	}
	off := self.headerPrefix
	if self.framesFromHeader {
		h.NodeIDs = append([]byte(nil), b[off:off+h.Frames]...)
		off += h.Frames
	}
	h.Start = addr24(b[off:])
	h.End = addr24(b[off+3:])
	g := self.Geometry(h.Frames)
	h.Count = Count(h.Start, h.End, g.AddressInc, g.AddressEnd)
	return h, g, nil
}

// Count of stored records between device-reported addresses.
// Invalid marker in either address means empty memory.
func Count(start, end, inc, addressEnd int) int {
	if start == AddressInvalid || end == AddressInvalid {
		return 0
	}
	if end > start {
		return (end-start)/inc + 1
	}
	return (addressEnd + start - end) / inc
}

func addr24(b []byte) int {
	return int(binary.LittleEndian.Uint32([]byte{b[0], b[1], b[2], 0}))
}
