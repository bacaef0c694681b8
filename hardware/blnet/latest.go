package blnet

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/blnet/crc"
	"github.com/temoto/blnet/hardware/blnet/frame"
)

// LatestFrame is either decoded Dataset or Timeout sentinel.
type LatestFrame struct {
	Index   int
	Dataset *frame.Dataset
	Timeout bool
}

type LatestInfo struct {
	Request int
	Waits   []time.Duration
	// 0-based attempt which produced data, -1 if none
	Attempt int
}

type Latest struct {
	Frames []LatestFrame
	Date   time.Time
	Info   []LatestInfo
}

// Latest fetches current live dataset of every frame.
// Device may answer "wait N seconds", then connection is dropped for that time.
// Frames without data after maxRetries attempts are marked Timeout.
func (self *Client) Latest(ctx context.Context, dev *Device, maxRetries int) (*Latest, error) {
	const op = "latest"
	if maxRetries <= 0 {
		maxRetries = self.Config.MaxRetriesOrDefault()
	}
	g := dev.Geometry
	result := &Latest{
		Frames: make([]LatestFrame, g.Frames),
		Info:   make([]LatestInfo, 0, g.Requests),
	}
	for i := range result.Frames {
		result.Frames[i].Index = i
	}

	c, err := self.Dial(ctx)
	if err != nil {
		return nil, errors.Annotate(err, op)
	}
	defer func() { c.Close() }()

	for r := 1; r <= g.Requests; r++ {
		info := LatestInfo{Request: r, Attempt: -1}
		cmd := []byte{CmdGetLatest, byte(r)}
		for attempt := 0; attempt < maxRetries; attempt++ {
			b, err := c.Query(cmd, g.ActualSize)
			if err != nil {
				return nil, errors.Annotatef(err, "%s request=%d", op, r)
			}
			if !crc.Verify(b) {
				self.Log.Errorf("blnet %s request=%d attempt=%d invalid checksum response=%x", op, r, attempt, b)
				continue
			}
			if b[0] == RespWait && len(b) >= 3 {
				wait := time.Duration(b[1]) * time.Second
				info.Waits = append(info.Waits, wait)
				self.Log.Debugf("blnet %s request=%d device asks to wait %v", op, r, wait)
				c.Close()
				if err := self.sleep(ctx, wait); err != nil {
					return nil, errors.Annotate(err, op)
				}
				if c, err = self.Dial(ctx); err != nil {
					return nil, errors.Annotate(err, op)
				}
				continue
			}
			if len(b) < g.ActualSize {
				self.Log.Errorf("blnet %s request=%d attempt=%d response length=%d expected=%d", op, r, attempt, len(b), g.ActualSize)
				continue
			}
			for j, off := range g.LatestOffsets {
				d, err := frame.Decode(b[off : off+frame.DataSize])
				if err != nil {
					return nil, connError(op, errors.Annotatef(err, "request=%d", r))
				}
				result.Frames[(r-1)*len(g.LatestOffsets)+j].Dataset = &d
			}
			info.Attempt = attempt
			break
		}
		if info.Attempt < 0 {
			self.Log.Errorf("blnet %s request=%d timeout after %d attempts", op, r, maxRetries)
			for j := range g.LatestOffsets {
				result.Frames[(r-1)*len(g.LatestOffsets)+j].Timeout = true
			}
		}
		result.Info = append(result.Info, info)
	}

	// snapshot never clears memory
	if err := self.endRead(c, false); err != nil {
		self.Log.Errorf("blnet %s end read err=%v", op, err)
	}
	result.Date = time.Now()

	for _, f := range result.Frames {
		if f.Dataset != nil {
			return result, nil
		}
	}
	return nil, connError(op, errors.New("no data"))
}
