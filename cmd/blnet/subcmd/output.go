package subcmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/blnet/hardware/blnet"
	"github.com/temoto/blnet/hardware/blnet/frame"
	"gopkg.in/yaml.v3"
)

const (
	FormatText = "text"
	FormatYAML = "yaml"
)

// Printer writes results as plain text lines or YAML documents.
type Printer struct {
	w      io.Writer
	format string
	enc    *yaml.Encoder
}

func NewPrinter(w io.Writer, format string) (*Printer, error) {
	p := &Printer{w: w, format: format}
	switch format {
	case "", FormatText:
		p.format = FormatText
	case FormatYAML:
		p.enc = yaml.NewEncoder(w)
		p.enc.SetIndent(2)
	default:
		return nil, errors.NotValidf("format=%s", format)
	}
	return p, nil
}

// Close flushes pending YAML stream.
func (self *Printer) Close() error {
	if self.enc != nil {
		return errors.Trace(self.enc.Close())
	}
	return nil
}

func (self *Printer) Device(dev *blnet.Device) error {
	if self.enc == nil {
		_, err := fmt.Fprintln(self.w, dev.String())
		return errors.Trace(err)
	}
	return errors.Trace(self.enc.Encode(DeviceView(dev)))
}

func (self *Printer) Latest(l *blnet.Latest) error {
	if self.enc == nil {
		for _, f := range l.Frames {
			line := fmt.Sprintf("frame=%d timeout", f.Index+1)
			if !f.Timeout {
				line = fmt.Sprintf("frame=%d %s", f.Index+1, f.Dataset.String())
			}
			if _, err := fmt.Fprintln(self.w, line); err != nil {
				return errors.Trace(err)
			}
		}
		return nil
	}
	return errors.Trace(self.enc.Encode(LatestView(l)))
}

func (self *Printer) Record(r blnet.Record) error {
	if self.enc == nil {
		for i, d := range r.Datasets {
			line := fmt.Sprintf("seq=%d address=%06x frame=%d blank", r.Seq, r.Address, i+1)
			if d != nil {
				line = fmt.Sprintf("seq=%d address=%06x frame=%d %s", r.Seq, r.Address, i+1, d.String())
			}
			if _, err := fmt.Fprintln(self.w, line); err != nil {
				return errors.Trace(err)
			}
		}
		return nil
	}
	return errors.Trace(self.enc.Encode(RecordView(r)))
}

func (self *Printer) Line(format string, args ...interface{}) {
	if self.enc == nil {
		fmt.Fprintf(self.w, format+"\n", args...)
	}
}

type DeviceYAML struct {
	Mode       string `yaml:"mode"`
	Frames     int    `yaml:"frames"`
	NodeIDs    []int  `yaml:"node_ids,omitempty"`
	Start      string `yaml:"start"`
	End        string `yaml:"end"`
	Count      int    `yaml:"count"`
	AddressInc int    `yaml:"address_inc"`
	AddressEnd string `yaml:"address_end"`
}

type DatasetYAML struct {
	Frame   int              `yaml:"frame"`
	Time    string           `yaml:"time,omitempty"`
	Timeout bool             `yaml:"timeout,omitempty"`
	Analog  map[int]float64  `yaml:"analog,omitempty"`
	Digital map[int]uint8    `yaml:"digital,omitempty"`
	Speed   map[int]*uint8   `yaml:"speed,omitempty"`
	Energy  map[int]*float64 `yaml:"energy,omitempty"`
	Power   map[int]*float64 `yaml:"power,omitempty"`
}

type LatestYAML struct {
	Date   string        `yaml:"date"`
	Frames []DatasetYAML `yaml:"frames"`
}

type RecordYAML struct {
	Seq     int           `yaml:"seq"`
	Address string        `yaml:"address"`
	Empty   bool          `yaml:"empty,omitempty"`
	Frames  []DatasetYAML `yaml:"frames,omitempty"`
}

func hex24(x int) string { return fmt.Sprintf("%06x", x) }

func DeviceView(dev *blnet.Device) DeviceYAML {
	var nodes []int
	for _, id := range dev.Header.NodeIDs {
		nodes = append(nodes, int(id))
	}
	return DeviceYAML{
		Mode:       dev.Variant.Name,
		Frames:     dev.Geometry.Frames,
		NodeIDs:    nodes,
		Start:      hex24(dev.Header.Start),
		End:        hex24(dev.Header.End),
		Count:      dev.Header.Count,
		AddressInc: dev.Geometry.AddressInc,
		AddressEnd: hex24(dev.Geometry.AddressEnd),
	}
}

// DatasetView keys are 1-based channel numbers, nil value is inactive output.
func DatasetView(index int, d *frame.Dataset) DatasetYAML {
	v := DatasetYAML{Frame: index + 1}
	if d == nil {
		return v
	}
	if d.Time != nil {
		v.Time = d.Time.Format(time.RFC3339)
	}
	v.Analog = make(map[int]float64, len(d.Analog))
	for i, x := range d.Analog {
		v.Analog[i+1] = x
	}
	v.Digital = make(map[int]uint8, len(d.Digital))
	for i, x := range d.Digital {
		v.Digital[i+1] = x
	}
	v.Speed = make(map[int]*uint8, len(d.Speed))
	for i, s := range d.Speed {
		if s.Active {
			x := s.Value
			v.Speed[i+1] = &x
		} else {
			v.Speed[i+1] = nil
		}
	}
	v.Energy = make(map[int]*float64, frame.MeterCount)
	v.Power = make(map[int]*float64, frame.MeterCount)
	for i := 0; i < frame.MeterCount; i++ {
		v.Energy[i+1] = d.Energy[i]
		v.Power[i+1] = d.Power[i]
	}
	return v
}

func LatestView(l *blnet.Latest) LatestYAML {
	v := LatestYAML{Date: l.Date.Format(time.RFC3339), Frames: make([]DatasetYAML, 0, len(l.Frames))}
	for _, f := range l.Frames {
		fv := DatasetView(f.Index, f.Dataset)
		fv.Timeout = f.Timeout
		v.Frames = append(v.Frames, fv)
	}
	return v
}

func RecordView(r blnet.Record) RecordYAML {
	v := RecordYAML{Seq: r.Seq, Address: hex24(r.Address), Empty: r.Empty}
	for i, d := range r.Datasets {
		if d != nil {
			v.Frames = append(v.Frames, DatasetView(i, d))
		}
	}
	return v
}

const printerContextKey = "run/printer"

func WithPrinter(ctx context.Context, p *Printer) context.Context {
	return context.WithValue(ctx, printerContextKey, p)
}

// GetPrinter falls back to text on stdout.
func GetPrinter(ctx context.Context) *Printer {
	if p, ok := ctx.Value(printerContextKey).(*Printer); ok {
		return p
	}
	p, _ := NewPrinter(os.Stdout, FormatText)
	return p
}
