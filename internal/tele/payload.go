package tele

import (
	"strconv"
	"time"

	"github.com/golang/protobuf/proto"
	structpb "github.com/golang/protobuf/ptypes/struct"
	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/temoto/blnet/hardware/blnet"
	"github.com/temoto/blnet/hardware/blnet/frame"
)

type Source string

const (
	SourceLatest Source = "latest"
	SourceMemory Source = "memory"
)

// Message is one dataset forwarded to broker as google.protobuf.Struct.
// ID lets receivers drop duplicates of at least once delivery.
type Message struct {
	ID      uuid.UUID
	Source  Source
	Frame   int // 0-based, encoded 1-based
	Address int // memory only
	Time    time.Time
	Timeout bool
	Dataset *frame.Dataset
}

func NewMessage(source Source, frameIndex int, at time.Time, d *frame.Dataset) *Message {
	return &Message{
		ID:      uuid.New(),
		Source:  source,
		Frame:   frameIndex,
		Time:    at,
		Dataset: d,
	}
}

// LatestMessages converts snapshot, timeout frames included.
func LatestMessages(l *blnet.Latest) []*Message {
	ms := make([]*Message, 0, len(l.Frames))
	for _, f := range l.Frames {
		m := NewMessage(SourceLatest, f.Index, l.Date, f.Dataset)
		m.Timeout = f.Timeout
		ms = append(ms, m)
	}
	return ms
}

// RecordMessages converts stored record, blank frames skipped.
func RecordMessages(r blnet.Record) []*Message {
	ms := make([]*Message, 0, len(r.Datasets))
	for i, d := range r.Datasets {
		if d == nil {
			continue
		}
		var at time.Time
		if d.Time != nil {
			at = *d.Time
		}
		m := NewMessage(SourceMemory, i, at, d)
		m.Address = r.Address
		ms = append(ms, m)
	}
	return ms
}

func (self *Message) Struct() *structpb.Struct {
	s := &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":     stringValue(self.ID.String()),
		"source": stringValue(string(self.Source)),
		"frame":  numberValue(float64(self.Frame + 1)),
	}}
	if !self.Time.IsZero() {
		s.Fields["time"] = stringValue(self.Time.UTC().Format(time.RFC3339))
	}
	if self.Source == SourceMemory {
		s.Fields["address"] = numberValue(float64(self.Address))
	}
	if self.Timeout {
		s.Fields["timeout"] = &structpb.Value{Kind: &structpb.Value_BoolValue{BoolValue: true}}
	}
	if d := self.Dataset; d != nil {
		s.Fields["analog"] = channels(len(d.Analog), func(i int) *structpb.Value { return numberValue(d.Analog[i]) })
		s.Fields["digital"] = channels(len(d.Digital), func(i int) *structpb.Value { return numberValue(float64(d.Digital[i])) })
		s.Fields["speed"] = channels(len(d.Speed), func(i int) *structpb.Value {
			if !d.Speed[i].Active {
				return nullValue()
			}
			return numberValue(float64(d.Speed[i].Value))
		})
		s.Fields["energy"] = channels(len(d.Energy), func(i int) *structpb.Value { return optionalValue(d.Energy[i]) })
		s.Fields["power"] = channels(len(d.Power), func(i int) *structpb.Value { return optionalValue(d.Power[i]) })
	}
	return s
}

func (self *Message) Marshal() ([]byte, error) {
	b, err := proto.Marshal(self.Struct())
	return b, errors.Annotate(err, "tele message marshal")
}

func UnmarshalMessage(b []byte) (*structpb.Struct, error) {
	s := &structpb.Struct{}
	if err := proto.Unmarshal(b, s); err != nil {
		return nil, errors.Annotate(err, "tele message unmarshal")
	}
	return s, nil
}

// channels keys are 1-based channel numbers
func channels(n int, value func(i int) *structpb.Value) *structpb.Value {
	s := &structpb.Struct{Fields: make(map[string]*structpb.Value, n)}
	for i := 0; i < n; i++ {
		s.Fields[strconv.Itoa(i+1)] = value(i)
	}
	return &structpb.Value{Kind: &structpb.Value_StructValue{StructValue: s}}
}

func numberValue(x float64) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_NumberValue{NumberValue: x}}
}

func stringValue(s string) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_StringValue{StringValue: s}}
}

func nullValue() *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_NullValue{NullValue: structpb.NullValue_NULL_VALUE}}
}

func optionalValue(x *float64) *structpb.Value {
	if x == nil {
		return nullValue()
	}
	return numberValue(*x)
}
