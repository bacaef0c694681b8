// Package frame decodes one BL-NET dataset: 16 analog inputs, 16 digital outputs,
// 4 speed steps and 2 heat meters, optionally followed by a timestamp
// when the dataset was read from bootloader memory.
package frame

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/juju/errors"
)

const (
	DataSize   = 55
	StampSize  = 6
	RecordSize = DataSize + StampSize

	AnalogCount  = 16
	DigitalCount = 16
	SpeedCount   = 4
	MeterCount   = 2
)

const (
	speedInactive = 0x80
	speedMask     = 0x1f

	signBit       = 0x8000
	positiveMask  = 0x0fff
	typeMask      = 0x7000
	typeNone      = 0x0000
	typeDigital   = 0x1000
	typeTemp      = 0x2000
	typeVolume    = 0x3000
	typeRadiation = 0x4000
	typeRAS       = 0x7000
	rasMask       = 0x01ff

	int16Mask = 0xffff
	int32Mask = 0xffffffff
	int32Sign = 0x80000000

	powerScale = 1.0 / 2560
)

// Speed is one speed step output; Value is meaningful only when Active.
type Speed struct {
	Value  uint8
	Active bool
}

func (s Speed) String() string {
	if !s.Active {
		return "-"
	}
	return fmt.Sprint(s.Value)
}

// Dataset is immutable after Decode. Array index i is channel i+1.
// Energy/Power entries are nil for inactive heat meters.
type Dataset struct {
	Analog  [AnalogCount]float64
	Digital [DigitalCount]uint8
	Speed   [SpeedCount]Speed
	Energy  [MeterCount]*float64
	Power   [MeterCount]*float64
	Time    *time.Time
}

// layout offsets
const (
	offAnalog  = 0
	offDigital = 32
	offSpeed   = 34
	offActive  = 38
	offMeter   = 39
	meterSize  = 8 // power u32, kWh u16, MWh u16
)

func Decode(b []byte) (Dataset, error) {
	var d Dataset
	switch len(b) {
	case DataSize:
	case RecordSize:
		t, err := decodeTime(b[DataSize:])
		if err != nil {
			return d, err
		}
		d.Time = &t
	default:
		return d, errors.NotValidf("dataset length=%d expected %d or %d", len(b), DataSize, RecordSize)
	}

	for i := 0; i < AnalogCount; i++ {
		w := binary.LittleEndian.Uint16(b[offAnalog+2*i:])
		d.Analog[i] = round3(convertAnalog(w))
	}

	digital := binary.LittleEndian.Uint16(b[offDigital:])
	for i := 0; i < DigitalCount; i++ {
		d.Digital[i] = uint8((digital >> uint(i)) & 1)
	}

	for i := 0; i < SpeedCount; i++ {
		x := b[offSpeed+i]
		if x&speedInactive == 0 {
			d.Speed[i] = Speed{Value: x & speedMask, Active: true}
		}
	}

	active := b[offActive]
	for i := 0; i < MeterCount; i++ {
		if active&(1<<uint(i)) == 0 {
			continue
		}
		m := b[offMeter+meterSize*i:]
		power := round3(calculate(uint64(binary.LittleEndian.Uint32(m[0:])), powerScale, int32Mask, int32Sign))
		kwh := calculate(uint64(binary.LittleEndian.Uint16(m[4:])), 0.1, int16Mask, signBit)
		mwh := float64(binary.LittleEndian.Uint16(m[6:]))
		energy := round3(mwh*1000 + kwh)
		d.Power[i] = &power
		d.Energy[i] = &energy
	}
	return d, nil
}

// Blank reports whether dataset payload is unwritten memory: all 0x00 or all 0xff.
func Blank(b []byte) bool {
	if len(b) > DataSize {
		b = b[:DataSize]
	}
	if len(b) == 0 {
		return true
	}
	marker := b[0]
	if marker != 0x00 && marker != 0xff {
		return false
	}
	for _, x := range b {
		if x != marker {
			return false
		}
	}
	return true
}

// AnalogChannel returns value of 1-based channel n.
func (d *Dataset) AnalogChannel(n int) float64 { return d.Analog[n-1] }

// DigitalChannel returns state of 1-based channel n.
func (d *Dataset) DigitalChannel(n int) uint8 { return d.Digital[n-1] }

func (d *Dataset) String() string {
	var b strings.Builder
	b.WriteString("analog=")
	for i, v := range d.Analog {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(formatFloat(v))
	}
	b.WriteString(" digital=")
	for _, v := range d.Digital {
		b.WriteByte('0' + v)
	}
	b.WriteString(" speed=")
	for i, s := range d.Speed {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s.String())
	}
	for i := 0; i < MeterCount; i++ {
		if d.Energy[i] == nil {
			continue
		}
		fmt.Fprintf(&b, " meter%d=%skWh/%skW", i+1, formatFloat(*d.Energy[i]), formatFloat(*d.Power[i]))
	}
	if d.Time != nil {
		b.WriteString(" time=")
		b.WriteString(d.Time.Format("2006-01-02T15:04:05"))
	}
	return b.String()
}

func convertAnalog(w uint16) float64 {
	switch w & typeMask {
	case typeTemp:
		return calculate(uint64(w), 0.1, positiveMask, signBit)
	case typeVolume:
		return calculate(uint64(w), 4, positiveMask, signBit)
	case typeDigital:
		if w&signBit != 0 {
			return 1
		}
		return 0
	case typeRAS:
		return calculate(uint64(w), 0.1, rasMask, signBit)
	case typeRadiation, typeNone:
		return calculate(uint64(w), 1, positiveMask, signBit)
	default:
		return calculate(uint64(w), 1, positiveMask, signBit)
	}
}

// calculate masks magnitude, applies two's complement within mask when sign bit set.
func calculate(value uint64, multiplier float64, mask, sign uint64) float64 {
	result := int64(value & mask)
	if value&sign != 0 {
		result = -(int64(uint64(result)^mask) + 1)
	}
	return float64(result) * multiplier
}

func decodeTime(b []byte) (time.Time, error) {
	sec, min, hour, day, month, year := int(b[0]), int(b[1]), int(b[2]), int(b[3]), int(b[4]), 2000+int(b[5])
	t := time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC)
	// time.Date normalizes out of range values, reject instead
	if sec > 59 || min > 59 || hour > 23 || t.Day() != day || int(t.Month()) != month {
		return time.Time{}, errors.NotValidf("dataset time=%x", b)
	}
	return t, nil
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}

func formatFloat(x float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", x), "0"), ".")
}
