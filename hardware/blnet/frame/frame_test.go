package frame

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/blnet/helpers"
)

// live dataset captured from UVR1611 via BL-NET
const sampleHex = "7d20b522662203227e218e221621e020ff20f320f82000003d2101000060e221000080000000002c00a4280600446849821d044365c000"

func TestDecodeSample(t *testing.T) {
	t.Parallel()
	b := helpers.MustHex(sampleHex)
	require.Len(t, b, DataSize)

	d, err := Decode(b)
	require.NoError(t, err)
	expectAnalog := [AnalogCount]float64{12.5, 69.3, 61.4, 51.5, 38.2, 65.4, 27.8, 22.4, 25.5, 24.3, 24.8, 0, 31.7, 1, 0, 48.2}
	assert.Equal(t, expectAnalog, d.Analog)
	assert.Equal(t, [DigitalCount]uint8{}, d.Digital)
	assert.Equal(t, 12.5, d.AnalogChannel(1))
	assert.Equal(t, 48.2, d.AnalogChannel(16))
	// speed 1 is switched off, 2..4 are active at step 0
	assert.Equal(t, Speed{}, d.Speed[0])
	for i := 1; i < SpeedCount; i++ {
		assert.Equal(t, Speed{Value: 0, Active: true}, d.Speed[i])
	}
	assert.Equal(t, [MeterCount]*float64{}, d.Energy)
	assert.Equal(t, [MeterCount]*float64{}, d.Power)
	assert.Nil(t, d.Time)
}

func TestDecodeDeterministic(t *testing.T) {
	t.Parallel()
	b := helpers.MustHex(sampleHex)
	d1, err1 := Decode(b)
	d2, err2 := Decode(b)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, d1, d2)
}

func TestDecodeMalformed(t *testing.T) {
	t.Parallel()
	valid, err := Decode(helpers.MustHex(sampleHex))
	require.NoError(t, err)

	cases := []struct {
		name  string
		input []byte
	}{
		{"empty", nil},
		{"short", helpers.MustHex(sampleHex)[:54]},
		{"junk-prefix", append([]byte("broken"), helpers.MustHex(sampleHex)...)},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			d, err := Decode(c.input)
			if err == nil {
				assert.NotEqual(t, valid, d)
				return
			}
			assert.True(t, errors.IsNotValid(err), "err=%v", err)
		})
	}

	// junk shifted by 6 bytes lands exactly on record size, fields must not match
	shifted := append([]byte("broken"), helpers.MustHex(sampleHex)...)
	d, err := Decode(shifted)
	if err == nil {
		assert.NotEqual(t, valid.Analog, d.Analog)
	}
}

func TestAnalogTypes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		word   uint16
		expect float64
	}{
		{"temp", 0x2000 | 125, 12.5},
		{"temp-negative", 0x8000 | 0x2000 | 0x0f83, -12.5},
		{"temp-zero", 0x2000, 0},
		{"volume", 0x3000 | 100, 400},
		{"digital-on", 0x8000 | 0x1000, 1},
		{"digital-off", 0x1000 | 0x0fff, 0},
		{"radiation", 0x4000 | 950, 950},
		{"none", 0x0001, 1},
		{"ras", 0x7000 | 0x00d2, 21},
		{"ras-negative", 0x8000 | 0x7000 | 0x01f6, -1},
		{"ras-ignores-high-bits", 0x7000 | 0x0e00 | 0x0064, 10},
		{"unknown-tag", 0x6000 | 7, 7},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			b := make([]byte, DataSize)
			binary.LittleEndian.PutUint16(b[0:], c.word)
			d, err := Decode(b)
			require.NoError(t, err)
			assert.Equal(t, c.expect, d.Analog[0])
		})
	}
}

func TestDigital(t *testing.T) {
	t.Parallel()
	b := make([]byte, DataSize)
	binary.LittleEndian.PutUint16(b[offDigital:], 0x8005)
	d, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), d.DigitalChannel(1))
	assert.Equal(t, uint8(0), d.DigitalChannel(2))
	assert.Equal(t, uint8(1), d.DigitalChannel(3))
	assert.Equal(t, uint8(1), d.DigitalChannel(16))
	assert.Equal(t, uint8(0), d.DigitalChannel(15))
}

func TestSpeed(t *testing.T) {
	t.Parallel()
	b := make([]byte, DataSize)
	copy(b[offSpeed:], []byte{0x9f, 0x1f, 0x25, 0x00})
	d, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, [SpeedCount]Speed{{}, {Value: 31, Active: true}, {Value: 5, Active: true}, {Value: 0, Active: true}}, d.Speed)
	assert.Equal(t, "-", d.Speed[0].String())
	assert.Equal(t, "31", d.Speed[1].String())
}

func meterRecord(active byte) []byte {
	b := make([]byte, DataSize)
	b[offActive] = active
	// meter 1: 10 kW, 2 MWh + 123.4 kWh
	binary.LittleEndian.PutUint32(b[offMeter:], 25600)
	binary.LittleEndian.PutUint16(b[offMeter+4:], 1234)
	binary.LittleEndian.PutUint16(b[offMeter+6:], 2)
	// meter 2: -1 kW, 0 MWh + 0.5 kWh
	binary.LittleEndian.PutUint32(b[offMeter+meterSize:], 0xffffffff-2560+1)
	binary.LittleEndian.PutUint16(b[offMeter+meterSize+4:], 5)
	binary.LittleEndian.PutUint16(b[offMeter+meterSize+6:], 0)
	return b
}

func TestMeterGating(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		active byte
		expect [MeterCount]bool
	}{
		{"none", 0x00, [MeterCount]bool{false, false}},
		{"first", 0x01, [MeterCount]bool{true, false}},
		{"second", 0x02, [MeterCount]bool{false, true}},
		{"both", 0x03, [MeterCount]bool{true, true}},
		{"unrelated-bits", 0xfc, [MeterCount]bool{false, false}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			d, err := Decode(meterRecord(c.active))
			require.NoError(t, err)
			for i := 0; i < MeterCount; i++ {
				assert.Equal(t, c.expect[i], d.Energy[i] != nil, "energy meter=%d", i+1)
				assert.Equal(t, c.expect[i], d.Power[i] != nil, "power meter=%d", i+1)
			}
		})
	}

	d, err := Decode(meterRecord(0x03))
	require.NoError(t, err)
	assert.Equal(t, 2123.4, *d.Energy[0])
	assert.Equal(t, 10.0, *d.Power[0])
	assert.Equal(t, 0.5, *d.Energy[1])
	assert.Equal(t, -1.0, *d.Power[1])
}

func TestTimestamp(t *testing.T) {
	t.Parallel()
	b := append(helpers.MustHex(sampleHex), 30, 15, 8, 17, 10, 26)
	d, err := Decode(b)
	require.NoError(t, err)
	require.NotNil(t, d.Time)
	assert.Equal(t, time.Date(2026, 10, 17, 8, 15, 30, 0, time.UTC), *d.Time)
	assert.Contains(t, d.String(), "time=2026-10-17T08:15:30")

	bad := append(helpers.MustHex(sampleHex), 0, 0, 0, 0, 13, 18)
	_, err = Decode(bad)
	assert.True(t, errors.IsNotValid(err))
}

func TestBlank(t *testing.T) {
	t.Parallel()
	zero := make([]byte, RecordSize)
	assert.True(t, Blank(zero))
	ff := make([]byte, DataSize)
	for i := range ff {
		ff[i] = 0xff
	}
	assert.True(t, Blank(ff))
	// timestamp bytes do not matter
	zero[DataSize] = 7
	assert.True(t, Blank(zero))
	assert.False(t, Blank(helpers.MustHex(sampleHex)))
	mixed := make([]byte, DataSize)
	mixed[54] = 0xff
	assert.False(t, Blank(mixed))
}

func TestString(t *testing.T) {
	t.Parallel()
	d, err := Decode(meterRecord(0x01))
	require.NoError(t, err)
	assert.Equal(t, "analog=0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0 digital=0000000000000000 speed=0,0,0,0 meter1=2123.4kWh/10kW", d.String())
}
