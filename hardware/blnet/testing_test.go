package blnet

import (
	"github.com/temoto/blnet/crc"
	"github.com/temoto/blnet/helpers"
)

// live dataset captured from UVR1611, analog1=12.5
const testDataHex = "7d20b522662203227e218e221621e020ff20f320f82000003d2101000060e221000080000000002c00a4280600446849821d044365c000"

func testData() []byte { return helpers.MustHex(testDataHex) }

// testRecord is stored dataset with analog1 temperature and timestamp day.
func testRecord(tenths uint16, day byte) []byte {
	b := testData()
	b[0], b[1] = byte(tenths), 0x20|byte(tenths>>8)
	return append(b, 0, 30, 12, day, 10, 26)
}

func corrupt(b []byte) []byte {
	b = crc.Append(b)
	b[len(b)-1]++
	return b
}
