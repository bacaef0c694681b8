// Package blnet talks to BL-NET bridge in "PC bootloader" mode over TCP.
// Protocol is half-duplex: one command, one response.
// Every multi-byte command and response ends with crc.Sum8 of preceding bytes.
package blnet

const (
	ModeCAN byte = 0xdc
	ModeDL  byte = 0xa8
	ModeDL2 byte = 0xd1

	CmdGetMode   byte = 0x81
	CmdGetHeader byte = 0xaa
	CmdGetLatest byte = 0xab
	CmdReadData  byte = 0xac
	CmdEndRead   byte = 0xad
	CmdResetData byte = 0xaf

	// first response byte meaning "not ready, wait N seconds"
	RespWait byte = 0xba
)

const (
	// responses up to this length mean device has nothing more to send
	shortFrame = 32
	headerSize = 21

	addressCeiling = 0x07ffff
	AddressInvalid = 0xffffff

	// READ_DATA sub-field, datasets per request
	readDataCount = 0x01
)

// ExpectedLength of response to cmd. Geometry g may be nil before header is known,
// then data commands fall back to short frame.
func ExpectedLength(cmd byte, g *Geometry) int {
	switch cmd {
	case CmdGetHeader:
		return headerSize
	case CmdGetLatest:
		if g != nil {
			return g.ActualSize
		}
	case CmdReadData:
		if g != nil {
			return g.FetchSize
		}
	default:
		return 1
	}
	return shortFrame
}
