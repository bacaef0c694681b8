package blnet

import (
	"fmt"

	"github.com/juju/errors"
)

// ConnectionError is socket failure, malformed response or absent data.
type ConnectionError struct {
	Op  string
	Err error
}

func (self ConnectionError) Error() string {
	if self.Err == nil {
		return fmt.Sprintf("blnet %s", self.Op)
	}
	return fmt.Sprintf("blnet %s: %v", self.Op, self.Err)
}

type InvalidChecksum struct {
	Op       string
	Received byte
	Actual   byte
}

func (self InvalidChecksum) Error() string {
	return fmt.Sprintf("blnet %s invalid checksum received=%02x actual=%02x", self.Op, self.Received, self.Actual)
}

type UnsupportedMode byte

func (self UnsupportedMode) Error() string {
	return fmt.Sprintf("blnet mode=%02x is not supported", byte(self))
}

type EchoMismatch struct {
	Command  byte
	Received []byte
}

func (self EchoMismatch) Error() string {
	return fmt.Sprintf("blnet command=%02x echo mismatch received=%x", self.Command, self.Received)
}

// IsConnectionError reports whether err is any protocol failure.
// Context cancellation and local misuse (not-valid state) are not.
func IsConnectionError(err error) bool {
	switch errors.Cause(err).(type) {
	case ConnectionError, *ConnectionError, InvalidChecksum, UnsupportedMode, EchoMismatch:
		return true
	}
	return false
}

func connError(op string, err error) error {
	return ConnectionError{Op: op, Err: err}
}
