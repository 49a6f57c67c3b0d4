// Package serialport opens a serial device for writing an NMEA feed to
// chart plotters and USB-serial bridges.
package serialport

import (
	"fmt"
	"io"
	"strings"
)

const DefaultBaud = 9600

// Open opens path in raw 8N1 mode at baud. baud 0 selects DefaultBaud.
func Open(path string, baud int) (io.ReadWriteCloser, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("serial device path is required")
	}
	if baud == 0 {
		baud = DefaultBaud
	}
	if !SupportedBaud(baud) {
		return nil, fmt.Errorf("unsupported baud %d", baud)
	}
	return openSerial(path, baud)
}

// SupportedBaud reports whether baud is one of the rates NMEA devices use.
func SupportedBaud(baud int) bool {
	switch baud {
	case 4800, 9600, 19200, 38400, 57600, 115200:
		return true
	default:
		return false
	}
}
