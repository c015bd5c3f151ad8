// Package serialport implements scservo.Port over a real POSIX serial
// device, including the non-standard baud rates (1M, 0.5M, ...) the
// SCServo family runs at.
package serialport

import (
	"errors"
	"time"
)

// ErrClosed is returned by Read/Write/Clear on a Port that is not open.
var ErrClosed = errors.New("serialport: port is closed")

// Options configures a Linux serial port beyond the line rate, which is set
// separately via scservo.Port.SetBaud.
type Options struct {
	// Name is the device path, e.g. "/dev/ttyUSB0".
	Name string
	// ReadBufferSize is stored with the options; Linux.Read does not use it
	// and allocates an n-byte buffer per call. It has no relation to the
	// kernel's own tty buffers.
	ReadBufferSize int
}

// DefaultOptions returns sane defaults for a USB-to-TTL servo adapter.
func DefaultOptions(name string) Options {
	return Options{Name: name, ReadBufferSize: 4096}
}

// pollInterval is a retry interval for polling a non-blocking fd. Linux
// does not use it: its Read never blocks or retries.
const pollInterval = time.Millisecond
