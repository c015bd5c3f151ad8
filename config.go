package scservo

import (
	"errors"

	"github.com/GoAethereal/cancel"
	"github.com/sirupsen/logrus"
)

// ErrInvalidParameter reports a Config whose fields do not describe a valid
// bus.
var ErrInvalidParameter = errors.New("scservo: invalid parameter")

// Config describes a serial bus to a family of SCServo-protocol servos
// (§6). Opening a bus never touches the operating system directly: Port is
// supplied by the caller, typically a *serialport.Linux, so the protocol
// core stays testable against the in-memory virtual servo.
type Config struct {
	// Port is the byte transport. Required.
	Port Port
	// Baud is the line rate in bits per second, e.g. 1000000.
	Baud int
	// Endian selects the control-table byte order for this bus (§9).
	Endian Endianness
	// Logger receives per-instance structured diagnostics. A nil Logger
	// defaults to logrus.StandardLogger().
	Logger *logrus.Logger
}

// Verify validates cfg, returning ErrInvalidParameter if it describes an
// unusable bus.
func (cfg *Config) Verify() error {
	if cfg.Port == nil {
		return ErrInvalidParameter
	}
	if cfg.Baud <= 0 {
		return ErrInvalidParameter
	}
	switch cfg.Endian {
	case LittleEndian, BigEndian:
	default:
		return ErrInvalidParameter
	}
	return nil
}

// Open validates cfg, opens its Port and sets the configured baud, returning
// a ready-to-use Handler. ctx governs only the open/close lifecycle of the
// underlying Port, never an individual transaction's packet timeout.
func Open(ctx cancel.Context, cfg Config) (*Handler, error) {
	if err := cfg.Verify(); err != nil {
		return nil, err
	}
	if err := cfg.Port.Open(); err != nil {
		return nil, err
	}
	if err := cfg.Port.SetBaud(cfg.Baud); err != nil {
		cfg.Port.Close()
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	h := NewHandler(cfg.Port, cfg.Baud, cfg.Endian, logger)
	go func() {
		<-ctx.Done()
		cfg.Port.Close()
	}()
	return h, nil
}
