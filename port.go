package scservo

import (
	"math"
	"sync"
	"time"
)

// Port is the byte I/O capability consumed by the transaction engine (§4.1).
// It is an injected dependency: the protocol core never prescribes how a
// concrete implementation opens the underlying endpoint. See the
// serialport package for a POSIX termios implementation.
type Port interface {
	// Open acquires the named endpoint.
	Open() error
	// Close releases the endpoint. Idempotent.
	Close() error
	// SetBaud configures the line rate, including non-standard rates such
	// as 1,000,000 bps.
	SetBaud(rate int) error
	// Clear drains any pending input and output.
	Clear() error
	// Read is non-blocking: it returns 0..n bytes currently available,
	// possibly none.
	Read(n int) ([]byte, error)
	// Write attempts to write all of buf, returning the bytes actually
	// written.
	Write(buf []byte) (int, error)
	// Now returns a monotonic millisecond clock reading.
	Now() int64
	// ArmTimeout starts a single-shot timer for the active transaction.
	ArmTimeout(ms int)
	// Expired reports whether the armed timer has elapsed.
	Expired() bool
	// IsBusy reports whether the single-slot bus mutex is held.
	IsBusy() bool
	// SetBusy sets or clears the bus mutex flag.
	SetBusy(busy bool)
}

// BaseIO implements the busy-flag, timer and monotonic-clock portion of the
// Port contract. Concrete transports (serialport.Linux, the in-memory
// virtual servo used in tests) embed it so they only need to implement the
// actual byte transfer (Open/Close/SetBaud/Clear/Read/Write).
type BaseIO struct {
	start    time.Time
	mu       sync.Mutex
	busy     bool
	deadline time.Time
	armed    bool
}

// Init must be called once before use; it establishes the monotonic epoch.
func (b *BaseIO) Init() {
	b.start = time.Now()
}

func (b *BaseIO) Now() int64 {
	if b.start.IsZero() {
		b.start = time.Now()
	}
	return time.Since(b.start).Milliseconds()
}

func (b *BaseIO) ArmTimeout(ms int) {
	b.deadline = time.Now().Add(time.Duration(ms) * time.Millisecond)
	b.armed = true
}

func (b *BaseIO) Expired() bool {
	if !b.armed {
		return false
	}
	return time.Now().After(b.deadline)
}

func (b *BaseIO) IsBusy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.busy
}

func (b *BaseIO) SetBusy(busy bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.busy = busy
}

// tenBitsPerByte is the number of serial bits transmitted per data byte:
// 1 start, 8 data, 1 stop (§4.1).
const tenBitsPerByte = 10

// bridgeLatencyMs is the cached worst-case USB-bridge latency constant
// (§4.1).
const bridgeLatencyMs = 16

// txTimePerByte returns the milliseconds needed to transmit one byte at the
// given baud rate.
func txTimePerByte(baud int) float64 {
	return float64(tenBitsPerByte*1000) / float64(baud)
}

// packetTimeoutMs computes the armed timeout for a transaction expecting
// expectedBytes bytes back, per §4.3.
func packetTimeoutMs(baud, expectedBytes int) int {
	ms := txTimePerByte(baud)*float64(expectedBytes) + 2*bridgeLatencyMs + 2
	// Round up: the armed integer-millisecond timeout must never undershoot
	// the computed bound (see S5: 34.1ms computed must arm >= 34.1ms).
	return int(math.Ceil(ms))
}

// pollYield is the pause between empty, non-blocking reads while waiting
// for a response. The spec does not mandate a specific delay, only that the
// poll loop must not spin tightly (§5).
const pollYield = 200 * time.Microsecond

// receiver implements the frame codec's Parse algorithm (§4.2): it
// accumulates bytes from a Port, resynchronising on stray data ahead of a
// valid 0xFF 0xFF header, and yields one Frame per call to next.
type receiver struct {
	port Port
	buf  []byte
}

// next returns the next well-formed frame on the wire, or the CommResult
// explaining why it could not. The Port must already have ArmTimeout called
// for this receive window.
func (r *receiver) next() (Frame, CommResult) {
	wait := minFrameLen
	for {
		if len(r.buf) < wait {
			need := wait - len(r.buf)
			chunk, err := r.port.Read(need)
			if err != nil {
				return Frame{}, RxFail
			}
			if len(chunk) == 0 {
				time.Sleep(pollYield)
			}
			r.buf = append(r.buf, chunk...)
		}
		if len(r.buf) < wait {
			if r.port.Expired() {
				if len(r.buf) == 0 {
					return Frame{}, RxTimeout
				}
				return Frame{}, RxCorrupt
			}
			continue
		}

		idx := findHeader(r.buf)
		if idx < 0 {
			// Keep a possible half header (a lone trailing 0xFF) so the next
			// byte can still complete the pair.
			if n := len(r.buf); n > 0 && r.buf[n-1] == headerByte {
				r.buf = r.buf[n-1:]
			} else {
				r.buf = r.buf[:0]
			}
			continue
		}
		if idx > 0 {
			r.buf = r.buf[idx:]
			continue
		}

		if len(r.buf) < 5 {
			wait = 5
			continue
		}
		if !validHeaderFields(r.buf) {
			r.buf = r.buf[1:]
			continue
		}

		wait = frameTotalLen(r.buf[3])
		if len(r.buf) < wait {
			continue
		}
		if !verifyChecksum(r.buf[:wait]) {
			return Frame{}, RxCorrupt
		}
		frame := decodeFrame(r.buf[:wait])
		r.buf = r.buf[wait:]
		return frame, Success
	}
}
