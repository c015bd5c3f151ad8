// Package virtualservo implements an in-memory Port that behaves like a
// small bus of real SCServo-protocol servos, for exercising the scservo
// package without a physical serial line. It is deliberately a standalone
// wire encoder/decoder rather than a reuse of the scservo package's own
// codec: a fake built from the same code it verifies would let a codec bug
// pass unnoticed on both sides of the wire.
package virtualservo

import (
	"sync"

	"github.com/feetech-go/scservo"
)

const headerByte = 0xFF

// Servo is one simulated device's register file.
type Servo struct {
	ID      byte
	Model   uint16
	Regs    [256]byte
	pending map[byte]byte
	Errors  byte // error flags reported on every response
}

func newServo(id byte, model uint16) *Servo {
	s := &Servo{ID: id, Model: model, pending: make(map[byte]byte)}
	// Model number register occupies two bytes at ModelNumberAddr,
	// little-endian, matching the STS/SMS control table.
	s.Regs[scservo.ModelNumberAddr] = byte(model)
	s.Regs[scservo.ModelNumberAddr+1] = byte(model >> 8)
	return s
}

// Port is a scservo.Port backed by a fixed population of simulated servos.
// Every Write is parsed and dispatched synchronously; the resulting
// response bytes (if any) are queued for the next Read calls, simulating
// the device's turnaround delay as instantaneous.
type Port struct {
	scservo.BaseIO

	mu     sync.Mutex
	servos map[byte]*Servo
	outbox []byte

	// DropIDs silently discards the responses of these ids (their requests
	// are still applied), used to exercise RxTimeout in tests.
	DropIDs map[byte]bool
	// Corrupt, while true, flips the last byte of every queued response to
	// break its checksum, used to exercise RxCorrupt.
	Corrupt bool

	opened bool
}

// New builds a virtual bus populated with the given servos.
func New(servos ...*Servo) *Port {
	p := &Port{servos: make(map[byte]*Servo)}
	for _, s := range servos {
		p.servos[s.ID] = s
	}
	return p
}

// NewServo is the public constructor for Servo, exported so tests can seed
// register contents before wiring it into a Port.
func NewServo(id byte, model uint16) *Servo {
	return newServo(id, model)
}

func (p *Port) Open() error {
	p.Init()
	p.opened = true
	return nil
}

func (p *Port) Close() error {
	p.opened = false
	return nil
}

func (p *Port) SetBaud(int) error { return nil }

func (p *Port) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outbox = nil
	return nil
}

// Read drains up to n queued response bytes.
func (p *Port) Read(n int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > len(p.outbox) {
		n = len(p.outbox)
	}
	out := append([]byte(nil), p.outbox[:n]...)
	p.outbox = p.outbox[n:]
	return out, nil
}

// Write parses buf as exactly one request frame and dispatches it.
func (p *Port) Write(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, code, params, ok := parseFrame(buf)
	if !ok {
		return len(buf), nil
	}
	p.dispatch(id, code, params)
	return len(buf), nil
}

func (p *Port) queue(id, errByte byte, params []byte) {
	if p.DropIDs[id] {
		return
	}
	frame := encodeResponse(id, errByte, params)
	if p.Corrupt {
		frame[len(frame)-1] ^= 0xFF
	}
	p.outbox = append(p.outbox, frame...)
}

// dispatch implements the instruction-byte Mux: one case per SCServo
// instruction, generalised from the function-code switch a Modbus slave
// uses to route requests to register handlers.
func (p *Port) dispatch(id, code byte, params []byte) {
	switch code {
	case scservo.InstPing:
		s, ok := p.servos[id]
		if !ok {
			return
		}
		p.queue(id, s.Errors, nil)
	case scservo.InstRead:
		s, ok := p.servos[id]
		if !ok {
			return
		}
		addr, length := int(params[0]), int(params[1])
		data := append([]byte(nil), s.Regs[addr:addr+length]...)
		p.queue(id, s.Errors, data)
	case scservo.InstWrite:
		addr := params[0]
		for sid, s := range p.servos {
			if id != scservo.BroadcastID && id != sid {
				continue
			}
			copy(s.Regs[addr:], params[1:])
			if id != scservo.BroadcastID {
				p.queue(id, s.Errors, nil)
			}
		}
	case scservo.InstRegWrite:
		addr := params[0]
		for sid, s := range p.servos {
			if id != scservo.BroadcastID && id != sid {
				continue
			}
			for i, b := range params[1:] {
				s.pending[addr+byte(i)] = b
			}
			if id != scservo.BroadcastID {
				p.queue(id, s.Errors, nil)
			}
		}
	case scservo.InstAction:
		for sid, s := range p.servos {
			if id != scservo.BroadcastID && id != sid {
				continue
			}
			for addr, b := range s.pending {
				s.Regs[addr] = b
			}
			s.pending = make(map[byte]byte)
			if id != scservo.BroadcastID {
				p.queue(id, s.Errors, nil)
			}
		}
	case scservo.InstSyncWrite:
		addr, length := params[0], params[1]
		body := params[2:]
		stride := int(length) + 1
		for off := 0; off+stride <= len(body); off += stride {
			sid := body[off]
			s, ok := p.servos[sid]
			if !ok {
				continue
			}
			copy(s.Regs[addr:], body[off+1:off+stride])
		}
	case scservo.InstSyncRead:
		addr, length := int(params[0]), int(params[1])
		for _, sid := range params[2:] {
			s, ok := p.servos[sid]
			if !ok {
				continue
			}
			data := append([]byte(nil), s.Regs[addr:addr+length]...)
			p.queue(sid, s.Errors, data)
		}
	}
}

func checksum8(b []byte) byte {
	var sum byte
	for _, x := range b {
		sum += x
	}
	return ^sum
}

// parseFrame extracts (id, code, params) from a single header-aligned
// request frame. It trusts the caller (the handler under test) to have
// produced a well-formed frame; malformed input simply fails to parse.
func parseFrame(buf []byte) (id, code byte, params []byte, ok bool) {
	if len(buf) < 6 || buf[0] != headerByte || buf[1] != headerByte {
		return 0, 0, nil, false
	}
	length := buf[3]
	total := int(length) + 4
	if total != len(buf) {
		return 0, 0, nil, false
	}
	if buf[total-1] != checksum8(buf[2:total-1]) {
		return 0, 0, nil, false
	}
	return buf[2], buf[4], buf[5 : total-1], true
}

// encodeResponse builds a response frame, mirroring buildFrame but kept
// independent of the scservo package's own encoder.
func encodeResponse(id, errByte byte, params []byte) []byte {
	total := len(params) + 6
	buf := make([]byte, total)
	buf[0], buf[1] = headerByte, headerByte
	buf[2] = id
	buf[3] = byte(len(params) + 2)
	buf[4] = errByte
	copy(buf[5:], params)
	buf[total-1] = checksum8(buf[2 : total-1])
	return buf
}
