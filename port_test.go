package scservo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPacketTimeoutMs(t *testing.T) {
	// 1 Mbps, 4 bytes expected => 0.01*4 + 32 + 2 = 34.04, ceil = 35. The
	// armed integer timeout must not undershoot the computed bound.
	got := packetTimeoutMs(1000000, 4)
	assert.GreaterOrEqual(t, float64(got), txTimePerByte(1000000)*4+2*bridgeLatencyMs+2)
}

func TestTxTimePerByte(t *testing.T) {
	assert.InDelta(t, 0.01, txTimePerByte(1000000), 1e-9)
}

// fakePort is a minimal in-memory scservo.Port for exercising the receiver
// resync loop directly, independent of the virtual servo's instruction
// dispatch.
type fakePort struct {
	BaseIO
	feed     []byte
	deadline time.Time
	armed    bool
}

func (p *fakePort) Open() error       { p.Init(); return nil }
func (p *fakePort) Close() error      { return nil }
func (p *fakePort) SetBaud(int) error { return nil }
func (p *fakePort) Clear() error      { p.feed = nil; return nil }

func (p *fakePort) Read(n int) ([]byte, error) {
	if n > len(p.feed) {
		n = len(p.feed)
	}
	out := p.feed[:n]
	p.feed = p.feed[n:]
	return out, nil
}

func (p *fakePort) Write(buf []byte) (int, error) { return len(buf), nil }

func (p *fakePort) ArmTimeout(ms int) {
	p.armed = true
	p.deadline = time.Now().Add(time.Duration(ms) * time.Millisecond)
}

func (p *fakePort) Expired() bool {
	return p.armed && time.Now().After(p.deadline)
}

func TestReceiverNextSuccess(t *testing.T) {
	p := &fakePort{feed: []byte{0xFF, 0xFF, 0x01, 0x04, 0x00, 0x00, 0x09, 0xF1}}
	p.ArmTimeout(50)
	rx := &receiver{port: p}
	frame, res := rx.next()
	assert.Equal(t, Success, res)
	assert.Equal(t, byte(1), frame.ID)
	assert.Equal(t, []byte{0x00, 0x09}, frame.Params)
}

func TestReceiverNextResyncsOnNoise(t *testing.T) {
	p := &fakePort{feed: []byte{0x00, 0xFF, 0x00, 0xFF, 0xFF, 0x01, 0x02, 0x01, 0xFB}}
	p.ArmTimeout(50)
	rx := &receiver{port: p}
	frame, res := rx.next()
	assert.Equal(t, Success, res)
	assert.Equal(t, byte(1), frame.ID)
}

func TestReceiverNextTimeout(t *testing.T) {
	p := &fakePort{}
	p.ArmTimeout(1)
	rx := &receiver{port: p}
	_, res := rx.next()
	assert.Equal(t, RxTimeout, res)
}

func TestReceiverNextCorrupt(t *testing.T) {
	p := &fakePort{feed: []byte{0xFF, 0xFF, 0x01, 0x04, 0x00, 0x00, 0x09, 0xF0}}
	p.ArmTimeout(50)
	rx := &receiver{port: p}
	_, res := rx.next()
	assert.Equal(t, RxCorrupt, res)
}
