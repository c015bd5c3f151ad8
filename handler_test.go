package scservo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feetech-go/scservo"
	"github.com/feetech-go/scservo/internal/virtualservo"
)

func newTestHandler(t *testing.T, servos ...*virtualservo.Servo) (*scservo.Handler, *virtualservo.Port) {
	t.Helper()
	port := virtualservo.New(servos...)
	require.NoError(t, port.Open())
	require.NoError(t, port.SetBaud(1000000))
	h := scservo.NewHandler(port, 1000000, scservo.LittleEndian, nil)
	return h, port
}

func TestHandlerPing(t *testing.T) {
	servo := virtualservo.NewServo(1, 0x0900)
	h, _ := newTestHandler(t, servo)

	model, res, ef := h.Ping(1)
	require.Equal(t, scservo.Success, res)
	assert.True(t, ef.None())
	assert.Equal(t, uint16(0x0900), model)
}

func TestHandlerPingUnknownID(t *testing.T) {
	h, _ := newTestHandler(t, virtualservo.NewServo(1, 0x0900))
	_, res, _ := h.Ping(2)
	assert.Equal(t, scservo.RxTimeout, res)
}

func TestHandlerWriteThenReadBack(t *testing.T) {
	h, _ := newTestHandler(t, virtualservo.NewServo(1, 0x0900))

	res, ef := h.WriteWord(1, 42, 1000)
	require.Equal(t, scservo.Success, res)
	assert.True(t, ef.None())

	got, res, ef := h.ReadWord(1, 42)
	require.Equal(t, scservo.Success, res)
	assert.True(t, ef.None())
	assert.Equal(t, uint16(1000), got)
}

func TestHandlerRegWriteThenAction(t *testing.T) {
	h, _ := newTestHandler(t, virtualservo.NewServo(1, 0x0900))

	res, _ := h.WriteWord(1, 42, 0)
	require.Equal(t, scservo.Success, res)

	res, _ = h.RegWrite(1, 42, []byte{0xE8, 0x03})
	require.Equal(t, scservo.Success, res)

	// Not yet committed.
	got, _, _ := h.ReadWord(1, 42)
	assert.Equal(t, uint16(0), got)

	res = h.Action(1)
	require.Equal(t, scservo.Success, res)

	got, _, _ = h.ReadWord(1, 42)
	assert.Equal(t, uint16(1000), got)
}

func TestHandlerBroadcastWriteHasNoResponse(t *testing.T) {
	h, _ := newTestHandler(t, virtualservo.NewServo(1, 0x0900), virtualservo.NewServo(2, 0x0900))

	res, _ := h.Write(scservo.BroadcastID, 42, []byte{1, 2})
	assert.Equal(t, scservo.Success, res)

	got, res, _ := h.ReadByte(1, 42)
	require.Equal(t, scservo.Success, res)
	assert.Equal(t, byte(1), got)
}

func TestHandlerBusBusyGuard(t *testing.T) {
	h, port := newTestHandler(t, virtualservo.NewServo(1, 0x0900))
	port.SetBusy(true)

	res, _ := h.WriteByte(1, 42, 1)
	assert.Equal(t, scservo.PortBusy, res)
}

func TestHandlerSignedRoundTrip(t *testing.T) {
	h, _ := newTestHandler(t, virtualservo.NewServo(1, 0x0900))

	res, _ := h.WriteSignedWord(1, 42, -500, 15)
	require.Equal(t, scservo.Success, res)

	got, res, _ := h.ReadSignedWord(1, 42, 15)
	require.Equal(t, scservo.Success, res)
	assert.Equal(t, int32(-500), got)
}
