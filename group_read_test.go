package scservo_test

import (
	"testing"

	"github.com/GoAethereal/cancel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feetech-go/scservo"
	"github.com/feetech-go/scservo/internal/virtualservo"
)

func TestGroupSyncReadGetBeforeRoundIsZero(t *testing.T) {
	h, _ := newTestHandler(t, virtualservo.NewServo(1, 0x0900))
	g := scservo.NewGroupSyncRead(h, 42, 2)
	require.Equal(t, scservo.Success, g.Add(1))

	data, res, _ := g.Get(1, 42, 2)
	assert.Nil(t, data)
	assert.Equal(t, scservo.CommResult(0), res)
}

func TestGroupSyncReadTxRx(t *testing.T) {
	h, _ := newTestHandler(t,
		virtualservo.NewServo(1, 0x0900),
		virtualservo.NewServo(2, 0x0900),
	)
	require.Equal(t, scservo.Success, must(h.WriteWord(1, 42, 111)))
	require.Equal(t, scservo.Success, must(h.WriteWord(2, 42, 222)))

	g := scservo.NewGroupSyncRead(h, 42, 2)
	require.Equal(t, scservo.Success, g.Add(1))
	require.Equal(t, scservo.Success, g.Add(2))

	require.Equal(t, scservo.Success, g.TxRx(cancel.New()))

	got, res, _ := g.GetWord(1, 42)
	require.Equal(t, scservo.Success, res)
	assert.Equal(t, uint16(111), got)

	got, res, _ = g.GetWord(2, 42)
	require.Equal(t, scservo.Success, res)
	assert.Equal(t, uint16(222), got)
}

func TestGroupSyncReadMissingIDTimesOut(t *testing.T) {
	h, _ := newTestHandler(t, virtualservo.NewServo(1, 0x0900))

	g := scservo.NewGroupSyncRead(h, 42, 2)
	require.Equal(t, scservo.Success, g.Add(1))
	require.Equal(t, scservo.Success, g.Add(9))

	res := g.TxRx(cancel.New())
	assert.Equal(t, scservo.RxTimeout, res)

	_, res, _ = g.Get(1, 42, 2)
	assert.Equal(t, scservo.Success, res)
	_, res, _ = g.Get(9, 42, 2)
	assert.Equal(t, scservo.RxTimeout, res)
}

func TestGroupSyncReadWindowOutsideRangeIsZero(t *testing.T) {
	h, _ := newTestHandler(t, virtualservo.NewServo(1, 0x0900))
	g := scservo.NewGroupSyncRead(h, 42, 2)
	require.Equal(t, scservo.Success, g.Add(1))
	require.Equal(t, scservo.Success, must(h.WriteWord(1, 42, 0x1234)))
	require.Equal(t, scservo.Success, g.TxRx(cancel.New()))

	data, res, _ := g.Get(1, 41, 2)
	assert.Nil(t, data)
	assert.Equal(t, scservo.Success, res)

	data, res, _ = g.Get(1, 43, 2)
	assert.Nil(t, data)
	assert.Equal(t, scservo.Success, res)

	got, res, _ := g.GetByte(1, 43)
	require.Equal(t, scservo.Success, res)
	assert.Equal(t, byte(0x12), got)
}

func TestGroupSyncReadRejectsOverflowingRange(t *testing.T) {
	h, _ := newTestHandler(t, virtualservo.NewServo(1, 0x0900))
	g := scservo.NewGroupSyncRead(h, 250, 10)
	assert.Equal(t, scservo.TxError, g.Add(1))
}

func must(res scservo.CommResult, _ scservo.ErrorFlags) scservo.CommResult {
	return res
}
