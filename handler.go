package scservo

import (
	"github.com/sirupsen/logrus"
)

// ModelNumberAddr is the control-table address of the 16-bit model number
// register, used internally by Ping's second step. It is the same address
// across the STS/SMS/SCS control tables.
const ModelNumberAddr = 3

// Stats accumulates lightweight bus counters, read directly from
// Handler.Stats; they are not logged. Resyncs is never incremented: the
// receive path does not report resynchronisations.
type Stats struct {
	FramesSent     uint64
	FramesReceived uint64
	Resyncs        uint64
	Timeouts       uint64
	Corrupt        uint64
}

// Handler is the transaction engine (§4.3): it owns the endianness policy
// for its bus and drives ping/read/write/reg-write/action/sync-read/
// sync-write over a Port. Two Handlers over two Ports may run different
// Endianness values in the same process (§9).
type Handler struct {
	Port   Port
	Endian Endianness
	Baud   int
	Logger *logrus.Logger
	Stats  Stats
}

// NewHandler builds a transaction engine bound to an already-open Port
// running at baud.
func NewHandler(port Port, baud int, endian Endianness, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{Port: port, Endian: endian, Baud: baud, Logger: logger}
}

// acquire attempts to take the single-slot bus mutex. It never blocks: a
// held mutex is reported as PortBusy per §4.3's "Bus guard".
func (h *Handler) acquire() bool {
	if h.Port.IsBusy() {
		return false
	}
	h.Port.SetBusy(true)
	return true
}

func (h *Handler) release() {
	h.Port.SetBusy(false)
}

// transmit builds and writes a request frame, returning Success, TxError
// (oversize) or TxFail (short write).
func (h *Handler) transmit(id, code byte, params []byte) CommResult {
	frame, res := buildFrame(id, code, params)
	if res != Success {
		return res
	}
	n, err := h.Port.Write(frame)
	if err != nil || n != len(frame) {
		return TxFail
	}
	h.Stats.FramesSent++
	return Success
}

// receiveMatching polls the Port (already armed with a timeout) for a
// response frame whose id matches want, discarding mismatched stray frames,
// per the Txrx loop in §4.3.
func (h *Handler) receiveMatching(want byte) (Frame, CommResult) {
	rx := &receiver{port: h.Port}
	for {
		frame, res := rx.next()
		switch res {
		case Success:
			h.Stats.FramesReceived++
			if frame.ID != want {
				h.Logger.WithFields(logrus.Fields{"want": want, "got": frame.ID}).
					Debug("scservo: discarding stray response id")
				continue
			}
			return frame, Success
		case RxTimeout:
			h.Stats.Timeouts++
			return Frame{}, RxTimeout
		case RxCorrupt:
			h.Stats.Corrupt++
			return Frame{}, RxCorrupt
		default:
			return Frame{}, res
		}
	}
}

// transact runs a full unicast request/response cycle: acquire bus,
// transmit, arm the packet timeout, receive. Broadcast ids never receive.
func (h *Handler) transact(id, code byte, params []byte, expectedBytes int) (Frame, CommResult) {
	if !h.acquire() {
		return Frame{}, PortBusy
	}
	if res := h.transmit(id, code, params); res != Success {
		h.release()
		return Frame{}, res
	}
	if id == BroadcastID {
		h.release()
		return Frame{}, Success
	}
	h.Port.ArmTimeout(packetTimeoutMs(h.Baud, expectedBytes))
	frame, res := h.receiveMatching(id)
	h.release()
	return frame, res
}

// Ping confirms a servo is present and reads back its 16-bit model number.
// Per §4.3 it is a two-step operation: a bare ping followed by a register
// read at ModelNumberAddr.
func (h *Handler) Ping(id byte) (model uint16, result CommResult, errFlags ErrorFlags) {
	if id == BroadcastID || id > reservedID {
		return 0, NotAvailable, 0
	}
	_, res := h.transact(id, InstPing, nil, 6)
	if res != Success {
		return 0, res, 0
	}
	data, res, ef := h.Read(id, ModelNumberAddr, 2)
	if res != Success {
		return 0, res, ef
	}
	return h.Endian.word(data), Success, ef
}

// Action commits prior reg-write instructions. Broadcast is allowed.
func (h *Handler) Action(id byte) CommResult {
	_, res := h.transact(id, InstAction, nil, 6)
	return res
}

// Read fetches length bytes starting at addr from a unicast servo.
func (h *Handler) Read(id, addr byte, length byte) ([]byte, CommResult, ErrorFlags) {
	if id == BroadcastID {
		return nil, NotAvailable, 0
	}
	frame, res := h.transact(id, InstRead, []byte{addr, length}, int(length)+6)
	if res != Success {
		return nil, res, 0
	}
	return frame.Params, Success, ErrorFlags(frame.Code)
}

// Write writes data starting at addr. Broadcast ids transmit only.
func (h *Handler) Write(id, addr byte, data []byte) (CommResult, ErrorFlags) {
	params := make([]byte, 0, len(data)+1)
	params = append(params, addr)
	params = append(params, data...)
	frame, res := h.transact(id, InstWrite, params, 6)
	if res != Success {
		return res, 0
	}
	return Success, ErrorFlags(frame.Code)
}

// RegWrite stages a deferred write, identical framing to Write with
// instruction 4; committed by a later Action call.
func (h *Handler) RegWrite(id, addr byte, data []byte) (CommResult, ErrorFlags) {
	params := make([]byte, 0, len(data)+1)
	params = append(params, addr)
	params = append(params, data...)
	frame, res := h.transact(id, InstRegWrite, params, 6)
	if res != Success {
		return res, 0
	}
	return Success, ErrorFlags(frame.Code)
}

// SyncWriteTx broadcasts a single sync-write frame carrying a pre-built
// parameter block (see GroupSyncWrite). There is no response: the bus guard
// releases immediately after a successful transmit (§4.5, §9).
func (h *Handler) SyncWriteTx(addr, length byte, block []byte) CommResult {
	params := make([]byte, 0, len(block)+2)
	params = append(params, addr, length)
	params = append(params, block...)
	_, res := h.transact(BroadcastID, InstSyncWrite, params, 0)
	return res
}

// SyncReadTx broadcasts a sync-read request for ids and arms the shared
// packet timer sized for the whole round; GroupSyncRead.Rx then drains one
// response per id against that same armed timer.
func (h *Handler) SyncReadTx(addr, length byte, ids []byte) CommResult {
	if !h.acquire() {
		return PortBusy
	}
	params := make([]byte, 0, len(ids)+2)
	params = append(params, addr, length)
	params = append(params, ids...)
	res := h.transmit(BroadcastID, InstSyncRead, params)
	if res != Success {
		h.release()
		return res
	}
	h.Port.ArmTimeout(packetTimeoutMs(h.Baud, (6+int(length))*len(ids)))
	// The bus stays marked busy until GroupSyncRead.Rx releases it: the
	// sync-read round is not complete until every id's response (or a
	// timeout) has been drained from the wire.
	return Success
}

// receiveByID drains exactly one response for id from the bus, reusing the
// timer armed by SyncReadTx. It does not re-arm the timer.
func (h *Handler) receiveByID(id byte) (Frame, CommResult) {
	return h.receiveMatching(id)
}

// releaseBus is used by GroupSyncRead to hand the bus guard back once a
// round (successful or not) is finished.
func (h *Handler) releaseBus() {
	h.release()
}
