package scservo

import "github.com/GoAethereal/cancel"

// GroupSyncRead batches identical-address, identical-length reads across
// many servos into one broadcast sync-read request plus one response frame
// per id (§4.6). Tx arms a single shared timeout sized for the whole round;
// Rx drains each id's response against that same timer without re-arming.
type GroupSyncRead struct {
	h       *Handler
	addr    byte
	length  byte
	ids     []byte
	data    map[byte][]byte
	results map[byte]CommResult
	flags   map[byte]ErrorFlags
}

// NewGroupSyncRead builds a group reader fetching length bytes from addr on
// every added id.
func NewGroupSyncRead(h *Handler, addr, length byte) *GroupSyncRead {
	return &GroupSyncRead{
		h:       h,
		addr:    addr,
		length:  length,
		data:    make(map[byte][]byte),
		results: make(map[byte]CommResult),
		flags:   make(map[byte]ErrorFlags),
	}
}

// Add registers id for the round, in ascending order of first insertion.
// addr+length is validated as a full int sum to avoid the byte-overflow
// range check mistake of wrapping past 255 before comparing.
func (g *GroupSyncRead) Add(id byte) CommResult {
	if int(g.addr)+int(g.length) > 0xFF {
		return TxError
	}
	for _, v := range g.ids {
		if v == id {
			return Success
		}
	}
	g.ids = append(g.ids, id)
	return Success
}

// Remove drops id from the group.
func (g *GroupSyncRead) Remove(id byte) {
	delete(g.data, id)
	delete(g.results, id)
	delete(g.flags, id)
	for i, v := range g.ids {
		if v == id {
			g.ids = append(g.ids[:i], g.ids[i+1:]...)
			break
		}
	}
}

// Clear empties the group.
func (g *GroupSyncRead) Clear() {
	g.ids = nil
	g.data = make(map[byte][]byte)
	g.results = make(map[byte]CommResult)
	g.flags = make(map[byte]ErrorFlags)
}

// Tx broadcasts the sync-read request and arms the shared round timer. Call
// Rx afterward to drain responses.
func (g *GroupSyncRead) Tx() CommResult {
	if len(g.ids) == 0 {
		return NotAvailable
	}
	ordered := append([]byte(nil), g.ids...)
	sortBytes(ordered)
	g.ids = ordered
	return g.h.SyncReadTx(g.addr, g.length, ordered)
}

// Rx drains one response per id, in the same ascending order the request
// was sent, then releases the bus guard armed by Tx. ctx is checked between
// ids only: a single already-armed per-id receive always runs to its packet
// timeout, never preempted mid-wait (§5, §9).
func (g *GroupSyncRead) Rx(ctx cancel.Context) CommResult {
	defer g.h.releaseBus()
	overall := Success
	for _, id := range g.ids {
		select {
		case <-ctx.Done():
			g.results[id] = NotAvailable
			overall = NotAvailable
			continue
		default:
		}
		frame, res := g.h.receiveByID(id)
		g.results[id] = res
		if res != Success {
			overall = res
			continue
		}
		g.data[id] = frame.Params
		g.flags[id] = ErrorFlags(frame.Code)
	}
	return overall
}

// TxRx is a convenience combining Tx and Rx.
func (g *GroupSyncRead) TxRx(ctx cancel.Context) CommResult {
	if res := g.Tx(); res != Success {
		return res
	}
	return g.Rx(ctx)
}

// window carves [addr, addr+length) out of id's last-round buffer. It
// reports false if id has no buffered bytes yet, or the requested window
// steps outside [g.addr, g.addr+g.length) — the §9-corrected range check,
// using plain int arithmetic so nothing wraps near byte boundaries.
func (g *GroupSyncRead) window(id, addr, length byte) ([]byte, bool) {
	buf, ok := g.data[id]
	if !ok {
		return nil, false
	}
	start, end := int(g.addr), int(g.addr)+int(g.length)
	lo, hi := int(addr), int(addr)+int(length)
	if lo < start || hi > end {
		return nil, false
	}
	return buf[lo-start : hi-start], true
}

// Get returns the raw bytes in [addr, addr+length) from id's last successful
// round, alongside id's per-round CommResult and servo error flags. Per
// §4.6, a request before any round, for an id with no buffered response, or
// for a window outside [addr, addr+length) yields a nil slice rather than
// an error — callers decode with GetByte/GetWord/GetDWord, which turn a nil
// slice into 0.
func (g *GroupSyncRead) Get(id, addr, length byte) ([]byte, CommResult, ErrorFlags) {
	data, _ := g.window(id, addr, length)
	return data, g.results[id], g.flags[id]
}

// GetByte is Get for a single unsigned byte.
func (g *GroupSyncRead) GetByte(id, addr byte) (byte, CommResult, ErrorFlags) {
	data, res, ef := g.Get(id, addr, 1)
	if data == nil {
		return 0, res, ef
	}
	return data[0], res, ef
}

// GetWord is Get plus endianness decoding for a 2-byte field at addr.
func (g *GroupSyncRead) GetWord(id, addr byte) (uint16, CommResult, ErrorFlags) {
	data, res, ef := g.Get(id, addr, 2)
	if data == nil {
		return 0, res, ef
	}
	return g.h.Endian.word(data), res, ef
}

// GetDWord is Get plus endianness decoding for a 4-byte field at addr.
func (g *GroupSyncRead) GetDWord(id, addr byte) (uint32, CommResult, ErrorFlags) {
	data, res, ef := g.Get(id, addr, 4)
	if data == nil {
		return 0, res, ef
	}
	return g.h.Endian.dword(data), res, ef
}
