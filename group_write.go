package scservo

import "github.com/GoAethereal/cancel"

// GroupSyncWrite batches identical-length writes to the same control-table
// address across many servos into a single broadcast sync-write frame
// (§4.5). dirty tracks which ids changed since the last successful Tx; it
// is cleared on a successful transmit and is not exposed outside the type.
// Tx always rebuilds and sends the full membership, since sync-write has
// no partial mode on the wire.
type GroupSyncWrite struct {
	h      *Handler
	addr   byte
	length byte
	ids    []byte
	data   map[byte][]byte
	dirty  map[byte]bool
}

// NewGroupSyncWrite builds a group writer targeting addr for length bytes
// per servo.
func NewGroupSyncWrite(h *Handler, addr, length byte) *GroupSyncWrite {
	return &GroupSyncWrite{
		h:      h,
		addr:   addr,
		length: length,
		data:   make(map[byte][]byte),
		dirty:  make(map[byte]bool),
	}
}

// Add stages payload for a new id, in ascending wire order. It rejects an
// id already present (use Change to update one) and a payload longer than
// the configured length (§4.5, testable property 12).
func (g *GroupSyncWrite) Add(id byte, payload []byte) CommResult {
	if len(payload) > int(g.length) {
		return TxError
	}
	if _, ok := g.data[id]; ok {
		return NotAvailable
	}
	g.ids = append(g.ids, id)
	g.data[id] = append([]byte(nil), payload...)
	g.dirty[id] = true
	return Success
}

// Change updates the payload for an id already in the group. It rejects an
// absent id and an oversize payload (§4.5).
func (g *GroupSyncWrite) Change(id byte, payload []byte) CommResult {
	if len(payload) > int(g.length) {
		return TxError
	}
	if _, ok := g.data[id]; !ok {
		return NotAvailable
	}
	g.data[id] = append([]byte(nil), payload...)
	g.dirty[id] = true
	return Success
}

// Remove drops id from the group entirely.
func (g *GroupSyncWrite) Remove(id byte) {
	delete(g.data, id)
	delete(g.dirty, id)
	for i, v := range g.ids {
		if v == id {
			g.ids = append(g.ids[:i], g.ids[i+1:]...)
			break
		}
	}
}

// Clear empties the group.
func (g *GroupSyncWrite) Clear() {
	g.ids = nil
	g.data = make(map[byte][]byte)
	g.dirty = make(map[byte]bool)
}

// Tx transmits one broadcast sync-write frame carrying every staged id's
// payload, in ascending id order (§4.5). It always transmits the full
// cached set, not only entries touched since the last Tx: the wire block
// must be complete for every included id regardless of which changed. ctx
// is honoured only before transmission starts; sync-write is a single
// broadcast frame with no response, so there is no per-id round to abort
// mid-flight.
func (g *GroupSyncWrite) Tx(ctx cancel.Context) CommResult {
	select {
	case <-ctx.Done():
		return NotAvailable
	default:
	}
	if len(g.ids) == 0 {
		return NotAvailable
	}
	ordered := append([]byte(nil), g.ids...)
	sortBytes(ordered)
	block := make([]byte, 0, len(ordered)*(int(g.length)+1))
	for _, id := range ordered {
		block = append(block, id)
		payload := g.data[id]
		block = append(block, payload...)
		// A payload shorter than the configured length (legal per §4.5, "length
		// <= data-length") still occupies a full data-length stride on the
		// wire so every id's block is the same size.
		for i := len(payload); i < int(g.length); i++ {
			block = append(block, 0)
		}
	}
	res := g.h.SyncWriteTx(g.addr, g.length, block)
	if res == Success {
		for id := range g.dirty {
			delete(g.dirty, id)
		}
	}
	return res
}

// sortBytes is a small insertion sort: group sizes are servo-bus scale
// (tens of ids), not large enough to warrant sort.Slice's overhead.
func sortBytes(b []byte) {
	for i := 1; i < len(b); i++ {
		for j := i; j > 0 && b[j-1] > b[j]; j-- {
			b[j-1], b[j] = b[j], b[j-1]
		}
	}
}
