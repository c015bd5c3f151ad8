package scservo

// Wire framing constants (§3). A frame is:
//
//	[0xFF][0xFF][id][length][instruction|error][param0...paramN-1][checksum]
const (
	headerByte  = 0xFF
	BroadcastID = 0xFE
	reservedID  = 0xFD
	// MaxFrameLen is the hard cap on total frame length, both directions.
	MaxFrameLen = 250
	// minFrameLen is the shortest possible frame: header(2) id(1) length(1)
	// code(1) checksum(1), zero params.
	minFrameLen = 6
)

// Instruction codes, the 5th byte of a request frame (§3).
const (
	InstPing      byte = 1
	InstRead      byte = 2
	InstWrite     byte = 3
	InstRegWrite  byte = 4
	InstAction    byte = 5
	InstSyncRead  byte = 0x82
	InstSyncWrite byte = 0x83
)

// Frame is a decoded request or response. Code holds the instruction byte on
// a request and the servo error byte on a response.
type Frame struct {
	ID     byte
	Code   byte
	Params []byte
}

// checksum8 computes the one's-complement of the 8-bit wrapping sum of b.
func checksum8(b []byte) byte {
	var sum byte
	for _, x := range b {
		sum += x
	}
	return ^sum
}

// buildFrame encodes (id, code, params) into a ready-to-transmit byte slice.
// code is the instruction for requests. TxError is returned if the frame
// would exceed MaxFrameLen.
func buildFrame(id, code byte, params []byte) ([]byte, CommResult) {
	total := len(params) + minFrameLen
	if total > MaxFrameLen {
		return nil, TxError
	}
	buf := make([]byte, total)
	buf[0], buf[1] = headerByte, headerByte
	buf[2] = id
	buf[3] = byte(len(params) + 2)
	buf[4] = code
	copy(buf[5:], params)
	buf[total-1] = checksum8(buf[2 : total-1])
	return buf, Success
}

// findHeader returns the offset of the first 0xFF 0xFF pair in buf, or -1.
func findHeader(buf []byte) int {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == headerByte && buf[i+1] == headerByte {
			return i
		}
	}
	return -1
}

// validHeaderFields reports whether the header-aligned buf (buf[0:2] ==
// 0xFF 0xFF) has plausible id/length/code fields at offsets 2/3/4. buf must
// have at least 5 bytes.
func validHeaderFields(buf []byte) bool {
	id := buf[2]
	length := buf[3]
	code := buf[4]
	// length=250 must be rejected, not merely clamped: frameTotalLen(250)
	// would exceed MaxFrameLen, so the header is bogus and triggers rescan.
	// id<=reservedID already excludes BroadcastID (0xFE), which a response
	// frame can never carry.
	return id <= reservedID && length <= MaxFrameLen-4 && code <= 0x7F
}

// frameTotalLen returns the total byte count of a header-aligned frame given
// its length field (buf[3]).
func frameTotalLen(length byte) int {
	return int(length) + 4
}

// verifyChecksum reports whether the trailing byte of a complete,
// header-aligned frame (buf[:frameTotalLen(buf[3])]) matches the computed
// checksum over buf[2 : total-1].
func verifyChecksum(buf []byte) bool {
	total := len(buf)
	if total < minFrameLen {
		return false
	}
	return buf[total-1] == checksum8(buf[2:total-1])
}

// decodeFrame extracts a Frame from a complete, checksum-verified,
// header-aligned buffer.
func decodeFrame(buf []byte) Frame {
	total := len(buf)
	return Frame{
		ID:     buf[2],
		Code:   buf[4],
		Params: append([]byte(nil), buf[5:total-1]...),
	}
}
