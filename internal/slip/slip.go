// Package slip implements SLIP (RFC 1055) framing.
//
// Encoder and Decoder work one byte at a time so a caller can bound the
// size of every write and read it performs. Encode and Decode are
// whole-buffer helpers built on top of them.
package slip

const (
	End    = 0xC0
	Esc    = 0xDB
	EscEnd = 0xDC
	EscEsc = 0xDD
)

// Encode wraps data in SLIP framing.
// Adds END byte at start and end, escapes special bytes.
func Encode(data []byte) []byte {
	result := make([]byte, 0, EncodedLen(data))

	var enc Encoder
	enc.Start(data)
	for enc.Pending() {
		result = append(result, enc.Next())
	}

	return result
}

// EncodedLen returns the number of bytes Encode produces for data.
func EncodedLen(data []byte) int {
	n := len(data) + 2
	for _, b := range data {
		if b == End || b == Esc {
			n++
		}
	}
	return n
}

// Decode extracts the first frame from a SLIP encoded buffer.
// A missing trailing END is tolerated. Returns nil if no data was found.
func Decode(frame []byte) []byte {
	if len(frame) == 0 {
		return nil
	}

	buf := make([]byte, len(frame))
	dec := NewDecoder(buf)

	for _, b := range frame {
		if size := dec.Feed(b); size > 0 {
			return buf[:size]
		}
	}
	if size := dec.Feed(End); size > 0 {
		return buf[:size]
	}

	return nil
}
