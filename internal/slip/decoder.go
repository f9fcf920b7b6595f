package slip

// Decoder reassembles SLIP frames from a byte stream into a caller buffer.
//
// Empty frames (back-to-back END bytes) are skipped. A frame that does not
// fit the buffer is discarded when its closing END arrives and counted in
// Overflows. Unknown escape sequences pass the escaped byte through.
type Decoder struct {
	buf       []byte
	n         int
	escaped   bool
	overflow  bool
	size      int
	overflows int
}

// NewDecoder returns a Decoder writing frames into buf.
func NewDecoder(buf []byte) *Decoder {
	d := &Decoder{}
	d.Init(buf)
	return d
}

// Init resets the decoder and binds it to buf. The overflow count is kept.
func (d *Decoder) Init(buf []byte) {
	d.buf = buf
	d.n = 0
	d.escaped = false
	d.overflow = false
	d.size = 0
}

// Feed processes one byte. It returns the frame size when b completes a
// frame, otherwise 0. The frame occupies buf[:size] until the next Feed.
func (d *Decoder) Feed(b byte) int {
	if d.size > 0 {
		d.size = 0
	}

	if d.escaped {
		d.escaped = false
		switch b {
		case EscEnd:
			d.put(End)
		case EscEsc:
			d.put(Esc)
		default:
			d.put(b)
		}
		return 0
	}

	switch b {
	case End:
		return d.finish()
	case Esc:
		d.escaped = true
	default:
		d.put(b)
	}
	return 0
}

// FrameSize returns the size of the frame completed by the last Feed, or 0.
func (d *Decoder) FrameSize() int {
	return d.size
}

// Overflows returns the number of frames discarded for exceeding the buffer.
func (d *Decoder) Overflows() int {
	return d.overflows
}

func (d *Decoder) put(b byte) {
	if d.n >= len(d.buf) {
		d.overflow = true
		return
	}
	d.buf[d.n] = b
	d.n++
}

func (d *Decoder) finish() int {
	if d.overflow {
		d.overflows++
		d.overflow = false
		d.n = 0
		return 0
	}
	if d.n == 0 {
		return 0
	}

	d.size = d.n
	d.n = 0
	return d.size
}
