package slip

type encoderState uint8

const (
	encIdle encoderState = iota
	encStart
	encBody
	encEscape
	encEnd
)

// Encoder produces the SLIP encoding of a frame one byte at a time.
//
// The zero value is an idle encoder. The frame passed to Start is borrowed
// and must not be modified until Pending reports false.
type Encoder struct {
	src     []byte
	pos     int
	state   encoderState
	escaped byte
}

// Start begins encoding frame, discarding any output still pending.
func (e *Encoder) Start(frame []byte) {
	e.src = frame
	e.pos = 0
	e.state = encStart
}

// Pending reports whether Next has more bytes to return.
func (e *Encoder) Pending() bool {
	return e.state != encIdle
}

// Next returns the next encoded byte. It returns End when the encoder is idle.
func (e *Encoder) Next() byte {
	switch e.state {
	case encStart:
		e.advance()
		return End

	case encEscape:
		e.advance()
		return e.escaped

	case encBody:
		b := e.src[e.pos]
		e.pos++
		switch b {
		case End:
			e.escaped = EscEnd
			e.state = encEscape
			return Esc
		case Esc:
			e.escaped = EscEsc
			e.state = encEscape
			return Esc
		}
		e.advance()
		return b

	case encEnd:
		e.state = encIdle
		e.src = nil
		return End

	default:
		return End
	}
}

func (e *Encoder) advance() {
	if e.pos < len(e.src) {
		e.state = encBody
	} else {
		e.state = encEnd
	}
}
