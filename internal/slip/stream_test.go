package slip

import (
	"bytes"
	"testing"
)

func TestEncoder_IdleByDefault(t *testing.T) {
	var enc Encoder
	if enc.Pending() {
		t.Fatal("zero Encoder reports pending output")
	}
}

func TestEncoder_RestartDiscardsPending(t *testing.T) {
	var enc Encoder
	enc.Start([]byte{0x01, 0x02, 0x03})
	enc.Next()
	enc.Next()

	enc.Start([]byte{0x09})
	var out []byte
	for enc.Pending() {
		out = append(out, enc.Next())
	}

	expected := []byte{End, 0x09, End}
	if !bytes.Equal(out, expected) {
		t.Errorf("restarted output = %v, want %v", out, expected)
	}
}

func TestDecoder_ChunkBoundaryIndependent(t *testing.T) {
	frame := []byte{0x10, End, 0x20, Esc, 0x30, End, End, Esc}
	encoded := Encode(frame)

	for chunk := 1; chunk <= len(encoded); chunk++ {
		buf := make([]byte, 64)
		dec := NewDecoder(buf)
		size := 0

		for start := 0; start < len(encoded); start += chunk {
			end := min(start+chunk, len(encoded))
			for _, b := range encoded[start:end] {
				if n := dec.Feed(b); n > 0 {
					size = n
				}
			}
		}

		if size != len(frame) {
			t.Fatalf("chunk %d: frame size = %d, want %d", chunk, size, len(frame))
		}
		if !bytes.Equal(buf[:size], frame) {
			t.Errorf("chunk %d: frame = %v, want %v", chunk, buf[:size], frame)
		}
	}
}

func TestDecoder_BackToBackFrames(t *testing.T) {
	stream := append(Encode([]byte{0x01, 0x02}), Encode([]byte{0x03})...)

	buf := make([]byte, 16)
	dec := NewDecoder(buf)
	var frames [][]byte
	for _, b := range stream {
		if n := dec.Feed(b); n > 0 {
			frames = append(frames, append([]byte(nil), buf[:n]...))
		}
	}

	if len(frames) != 2 {
		t.Fatalf("decoded %d frames, want 2", len(frames))
	}
	if !bytes.Equal(frames[0], []byte{0x01, 0x02}) || !bytes.Equal(frames[1], []byte{0x03}) {
		t.Errorf("frames = %v", frames)
	}
}

func TestDecoder_FrameSizeResetByNextFeed(t *testing.T) {
	dec := NewDecoder(make([]byte, 4))
	for _, b := range []byte{End, 0x01, End} {
		dec.Feed(b)
	}
	if dec.FrameSize() != 1 {
		t.Fatalf("FrameSize() = %d, want 1", dec.FrameSize())
	}

	dec.Feed(0x02)
	if dec.FrameSize() != 0 {
		t.Errorf("FrameSize() after next byte = %d, want 0", dec.FrameSize())
	}
}

func TestDecoder_OverflowDiscardsFrame(t *testing.T) {
	buf := make([]byte, 2)
	dec := NewDecoder(buf)

	for _, b := range Encode([]byte{0x01, 0x02, 0x03}) {
		if n := dec.Feed(b); n > 0 {
			t.Fatalf("oversize frame delivered with size %d", n)
		}
	}
	if dec.Overflows() != 1 {
		t.Fatalf("Overflows() = %d, want 1", dec.Overflows())
	}

	// The decoder recovers on the next frame.
	size := 0
	for _, b := range Encode([]byte{0x04, 0x05}) {
		if n := dec.Feed(b); n > 0 {
			size = n
		}
	}
	if size != 2 || !bytes.Equal(buf, []byte{0x04, 0x05}) {
		t.Errorf("after overflow: size %d buf %v", size, buf)
	}
}

func TestDecoder_InitKeepsOverflowCount(t *testing.T) {
	dec := NewDecoder(nil)
	for _, b := range Encode([]byte{0x01}) {
		dec.Feed(b)
	}
	dec.Init(make([]byte, 8))
	if dec.Overflows() != 1 {
		t.Errorf("Overflows() = %d, want 1", dec.Overflows())
	}
}
