package transfer

import (
	"encoding/binary"
	"fmt"
)

// Packet is one transfer packet before SLIP framing.
type Packet struct {
	Type byte
	Seq  uint32
	Data []byte
}

// NewDataPacket creates a data packet.
func NewDataPacket(seq uint32, data []byte) *Packet {
	return &Packet{Type: TypeData, Seq: seq, Data: data}
}

// NewEndPacket creates the final packet with the stream size and digest.
func NewEndPacket(seq uint32, size uint32, sum [16]byte) *Packet {
	data := make([]byte, endSize)
	binary.LittleEndian.PutUint32(data[0:4], size)
	copy(data[4:], sum[:])
	return &Packet{Type: TypeEnd, Seq: seq, Data: data}
}

// NewAckPacket creates an acknowledgement for seq.
func NewAckPacket(seq uint32, status byte) *Packet {
	return &Packet{Type: TypeAck, Seq: seq, Data: []byte{status}}
}

// Encode serializes the packet.
func (p *Packet) Encode() []byte {
	out := make([]byte, HeaderSize+len(p.Data))
	out[0] = p.Type
	binary.LittleEndian.PutUint32(out[1:5], p.Seq)
	binary.LittleEndian.PutUint16(out[5:7], uint16(len(p.Data)))
	copy(out[HeaderSize:], p.Data)
	return out
}

// DecodePacket parses a packet from a decoded frame.
func DecodePacket(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("packet too short: %d bytes", len(data))
	}

	p := &Packet{
		Type: data[0],
		Seq:  binary.LittleEndian.Uint32(data[1:5]),
	}

	switch p.Type {
	case TypeData, TypeEnd, TypeAck, TypeInfo:
	default:
		return nil, fmt.Errorf("invalid packet type: 0x%02X", p.Type)
	}

	size := int(binary.LittleEndian.Uint16(data[5:7]))
	if size != len(data)-HeaderSize {
		return nil, fmt.Errorf("data size mismatch: expected %d, have %d", size, len(data)-HeaderSize)
	}
	p.Data = data[HeaderSize:]

	return p, nil
}

// EndInfo returns the size and digest carried by an End packet.
func (p *Packet) EndInfo() (uint32, [16]byte, error) {
	var sum [16]byte
	if p.Type != TypeEnd {
		return 0, sum, fmt.Errorf("not an end packet: type 0x%02X", p.Type)
	}
	if len(p.Data) != endSize {
		return 0, sum, fmt.Errorf("end packet length %d, want %d", len(p.Data), endSize)
	}

	copy(sum[:], p.Data[4:])
	return binary.LittleEndian.Uint32(p.Data[0:4]), sum, nil
}

// Status returns the status of an Ack packet.
func (p *Packet) Status() (byte, error) {
	if p.Type != TypeAck || len(p.Data) != 1 {
		return 0, fmt.Errorf("not an ack packet: type 0x%02X len %d", p.Type, len(p.Data))
	}
	return p.Data[0], nil
}
