package transfer

import (
	"fmt"
	"os"
	"path/filepath"

	cbor "github.com/fxamacker/cbor/v2"
)

// FileInfo describes the transferred file. It travels CBOR encoded in the
// optional Info packet that opens a transfer.
type FileInfo struct {
	Name    string `cbor:"1,keyasint"`
	Size    int64  `cbor:"2,keyasint"`
	Mode    uint32 `cbor:"3,keyasint,omitempty"`
	ModTime int64  `cbor:"4,keyasint,omitempty"` // unix seconds
}

var infoEncMode, infoDecMode = func() (cbor.EncMode, cbor.DecMode) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
	return em, dm
}()

// FileInfoFromStat builds a FileInfo from fi. Only the base name is kept.
func FileInfoFromStat(fi os.FileInfo) FileInfo {
	return FileInfo{
		Name:    filepath.Base(fi.Name()),
		Size:    fi.Size(),
		Mode:    uint32(fi.Mode().Perm()),
		ModTime: fi.ModTime().Unix(),
	}
}

// NewInfoPacket creates an Info packet carrying info.
func NewInfoPacket(seq uint32, info FileInfo) (*Packet, error) {
	data, err := infoEncMode.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("encode file info: %w", err)
	}
	if len(data) > BlockSize {
		return nil, fmt.Errorf("file info too large: %d bytes", len(data))
	}
	return &Packet{Type: TypeInfo, Seq: seq, Data: data}, nil
}

// Info decodes the FileInfo carried by an Info packet.
func (p *Packet) Info() (FileInfo, error) {
	var info FileInfo
	if p.Type != TypeInfo {
		return info, fmt.Errorf("not an info packet: type 0x%02X", p.Type)
	}
	if err := infoDecMode.Unmarshal(p.Data, &info); err != nil {
		return info, fmt.Errorf("decode file info: %w", err)
	}
	if info.Size < 0 {
		return info, fmt.Errorf("invalid file size %d", info.Size)
	}
	return info, nil
}
