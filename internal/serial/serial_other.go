//go:build !linux

package serial

// Open is not implemented outside Linux.
func Open(name string, mode Mode) (Device, error) {
	return nil, ErrNotSupported
}
