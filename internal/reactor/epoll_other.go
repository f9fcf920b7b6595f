//go:build !linux

package reactor

import "github.com/bigbag/slipuart/internal/logger"

// NewLoop is not implemented outside Linux.
func NewLoop(l logger.Logger) (Loop, error) {
	return nil, ErrNotSupported
}
