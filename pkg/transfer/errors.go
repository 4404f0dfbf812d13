package transfer

import "errors"

var (
	// ErrProtocolViolation covers frames that arrive out of sequence, such as
	// a chunk with no file in progress.
	ErrProtocolViolation = errors.New("protocol violation")
	ErrTransferActive    = errors.New("a transfer is already active on this connection")
)
