package registry

import (
	"errors"
	"fmt"
)

var (
	ErrTransportClosed = errors.New("transport closed")
	ErrProviderClosed  = errors.New("provider closed")
	ErrDestroyed       = errors.New("registry destroyed")
)

// ConnectivityError reports that a connection to a remote peer could not be
// established. It never tears down the registry.
type ConnectivityError struct {
	PeerID string
	Err    error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("could not connect to %s: %v", e.PeerID, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}
