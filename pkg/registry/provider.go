package registry

import "context"

// Link is one established, ordered, reliable duplex channel to a remote peer.
// Frames arrive on Recv in the order the remote sent them.
type Link interface {
	ID() string
	PeerID() string
	Send(frame []byte) error
	// BufferedAmount is the number of bytes queued locally and not yet handed to the network.
	BufferedAmount() uint64
	Recv() <-chan []byte
	// Done is closed once the link is closed by either side.
	Done() <-chan struct{}
	Close() error
}

// Provider establishes links. Accept returns ErrProviderClosed after Close.
type Provider interface {
	LocalID() string
	Connect(ctx context.Context, remoteID string) (Link, error)
	Accept(ctx context.Context) (Link, error)
	Close() error
}
