package webrtc

import "github.com/rescp17/nwshare/api"

// Signaler decouples the WebRTC logic from the rendezvous transport.
// *api.WSSignaler is the production implementation.
type Signaler interface {
	LocalID() string
	Send(env api.Envelope) error
	// Incoming is closed when the rendezvous connection ends.
	Incoming() <-chan api.Envelope
	Close() error
}
