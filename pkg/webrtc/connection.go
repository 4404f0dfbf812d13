// Package webrtc is the production connection provider: every link is a pion
// PeerConnection carrying one ordered data channel.
package webrtc

import (
	"log/slog"

	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"
)

const (
	MTU uint = 1400
	// ChannelLabel names the single data channel of a link.
	ChannelLabel = "nwshare"
)

// DefaultICEServers are used when Config.ICEServers is empty.
var DefaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
	{URLs: []string{"stun:global.stun.twilio.com:3478"}},
}

// Config holds the configuration shared by every PeerConnection of a Provider.
type Config struct {
	ICEServers []webrtc.ICEServer
	// LANOnly gathers host candidates only and never contacts a STUN server.
	LANOnly bool
	// DisableMDNS keeps raw host addresses in candidates instead of .local names.
	DisableMDNS bool
	Logger      *slog.Logger
}

type WebRTCAPI struct {
	api     *webrtc.API
	servers []webrtc.ICEServer
}

func NewWebRTCAPI(cfg Config) *WebRTCAPI {
	settings := webrtc.SettingEngine{}
	if cfg.DisableMDNS {
		settings.SetICEMulticastDNSMode(ice.MulticastDNSModeDisabled)
	} else {
		settings.SetICEMulticastDNSMode(ice.MulticastDNSModeQueryAndGather)
	}
	settings.SetReceiveMTU(MTU)

	servers := cfg.ICEServers
	switch {
	case cfg.LANOnly:
		servers = nil
	case len(servers) == 0:
		servers = DefaultICEServers
	}

	// One API for every PeerConnection of the process.
	return &WebRTCAPI{
		api:     webrtc.NewAPI(webrtc.WithSettingEngine(settings)),
		servers: servers,
	}
}

func (a *WebRTCAPI) newPeerConnection() (*webrtc.PeerConnection, error) {
	return a.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: a.servers,
	})
}
