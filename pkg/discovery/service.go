package discovery

import (
	"context"
	"net"
	"net/url"
	"strconv"
)

const (
	DefaultServiceType = "_nwshare._tcp"
	DefaultDomain      = "local"
)

// TXT record keys.
const (
	textCode       = "code"
	textRendezvous = "rendezvous"
	textLocked     = "locked"
)

// ServiceInfo describes a hosted session announced on the local network.
type ServiceInfo struct {
	Name   string // instance name
	Type   string // service name, e.g., "_nwshare._tcp"
	Domain string // domain, e.g., "local"
	Addr   net.IP
	Port   int

	Code       string
	Rendezvous string
	Locked     bool
}

// DiscoveryResult carries either a snapshot of the sessions seen so far or an error.
type DiscoveryResult struct {
	Services []ServiceInfo
	Error    error
}

type Adapter interface {
	Announce(ctx context.Context, service ServiceInfo) error
	Discover(ctx context.Context, serviceType string) <-chan DiscoveryResult
}

// NewSessionService builds the announcement for a hosted session. The port is
// taken from the rendezvous URL.
func NewSessionService(instance, code, rendezvous string, locked bool) ServiceInfo {
	return ServiceInfo{
		Name:       instance,
		Type:       DefaultServiceType,
		Domain:     DefaultDomain,
		Port:       portOf(rendezvous),
		Code:       code,
		Rendezvous: rendezvous,
		Locked:     locked,
	}
}

func (s ServiceInfo) text() map[string]string {
	return map[string]string{
		textCode:       s.Code,
		textRendezvous: s.Rendezvous,
		textLocked:     strconv.FormatBool(s.Locked),
	}
}

func (s *ServiceInfo) applyText(text map[string]string) {
	s.Code = text[textCode]
	s.Rendezvous = text[textRendezvous]
	s.Locked, _ = strconv.ParseBool(text[textLocked])
}

func portOf(raw string) int {
	u, err := url.Parse(raw)
	if err != nil {
		return 0
	}
	if p, err := strconv.Atoi(u.Port()); err == nil {
		return p
	}
	switch u.Scheme {
	case "wss", "https":
		return 443
	case "ws", "http":
		return 80
	}
	return 0
}
