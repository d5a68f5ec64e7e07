package webrtc

import (
	"fmt"
	"net"
	"strings"

	pion "github.com/pion/webrtc/v4"

	"github.com/JohanEM99/video-meet/internal/config"
)

// ICEConfiguration builds the pion configuration from the client config.
// Relay-only is used when forced and a TURN server exists.
func ICEConfiguration(cfg *config.Config, forceRelay bool) pion.Configuration {
	var iceServers []pion.ICEServer
	if stun := cfg.GetSTUNServers(); len(stun) > 0 {
		iceServers = append(iceServers, pion.ICEServer{URLs: stun})
	}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := pion.ICETransportPolicyAll
	if turnServers != nil && forceRelay {
		policy = pion.ICETransportPolicyRelay
	}

	return pion.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	}
}

// NewPeerConnection creates a pion PeerConnection for cfg.
func NewPeerConnection(cfg *config.Config, forceRelay bool) (*pion.PeerConnection, error) {
	pc, err := pion.NewPeerConnection(ICEConfiguration(cfg, forceRelay))
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	return pc, nil
}

// ShouldForceRelay checks if the system is likely behind a restrictive VPN or CGNAT
// and returns true if we should force TURN usage.
func ShouldForceRelay() bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	var names []string
	var addrs [][]net.Addr
	for _, iface := range interfaces {
		// Ignore loopback and down interfaces
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		a, err := iface.Addrs()
		if err != nil {
			a = nil
		}
		names = append(names, iface.Name)
		addrs = append(addrs, a)
	}
	return likelyRelayed(names, addrs)
}

// cgnatBlock is 100.64.0.0/10, used by Cloudflare WARP, Tailscale and carrier
// grade NATs. Direct paths from there rarely work.
var _, cgnatBlock, _ = net.ParseCIDR("100.64.0.0/10")

func likelyRelayed(names []string, addrs [][]net.Addr) bool {
	for i, name := range names {
		name = strings.ToLower(name)
		if strings.Contains(name, "tun") || // Standard VPNs (OpenVPN, etc)
			strings.Contains(name, "tap") || // Virtual adapters
			strings.Contains(name, "wg") || // WireGuard
			strings.Contains(name, "ppp") || // Point-to-Point
			strings.Contains(name, "warp") { // Explicit WARP
			return true
		}

		for _, addr := range addrs[i] {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip != nil && cgnatBlock.Contains(ip) {
				return true
			}
		}
	}
	return false
}
