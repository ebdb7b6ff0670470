package udp

import (
	"fmt"

	"github.com/huin/goupnp/dcps/internetgateway1"
)

// NATMapper opens a port on a UPnP-capable gateway, adapted from
// core/nat_traversal.go's NATManager simplified to the UPnP path only:
// this module's p2p/udp transports are typically reachable via mDNS on
// a LAN or a configured bootstrap address, so NAT-PMP support (which
// needs a gateway IP probe the teacher does via jackpal/gateway,
// outside this module's dependency set) is not worth adding for the
// one remaining case of a home router without UPnP.
type NATMapper struct {
	client     *internetgateway1.WANIPConnection1
	externalIP string
	mappedPort int
}

// NewNATMapper discovers a UPnP internet gateway on the LAN.
func NewNATMapper() (*NATMapper, error) {
	clients, _, err := internetgateway1.NewWANIPConnection1Clients()
	if err != nil || len(clients) == 0 {
		return nil, fmt.Errorf("nat: no UPnP gateway found: %w", err)
	}
	m := &NATMapper{client: clients[0]}
	if ip, err := m.client.GetExternalIPAddress(); err == nil {
		m.externalIP = ip
	}
	return m, nil
}

// ExternalIP returns the gateway-reported public IP, if discovered.
func (m *NATMapper) ExternalIP() string { return m.externalIP }

// Map forwards port on the gateway to this host's same port over UDP.
func (m *NATMapper) Map(port int) error {
	if err := m.client.AddPortMapping("", uint16(port), "UDP", uint16(port), m.externalIP, true, "replicon", 3600); err != nil {
		return fmt.Errorf("nat: map port %d: %w", port, err)
	}
	m.mappedPort = port
	return nil
}

// Unmap removes a previously mapped port.
func (m *NATMapper) Unmap() error {
	if m.mappedPort == 0 {
		return nil
	}
	if err := m.client.DeletePortMapping("", uint16(m.mappedPort), "UDP"); err != nil {
		return err
	}
	m.mappedPort = 0
	return nil
}
