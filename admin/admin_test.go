package admin

import (
	"context"
	"testing"
)

type fakeSource struct{ peers []PeerInfo }

func (f fakeSource) PeerInfos() []PeerInfo { return f.peers }

func TestListPeersReturnsSourceSnapshot(t *testing.T) {
	src := fakeSource{peers: []PeerInfo{{Addr: "127.0.0.1:9000", InFlightPackets: 2}}}
	s := NewServer(src)

	status, err := s.listPeers(context.Background(), &Empty{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(status.Peers) != 1 || status.Peers[0].Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected status: %+v", status)
	}
}
