// Package udp is the simplest replicon.Transport: a single
// net.PacketConn shared by every peer, grounded on the teacher's
// Dialer in core/network.go (same net package, same context/timeout
// conventions) simplified to UDP's connectionless model.
package udp

import (
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"replicon/pkg/synclog"
)

// nonBlockingPoll bounds how long Receive blocks waiting for a
// datagram before reporting "nothing available", keeping Receive
// non-blocking in spirit without busy-spinning the caller's poll loop.
const nonBlockingPoll = 5 * time.Millisecond

// Transport is a replicon.Transport backed by a UDP socket. addr
// strings passed to Send/returned from Receive are "host:port" pairs.
type Transport struct {
	conn *net.UDPConn
	log  *logrus.Logger
}

// Listen opens a UDP socket on localAddr ("host:port", or ":0" for an
// ephemeral port) and returns a Transport ready to Send/Receive.
func Listen(localAddr string, log *logrus.Logger) (*Transport, error) {
	addr, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return &Transport{conn: conn, log: synclog.Or(log)}, nil
}

// LocalAddr returns the bound socket address.
func (t *Transport) LocalAddr() string { return t.conn.LocalAddr().String() }

// Send writes b as a single UDP datagram to addr.
func (t *Transport) Send(addr string, b []byte) error {
	dst, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	_, err = t.conn.WriteToUDP(b, dst)
	return err
}

// Receive reads the next datagram without blocking past a short
// deadline: a read that times out at that deadline signals "nothing available"
// rather than blocking the caller's poll loop indefinitely.
func (t *Transport) Receive() (string, []byte, bool, error) {
	buf := make([]byte, 65535)
	if err := t.conn.SetReadDeadline(time.Now().Add(nonBlockingPoll)); err != nil {
		return "", nil, false, err
	}
	n, from, err := t.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return "", nil, false, nil
		}
		return "", nil, false, err
	}
	return from.String(), buf[:n], true, nil
}

// Close releases the underlying socket.
func (t *Transport) Close() error {
	return t.conn.Close()
}
