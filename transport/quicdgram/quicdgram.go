// Package quicdgram is a replicon.Transport over QUIC datagram frames
// (RFC 9221): unreliable, unordered, congestion-controlled, the
// "datagram socket" alternative named in spec §6, using
// github.com/quic-go/quic-go the way the teacher's other transports
// wrap a lower-level net primitive behind the Transport interface.
package quicdgram

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/sirupsen/logrus"

	"replicon/pkg/synclog"
)

// Transport multiplexes a single QUIC listener across many peer
// connections, dialing outbound connections lazily and accepting
// inbound ones on a background goroutine.
type Transport struct {
	log      *logrus.Logger
	listener *quic.Listener
	tlsConf  *tls.Config

	mu      sync.Mutex
	conns   map[string]quic.Connection
	incoming chan datagram
	closing chan struct{}
}

type datagram struct {
	from string
	body []byte
}

// Listen opens a QUIC datagram-capable listener on localAddr using a
// self-signed certificate suitable for peer-to-peer game traffic
// (application-level auth, if any, happens above this Transport).
func Listen(localAddr string, log *logrus.Logger) (*Transport, error) {
	tlsConf, err := generateTLSConfig()
	if err != nil {
		return nil, err
	}
	ln, err := quic.ListenAddr(localAddr, tlsConf, quicConfig())
	if err != nil {
		return nil, err
	}
	t := &Transport{
		log:      synclog.Or(log),
		listener: ln,
		tlsConf:  tlsConf,
		conns:    make(map[string]quic.Connection),
		incoming: make(chan datagram, 256),
		closing:  make(chan struct{}),
	}
	go t.acceptLoop()
	return t, nil
}

func quicConfig() *quic.Config {
	return &quic.Config{EnableDatagrams: true, MaxIdleTimeout: 30 * time.Second}
}

func (t *Transport) acceptLoop() {
	for {
		conn, err := t.listener.Accept(context.Background())
		if err != nil {
			return
		}
		addr := conn.RemoteAddr().String()
		t.mu.Lock()
		t.conns[addr] = conn
		t.mu.Unlock()
		go t.readLoop(addr, conn)
	}
}

func (t *Transport) readLoop(addr string, conn quic.Connection) {
	for {
		b, err := conn.ReceiveDatagram(context.Background())
		if err != nil {
			t.mu.Lock()
			delete(t.conns, addr)
			t.mu.Unlock()
			return
		}
		cp := make([]byte, len(b))
		copy(cp, b)
		select {
		case t.incoming <- datagram{from: addr, body: cp}:
		case <-t.closing:
			return
		}
	}
}

func (t *Transport) dial(addr string) (quic.Connection, error) {
	t.mu.Lock()
	conn, ok := t.conns[addr]
	t.mu.Unlock()
	if ok {
		return conn, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := quic.DialAddr(ctx, addr, &tls.Config{InsecureSkipVerify: true, NextProtos: t.tlsConf.NextProtos}, quicConfig())
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.conns[addr] = conn
	t.mu.Unlock()
	go t.readLoop(addr, conn)
	return conn, nil
}

// Send writes b as a single unreliable datagram frame to addr.
func (t *Transport) Send(addr string, b []byte) error {
	conn, err := t.dial(addr)
	if err != nil {
		return err
	}
	return conn.SendDatagram(b)
}

// Receive returns the next datagram received from any peer, or
// ok=false if none is currently buffered.
func (t *Transport) Receive() (string, []byte, bool, error) {
	select {
	case d := <-t.incoming:
		return d.from, d.body, true, nil
	default:
		return "", nil, false, nil
	}
}

// Close tears down every connection and the listener.
func (t *Transport) Close() error {
	close(t.closing)
	t.mu.Lock()
	for _, c := range t.conns {
		_ = c.CloseWithError(0, "closing")
	}
	t.mu.Unlock()
	return t.listener.Close()
}

// generateTLSConfig builds a throwaway self-signed certificate: QUIC
// requires TLS, but this module's authentication is the handshake
// token exchanged above Transport, not the certificate chain.
func generateTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	template := x509.Certificate{SerialNumber: big.NewInt(1)}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, NextProtos: []string{"replicon"}}, nil
}
