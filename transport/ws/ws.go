// Package ws is a replicon.Transport for browser-hosted peers where
// WebRTC isn't available, using gorilla/websocket the way the teacher
// pulls it in as a transport-layer dependency. Outbound connections are
// pooled per address, grounded on core/connection_pool.go's
// Acquire/Release/reaper shape adapted from net.Conn to
// *websocket.Conn.
package ws

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"replicon/pkg/synclog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type pooledConn struct {
	conn     *websocket.Conn
	addr     string
	lastUsed time.Time
}

// Transport is a replicon.Transport over WebSocket connections: it
// runs an HTTP server accepting inbound connections and maintains a
// pool of outbound connections keyed by address, so a peer addressed
// the same way twice reuses its socket instead of re-dialing.
type Transport struct {
	log *logrus.Logger

	server     *http.Server
	listenAddr string
	incoming   chan datagram

	mu      sync.Mutex
	idle    map[string][]*pooledConn
	maxIdle int
	idleTTL time.Duration
	closing chan struct{}
}

type datagram struct {
	from string
	body []byte
}

// Listen starts an HTTP server on localAddr accepting WebSocket
// upgrades at "/replicon", and returns a Transport ready to
// Send/Receive. maxIdle and idleTTL bound the outbound connection pool
// the way core.NewConnPool does.
func Listen(localAddr string, maxIdle int, idleTTL time.Duration, log *logrus.Logger) (*Transport, error) {
	t := &Transport{
		log:      synclog.Or(log),
		incoming: make(chan datagram, 256),
		idle:     make(map[string][]*pooledConn),
		maxIdle:  maxIdle,
		idleTTL:  idleTTL,
		closing:  make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/replicon", t.handleUpgrade)
	t.server = &http.Server{Addr: localAddr, Handler: mux}

	ln, err := net.Listen("tcp", localAddr)
	if err != nil {
		return nil, err
	}
	t.listenAddr = ln.Addr().String()
	go func() {
		if err := t.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			t.log.WithError(err).Warn("replicon: ws server stopped")
		}
	}()
	go t.reaper()
	return t, nil
}

// LocalAddr returns the bound "host:port" the HTTP server is listening on.
func (t *Transport) LocalAddr() string { return t.listenAddr }

func (t *Transport) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.WithError(err).Warn("replicon: ws upgrade failed")
		return
	}
	addr := r.RemoteAddr
	go t.readLoop(conn, addr)
}

func (t *Transport) readLoop(conn *websocket.Conn, addr string) {
	defer conn.Close()
	for {
		_, body, err := conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case t.incoming <- datagram{from: addr, body: body}:
		case <-t.closing:
			return
		}
	}
}

// acquire returns a pooled outbound connection to addr, dialing a new
// one if none is idle.
func (t *Transport) acquire(addr string) (*pooledConn, error) {
	t.mu.Lock()
	list := t.idle[addr]
	n := len(list)
	if n > 0 {
		pc := list[n-1]
		t.idle[addr] = list[:n-1]
		t.mu.Unlock()
		return pc, nil
	}
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, "ws://"+addr+"/replicon", nil)
	if err != nil {
		return nil, err
	}
	go t.readLoop(conn, addr)
	return &pooledConn{conn: conn, addr: addr}, nil
}

func (t *Transport) release(pc *pooledConn) {
	pc.lastUsed = time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.maxIdle > 0 && len(t.idle[pc.addr]) < t.maxIdle {
		t.idle[pc.addr] = append(t.idle[pc.addr], pc)
		return
	}
	_ = pc.conn.Close()
}

func (t *Transport) reaper() {
	if t.idleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(t.idleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-t.idleTTL)
			t.mu.Lock()
			for addr, list := range t.idle {
				i := 0
				for _, pc := range list {
					if pc.lastUsed.Before(cutoff) {
						_ = pc.conn.Close()
						continue
					}
					list[i] = pc
					i++
				}
				t.idle[addr] = list[:i]
			}
			t.mu.Unlock()
		case <-t.closing:
			return
		}
	}
}

// Send dials or reuses a pooled connection to addr and writes b as one
// binary WebSocket message.
func (t *Transport) Send(addr string, b []byte) error {
	pc, err := t.acquire(addr)
	if err != nil {
		return err
	}
	if err := pc.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		_ = pc.conn.Close()
		return err
	}
	t.release(pc)
	return nil
}

// Receive returns the next datagram accepted from any peer, or
// ok=false if none is currently buffered.
func (t *Transport) Receive() (string, []byte, bool, error) {
	select {
	case d := <-t.incoming:
		return d.from, d.body, true, nil
	default:
		return "", nil, false, nil
	}
}

// Close stops the HTTP server and every pooled connection.
func (t *Transport) Close() error {
	close(t.closing)
	t.mu.Lock()
	for _, list := range t.idle {
		for _, pc := range list {
			_ = pc.conn.Close()
		}
	}
	t.idle = make(map[string][]*pooledConn)
	t.mu.Unlock()
	return t.server.Close()
}
