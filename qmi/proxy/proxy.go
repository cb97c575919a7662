// Package proxy implements a local broker that lets several host processes
// share one modem character device: it owns the real qmi.Device and relays
// QMUX frames to/from a Unix-domain socket, rewriting only the transaction
// id of each forwarded request so that concurrently connected processes can
// never collide on the shared device's transaction table.
package proxy

import (
	"context"
	"net"
	"os"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/linux-mobile-broadband/libqmi-sub000/qmi"
)

// These mirror the CTL message/TLV ids the core device runtime already
// speaks (see qmi/ctl.go); the proxy never interprets anything else, so it
// only needs to recognise allocate_cid responses well enough to track CID
// ownership per connection for release-on-disconnect.
const (
	ctlMsgAllocateCID    uint16 = 0x0022
	ctlTLVAllocationInfo uint8  = 0x01
)

// Broker owns the real Device and accepts process connections on a
// Unix-domain socket, relaying QMUX frames between them.
type Broker struct {
	device     *qmi.Device
	socketPath string
	log        *log.Logger

	mu       sync.Mutex
	listener net.Listener
	sessions map[*session]struct{}
}

// NewBroker wraps an already-open Device (typically opened over chardev)
// for sharing over socketPath.
func NewBroker(device *qmi.Device, socketPath string) *Broker {
	return &Broker{
		device:     device,
		socketPath: socketPath,
		log:        log.Default(),
		sessions:   make(map[*session]struct{}),
	}
}

// Serve listens on the broker's socket path and accepts connections until
// ctx is cancelled or a fatal accept error occurs. It removes any
// pre-existing socket file at the same path before binding, matching the
// usual broker-restart convention for Unix-domain sockets.
func (b *Broker) Serve(ctx context.Context) error {
	_ = os.Remove(b.socketPath)
	l, err := net.Listen("unix", b.socketPath)
	if err != nil {
		return qmi.NewIOError("listen on proxy socket", err)
	}
	b.mu.Lock()
	b.listener = l
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return qmi.NewIOError("accept proxy connection", err)
		}
		s := newSession(b, conn)
		b.mu.Lock()
		b.sessions[s] = struct{}{}
		b.mu.Unlock()
		go s.run(ctx)
	}
}

// Close stops accepting new connections and closes every active session.
func (b *Broker) Close() error {
	b.mu.Lock()
	l := b.listener
	sessions := make([]*session, 0, len(b.sessions))
	for s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.mu.Unlock()

	var err error
	if l != nil {
		err = l.Close()
	}
	for _, s := range sessions {
		s.conn.Close()
	}
	return err
}

func (b *Broker) removeSession(s *session) {
	b.mu.Lock()
	delete(b.sessions, s)
	b.mu.Unlock()
}
