package proxy

import (
	"context"
	"net"
	"sync"

	"github.com/linux-mobile-broadband/libqmi-sub000/qmi"
)

type cidKey struct {
	service uint8
	cid     uint8
}

// session handles one connected process: it relays requests to the shared
// Device, rewriting transaction ids for disjointness, relays matching
// responses back, and fans out indications for every CID this process has
// been granted.
type session struct {
	broker *Broker
	conn   net.Conn

	writeMu sync.Mutex

	mu    sync.Mutex
	owned map[cidKey]chan *qmi.Message
}

func newSession(b *Broker, conn net.Conn) *session {
	return &session{
		broker: b,
		conn:   conn,
		owned:  make(map[cidKey]chan *qmi.Message),
	}
}

func (s *session) run(ctx context.Context) {
	defer s.cleanup()

	var acc []byte
	buf := make([]byte, 16*1024)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			acc = append(acc, buf[:n]...)
			var msgs []*qmi.Message
			msgs, acc = qmi.ParseFrames(acc)
			for _, m := range msgs {
				go s.relay(ctx, m)
			}
		}
		if err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// relay forwards one request from the process to the real device, rewrites
// the response's transaction id back to what the process sent, and tracks
// any newly learned CID ownership along the way.
func (s *session) relay(ctx context.Context, msg *qmi.Message) {
	origTxn := msg.TransactionID()
	service := msg.Service()
	cid := msg.ClientID()

	newTxn := s.broker.device.AllocateTransactionID(service, cid)
	if err := msg.SetTransactionID(newTxn); err != nil {
		s.broker.log.Warn("proxy: cannot rewrite transaction id", "err", err)
		return
	}

	resp, err := s.broker.device.SendRequest(ctx, msg)
	if err != nil {
		s.broker.log.Warn("proxy: request to device failed", "service", service, "cid", cid, "err", err)
		return
	}
	if err := resp.SetTransactionID(origTxn); err != nil {
		s.broker.log.Warn("proxy: cannot restore transaction id", "err", err)
		return
	}

	if service == qmi.CTLService && msg.MessageID() == ctlMsgAllocateCID {
		s.trackAllocation(resp)
	}

	s.writeResponse(resp)
}

func (s *session) trackAllocation(resp *qmi.Message) {
	ok, _, err := resp.ParseResult()
	if err != nil || !ok {
		return
	}
	v, err := resp.TLVFind(ctlTLVAllocationInfo)
	if err != nil || len(v) < 2 {
		return
	}
	key := cidKey{service: v[0], cid: v[1]}

	ch := make(chan *qmi.Message, 16)
	s.mu.Lock()
	s.owned[key] = ch
	s.mu.Unlock()

	s.broker.device.SubscribeAllIndications(key.service, key.cid, ch)
	go s.pumpIndications(ch)
}

func (s *session) pumpIndications(ch chan *qmi.Message) {
	for msg := range ch {
		s.writeResponse(msg)
	}
}

func (s *session) writeResponse(msg *qmi.Message) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.conn.Write(msg.Bytes()); err != nil {
		s.broker.log.Warn("proxy: write to process failed", "err", err)
	}
}

// cleanup closes the session's connection, tears down its indication
// subscriptions and releases every CID this session caused to be
// allocated, then removes the session from the broker.
func (s *session) cleanup() {
	s.conn.Close()

	s.mu.Lock()
	owned := s.owned
	s.owned = nil
	s.mu.Unlock()

	ctx := context.Background()
	for key, ch := range owned {
		s.broker.device.UnsubscribeAllIndications(key.service, ch)
		close(ch)
		if key.service != qmi.CTLService {
			if err := s.broker.device.ReleaseClientID(ctx, key.service, key.cid); err != nil {
				s.broker.log.Warn("proxy: release cid on disconnect failed", "service", key.service, "cid", key.cid, "err", err)
			}
		}
	}

	s.broker.removeSession(s)
}
