package proxy

import (
	"context"
	"net"

	"github.com/linux-mobile-broadband/libqmi-sub000/qmi"
)

// ClientTransport is the process-side qmi.Transport for talking to a
// Broker over its Unix-domain socket. The wire framing is identical to the
// direct character-device path; only the underlying connection differs.
type ClientTransport struct {
	conn    net.Conn
	acc     []byte
	buf     []byte
	pending []*qmi.Message
}

// Dial connects to a broker listening on socketPath.
func Dial(socketPath string) (*ClientTransport, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, qmi.NewIOError("dial proxy socket", err)
	}
	return &ClientTransport{conn: conn, buf: make([]byte, 16*1024)}, nil
}

func (t *ClientTransport) InterfaceName() string      { return "" }
func (t *ClientTransport) DataFormat() qmi.DataFormat { return qmi.DataFormatUnknown }

// ReadFrame accumulates bytes from the socket until at least one complete
// frame can be parsed, matching the same framing qmi.FromRaw expects from a
// direct character-device read.
func (t *ClientTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	for {
		if len(t.pending) > 0 {
			m := t.pending[0]
			t.pending = t.pending[1:]
			return m.Bytes(), nil
		}

		var msgs []*qmi.Message
		msgs, t.acc = qmi.ParseFrames(t.acc)
		if len(msgs) > 0 {
			t.pending = msgs
			continue
		}

		select {
		case <-ctx.Done():
			return nil, qmi.NewCancelledOrTimeoutError(ctx.Err())
		default:
		}

		n, err := t.conn.Read(t.buf)
		if err != nil {
			return nil, qmi.NewDisconnectedError("proxy connection closed")
		}
		t.acc = append(t.acc, t.buf[:n]...)
	}
}

// WriteFrame writes frame in one Write call; the broker relays it onward
// without reframing.
func (t *ClientTransport) WriteFrame(ctx context.Context, frame []byte) error {
	select {
	case <-ctx.Done():
		return qmi.NewCancelledOrTimeoutError(ctx.Err())
	default:
	}
	if _, err := t.conn.Write(frame); err != nil {
		return qmi.NewIOError("write to proxy socket", err)
	}
	return nil
}

func (t *ClientTransport) Close() error {
	return t.conn.Close()
}
