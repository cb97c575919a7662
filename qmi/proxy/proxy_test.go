package proxy

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linux-mobile-broadband/libqmi-sub000/qmi"
)

// fakeModemTransport is an in-memory qmi.Transport standing in for the real
// character device underneath the Broker: WriteFrame deposits a frame for a
// test-driven "modem" goroutine, ReadFrame delivers whatever that goroutine
// pushes back.
type fakeModemTransport struct {
	written chan []byte
	toRead  chan []byte
	closed  chan struct{}
}

func newFakeModemTransport() *fakeModemTransport {
	return &fakeModemTransport{
		written: make(chan []byte, 16),
		toRead:  make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (f *fakeModemTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case b := <-f.toRead:
		return b, nil
	case <-f.closed:
		return nil, qmi.NewDisconnectedError("fake modem closed")
	case <-ctx.Done():
		return nil, qmi.NewCancelledOrTimeoutError(ctx.Err())
	}
}

func (f *fakeModemTransport) WriteFrame(ctx context.Context, frame []byte) error {
	select {
	case f.written <- append([]byte(nil), frame...):
		return nil
	case <-ctx.Done():
		return qmi.NewCancelledOrTimeoutError(ctx.Err())
	}
}

func (f *fakeModemTransport) Close() error {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
	return nil
}

func (f *fakeModemTransport) InterfaceName() string      { return "fake0" }
func (f *fakeModemTransport) DataFormat() qmi.DataFormat { return qmi.DataFormatUnknown }

func mustParse(t *testing.T, raw []byte) *qmi.Message {
	t.Helper()
	m, err := qmi.FromRaw(raw)
	require.NoError(t, err)
	return m
}

// newTestBroker opens a Device over a fakeModemTransport (skipping the CTL
// sync handshake so the test doesn't need to answer it) and starts a Broker
// serving on a socket under a temporary directory.
func newTestBroker(t *testing.T) (*Broker, *fakeModemTransport, string) {
	t.Helper()
	ft := newFakeModemTransport()
	dev, err := qmi.Open(context.Background(), ft, qmi.WithSkipSync())
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })

	dir := t.TempDir()
	sockPath := filepath.Join(dir, "qmi-proxy.sock")
	b := NewBroker(dev, sockPath)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go b.Serve(ctx)

	require.Eventually(t, func() bool {
		c, err := net.Dial("unix", sockPath)
		if err != nil {
			return false
		}
		c.Close()
		return true
	}, time.Second, 5*time.Millisecond)

	return b, ft, sockPath
}

// TestProxyRelaysRequestAndRewritesTransactionID checks that a request sent
// by a connected process reaches the shared device with a transaction id
// the broker assigned, and that the matching response is relayed back with
// the transaction id the process originally chose.
func TestProxyRelaysRequestAndRewritesTransactionID(t *testing.T) {
	_, ft, sockPath := newTestBroker(t)

	client, err := Dial(sockPath)
	require.NoError(t, err)
	defer client.Close()

	req, err := qmi.NewRequest(3, 1, 0, 0, 0x07, 0x0099)
	require.NoError(t, err)
	require.NoError(t, client.WriteFrame(context.Background(), req.Bytes()))

	onDevice := mustParse(t, <-ft.written)
	assert.EqualValues(t, 3, onDevice.Service())
	assert.EqualValues(t, 0x0099, onDevice.MessageID())
	// The broker must not forward the process's own transaction id
	// unchanged, since a second connected process could pick the same one.
	assert.NotEqual(t, uint16(0x07), onDevice.TransactionID())

	resp, err := qmi.ResponseFor(onDevice, 0)
	require.NoError(t, err)
	ft.toRead <- resp.Bytes()

	raw, err := client.ReadFrame(context.Background())
	require.NoError(t, err)
	back := mustParse(t, raw)
	assert.EqualValues(t, 0x07, back.TransactionID())
	ok, code, err := back.ParseResult()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 0, code)
}

// TestProxyReleasesCIDsOnDisconnect checks that when a connected process
// allocates a CID and then disconnects, the broker issues release_cid to
// the shared device on its behalf.
func TestProxyReleasesCIDsOnDisconnect(t *testing.T) {
	_, ft, sockPath := newTestBroker(t)

	client, err := Dial(sockPath)
	require.NoError(t, err)

	allocReq, err := qmi.NewRequest(qmi.CTLService, 0, 0, 0, 0x01, ctlMsgAllocateCID)
	require.NoError(t, err)
	require.NoError(t, allocReq.WriteU8(ctlTLVAllocationInfo, 3))
	require.NoError(t, client.WriteFrame(context.Background(), allocReq.Bytes()))

	onDevice := mustParse(t, <-ft.written)
	resp, err := qmi.ResponseFor(onDevice, 0)
	require.NoError(t, err)
	s := resp.BeginTLV(ctlTLVAllocationInfo)
	s.WriteU8(3)
	s.WriteU8(9)
	require.NoError(t, s.Commit())
	ft.toRead <- resp.Bytes()

	_, err = client.ReadFrame(context.Background())
	require.NoError(t, err)

	require.NoError(t, client.Close())

	releaseReq := mustParse(t, <-ft.written)
	assert.EqualValues(t, qmi.CTLService, releaseReq.Service())
	r, err := releaseReq.TLVReader(ctlTLVAllocationInfo)
	require.NoError(t, err)
	svc, err := r.ReadU8()
	require.NoError(t, err)
	cid, err := r.ReadU8()
	require.NoError(t, err)
	assert.EqualValues(t, 3, svc)
	assert.EqualValues(t, 9, cid)

	releaseResp, err := qmi.ResponseFor(releaseReq, 0)
	require.NoError(t, err)
	ft.toRead <- releaseResp.Bytes()
}
