package qmi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-memory Transport: WriteFrame deposits a frame for a
// test-driven "modem" goroutine to inspect, and ReadFrame delivers whatever
// that goroutine pushes back (responses or indications). It exists purely
// to drive Device's dispatch logic without a real character device.
type fakeTransport struct {
	written chan []byte
	toRead  chan []byte
	closed  chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		written: make(chan []byte, 16),
		toRead:  make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (f *fakeTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case b := <-f.toRead:
		return b, nil
	case <-f.closed:
		return nil, NewDisconnectedError("fake transport closed")
	case <-ctx.Done():
		return nil, NewCancelledOrTimeoutError(ctx.Err())
	}
}

func (f *fakeTransport) WriteFrame(ctx context.Context, frame []byte) error {
	select {
	case f.written <- append([]byte(nil), frame...):
		return nil
	case <-ctx.Done():
		return NewCancelledOrTimeoutError(ctx.Err())
	}
}

func (f *fakeTransport) Close() error {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
	return nil
}

func (f *fakeTransport) InterfaceName() string  { return "fake0" }
func (f *fakeTransport) DataFormat() DataFormat { return DataFormatUnknown }

// respondOK drains exactly one written request and pushes back a successful
// response for it, with no additional TLVs beyond the mandatory result.
func respondOK(t *testing.T, f *fakeTransport) *Message {
	t.Helper()
	req := mustParse(t, <-f.written)
	resp, err := ResponseFor(req, 0)
	require.NoError(t, err)
	f.toRead <- resp.Bytes()
	return req
}

func mustParse(t *testing.T, raw []byte) *Message {
	t.Helper()
	m, err := FromRaw(raw)
	require.NoError(t, err)
	return m
}

// openLoopback opens a Device against a fakeTransport, answering the CTL
// sync handshake inline so the caller does not need to special-case it.
func openLoopback(t *testing.T, opts ...OpenOption) (*Device, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()

	type result struct {
		dev *Device
		err error
	}
	done := make(chan result, 1)
	go func() {
		d, err := Open(context.Background(), ft, opts...)
		done <- result{d, err}
	}()

	req := mustParse(t, <-ft.written)
	require.EqualValues(t, ctlMsgSync, req.MessageID())
	resp, err := ResponseFor(req, 0)
	require.NoError(t, err)
	ft.toRead <- resp.Bytes()

	r := <-done
	require.NoError(t, r.err)
	return r.dev, ft
}

func TestOpenRunsSyncHandshake(t *testing.T) {
	dev, ft := openLoopback(t)
	defer dev.Close()
	defer ft.Close()
}

func TestOpenSkipSyncDoesNotWriteAnything(t *testing.T) {
	ft := newFakeTransport()
	dev, err := Open(context.Background(), ft, WithSkipSync())
	require.NoError(t, err)
	defer dev.Close()

	select {
	case b := <-ft.written:
		t.Fatalf("unexpected write with sync skipped: %x", b)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestAllocateClientAndSendRequest(t *testing.T) {
	dev, ft := openLoopback(t)
	defer closeAndAutoAck(t, dev, ft)

	go func() {
		req := respondAllocateCID(t, ft, 3, 5)
		_ = req
	}()

	client, err := dev.Client(context.Background(), 3)
	require.NoError(t, err)
	assert.EqualValues(t, 3, client.Service())
	assert.EqualValues(t, 5, client.CID())

	go respondOK(t, ft)

	req, err := client.NewRequest(0, 0, 0x1234)
	require.NoError(t, err)
	resp, err := client.SendRequest(context.Background(), req)
	require.NoError(t, err)
	ok, code, err := resp.ParseResult()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 0, code)
}

func TestSendRequestSurfacesProtocolError(t *testing.T) {
	dev, ft := openLoopback(t)
	defer dev.Close()
	defer ft.Close()

	go func() {
		req := mustParse(t, <-ft.written)
		resp, err := ResponseFor(req, 42)
		require.NoError(t, err)
		ft.toRead <- resp.Bytes()
	}()

	ctl, err := dev.Client(context.Background(), CTLService)
	require.NoError(t, err)
	req, err := ctl.NewRequest(0, 0, 0x0099)
	require.NoError(t, err)

	_, err = ctl.SendRequest(context.Background(), req)
	require.Error(t, err)
	var perr *ProtocolError
	require.True(t, errors.As(err, &perr))
	assert.EqualValues(t, 42, perr.Code)
}

func TestSendRequestTimeout(t *testing.T) {
	dev, ft := openLoopback(t)
	defer dev.Close()
	defer ft.Close()

	ctl, err := dev.Client(context.Background(), CTLService)
	require.NoError(t, err)
	req, err := ctl.NewRequest(0, 0, 0x0099)
	require.NoError(t, err)

	_, err = dev.SendRequestTimeout(req, 20*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, ErrTimeout, kindOf(t, err))

	// Drain the write so the fake transport's buffered channel does not
	// leak across tests.
	<-ft.written
}

func TestIndicationDispatchRespectsCID(t *testing.T) {
	dev, ft := openLoopback(t)
	defer closeAndAutoAck(t, dev, ft)

	go respondAllocateCID(t, ft, 3, 1)
	clientA, err := dev.Client(context.Background(), 3)
	require.NoError(t, err)

	go respondAllocateCID(t, ft, 3, 2)
	clientB, err := dev.Client(context.Background(), 3)
	require.NoError(t, err)

	chA := clientA.SubscribeIndication(0x5501, 4)
	chB := clientB.SubscribeIndication(0x5501, 4)

	ind, err := NewRequest(3, clientA.CID(), 0, serviceFlagIndication, 0, 0x5501)
	require.NoError(t, err)
	ft.toRead <- ind.Bytes()

	select {
	case m := <-chA:
		assert.EqualValues(t, clientA.CID(), m.ClientID())
	case <-time.After(time.Second):
		t.Fatal("clientA did not receive its indication")
	}

	select {
	case <-chB:
		t.Fatal("clientB must not receive clientA's indication")
	case <-time.After(50 * time.Millisecond):
	}
}

// closeAndAutoAck closes dev while a background goroutine keeps answering
// any further request on ft with a generic success response. It exists for
// tests that allocate a client and never explicitly Release it: Close now
// issues release_cid for such clients itself, and without something
// answering that request it would block for its full per-client timeout.
func closeAndAutoAck(t *testing.T, dev *Device, ft *fakeTransport) {
	t.Helper()
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case b := <-ft.written:
				req, err := FromRaw(b)
				if err != nil {
					return
				}
				resp, err := ResponseFor(req, 0)
				if err != nil {
					return
				}
				select {
				case ft.toRead <- resp.Bytes():
				case <-stop:
					return
				}
			case <-stop:
				return
			}
		}
	}()
	dev.Close()
	close(stop)
	ft.Close()
}

// respondAllocateCID drains one allocate_cid request and answers it with
// the given (service, cid) allocation.
func respondAllocateCID(t *testing.T, f *fakeTransport, service, cid uint8) *Message {
	t.Helper()
	req := mustParse(t, <-f.written)
	require.EqualValues(t, ctlMsgAllocateCID, req.MessageID())
	resp, err := ResponseFor(req, 0)
	require.NoError(t, err)
	s := resp.BeginTLV(ctlTLVAllocationInfo)
	s.WriteU8(service)
	s.WriteU8(cid)
	require.NoError(t, s.Commit())
	f.toRead <- resp.Bytes()
	return req
}
