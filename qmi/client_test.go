package qmi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCheckVersionUsesProbedCache opens a Device with WithVersionProbe,
// answering the version probe (which Open issues before the sync
// handshake) and the sync request in order, then confirms CheckVersion
// consults the cached table instead of issuing a second get_version_info.
func TestCheckVersionUsesProbedCache(t *testing.T) {
	ft := newFakeTransport()

	type result struct {
		dev *Device
		err error
	}
	done := make(chan result, 1)
	go func() {
		d, err := Open(context.Background(), ft, WithVersionProbe())
		done <- result{d, err}
	}()

	probeReq := mustParse(t, <-ft.written)
	require.EqualValues(t, ctlMsgGetVersionInfo, probeReq.MessageID())
	probeResp, err := ResponseFor(probeReq, 0)
	require.NoError(t, err)
	vs := probeResp.BeginTLV(ctlTLVVersionList)
	vs.WriteU8(1)
	vs.WriteU8(3)
	vs.WriteU16(2, LittleEndian)
	vs.WriteU16(1, LittleEndian)
	require.NoError(t, vs.Commit())
	ft.toRead <- probeResp.Bytes()

	syncReq := mustParse(t, <-ft.written)
	require.EqualValues(t, ctlMsgSync, syncReq.MessageID())
	syncResp, err := ResponseFor(syncReq, 0)
	require.NoError(t, err)
	ft.toRead <- syncResp.Bytes()

	r := <-done
	require.NoError(t, r.err)
	dev := r.dev
	defer closeAndAutoAck(t, dev, ft)

	go respondAllocateCID(t, ft, 3, 5)
	client, err := dev.Client(context.Background(), 3)
	require.NoError(t, err)

	ok, err := client.CheckVersion(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	select {
	case b := <-ft.written:
		t.Fatalf("CheckVersion issued an unexpected wire request: %x", b)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestCheckVersionFetchesWhenNotProbed(t *testing.T) {
	dev, ft := openLoopback(t)
	defer closeAndAutoAck(t, dev, ft)

	go func() {
		req := mustParse(t, <-ft.written)
		require.EqualValues(t, ctlMsgAllocateCID, req.MessageID())
		resp, err := ResponseFor(req, 0)
		require.NoError(t, err)
		s := resp.BeginTLV(ctlTLVAllocationInfo)
		s.WriteU8(3)
		s.WriteU8(7)
		require.NoError(t, s.Commit())
		ft.toRead <- resp.Bytes()
	}()

	client, err := dev.Client(context.Background(), 3)
	require.NoError(t, err)
	_ = client

	done := make(chan struct{})
	var ok bool
	var verr error
	go func() {
		ok, verr = func() (bool, error) {
			c, err := dev.Client(context.Background(), 3)
			if err != nil {
				return false, err
			}
			return c.CheckVersion(context.Background(), 1, 0)
		}()
		close(done)
	}()

	// respond to the second allocate_cid (from dev.Client inside the goroutine above)
	req := mustParse(t, <-ft.written)
	require.EqualValues(t, ctlMsgAllocateCID, req.MessageID())
	resp, err := ResponseFor(req, 0)
	require.NoError(t, err)
	s := resp.BeginTLV(ctlTLVAllocationInfo)
	s.WriteU8(3)
	s.WriteU8(8)
	require.NoError(t, s.Commit())
	ft.toRead <- resp.Bytes()

	// respond to the get_version_info request CheckVersion issues
	req = mustParse(t, <-ft.written)
	require.EqualValues(t, ctlMsgGetVersionInfo, req.MessageID())
	resp, err = ResponseFor(req, 0)
	require.NoError(t, err)
	vs := resp.BeginTLV(ctlTLVVersionList)
	vs.WriteU8(1)
	vs.WriteU8(3)
	vs.WriteU16(1, LittleEndian)
	vs.WriteU16(2, LittleEndian)
	require.NoError(t, vs.Commit())
	ft.toRead <- resp.Bytes()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("CheckVersion did not complete")
	}
	require.NoError(t, verr)
	assert.True(t, ok)
}

func TestSubscribeUnsubscribeIndication(t *testing.T) {
	dev, ft := openLoopback(t)
	defer closeAndAutoAck(t, dev, ft)

	go respondAllocateCID(t, ft, 3, 9)
	client, err := dev.Client(context.Background(), 3)
	require.NoError(t, err)

	ch := client.SubscribeIndication(0x4242, 2)
	ind, err := NewRequest(3, client.CID(), 0, serviceFlagIndication, 0, 0x4242)
	require.NoError(t, err)
	ft.toRead <- ind.Bytes()

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected indication before unsubscribe")
	}

	client.UnsubscribeIndication(0x4242)

	ft.toRead <- ind.Bytes()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("unexpected indication delivered after unsubscribe")
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReleaseIssuesReleaseCID(t *testing.T) {
	dev, ft := openLoopback(t)
	defer dev.Close()
	defer ft.Close()

	go respondAllocateCID(t, ft, 3, 4)
	client, err := dev.Client(context.Background(), 3)
	require.NoError(t, err)

	go func() {
		req := mustParse(t, <-ft.written)
		require.EqualValues(t, ctlMsgReleaseCID, req.MessageID())
		resp, err := ResponseFor(req, 0)
		require.NoError(t, err)
		ft.toRead <- resp.Bytes()
	}()

	require.NoError(t, client.Release(context.Background()))
}

// TestCloseReleasesLiveClients checks that closing a Device with a client
// the caller never explicitly Released still issues CTL release_cid for it,
// and that a client allocated with NoReleaseCid is left alone.
func TestCloseReleasesLiveClients(t *testing.T) {
	dev, ft := openLoopback(t)

	go respondAllocateCID(t, ft, 3, 4)
	_, err := dev.Client(context.Background(), 3)
	require.NoError(t, err)

	noRelease, err := dev.AllocateClient(context.Background(), 5, 9, NoReleaseCid)
	require.NoError(t, err)
	assert.EqualValues(t, 9, noRelease.CID())

	releaseDone := make(chan struct{})
	go func() {
		defer close(releaseDone)
		req := mustParse(t, <-ft.written)
		require.EqualValues(t, ctlMsgReleaseCID, req.MessageID())
		r, err := req.TLVReader(ctlTLVAllocationInfo)
		require.NoError(t, err)
		svc, err := r.ReadU8()
		require.NoError(t, err)
		cid, err := r.ReadU8()
		require.NoError(t, err)
		assert.EqualValues(t, 3, svc)
		assert.EqualValues(t, 4, cid)
		resp, err := ResponseFor(req, 0)
		require.NoError(t, err)
		ft.toRead <- resp.Bytes()
	}()

	require.NoError(t, dev.Close())

	select {
	case <-releaseDone:
	case <-time.After(time.Second):
		t.Fatal("Close did not release the outstanding client")
	}

	select {
	case b := <-ft.written:
		t.Fatalf("Close must not release a NoReleaseCid client: %x", b)
	case <-time.After(20 * time.Millisecond):
	}

	ft.Close()
}

func TestAllocateClientWithHintSkipsModemContact(t *testing.T) {
	dev, ft := openLoopback(t)
	defer dev.Close()
	defer ft.Close()

	client, err := dev.AllocateClient(context.Background(), 3, 6, NoReleaseCid)
	require.NoError(t, err)
	assert.EqualValues(t, 6, client.CID())

	select {
	case b := <-ft.written:
		t.Fatalf("unexpected modem contact for hinted cid: %x", b)
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, client.Release(context.Background()))
}
