package qmi

import (
	"context"
	"sync"
)

// ReleaseFlag controls what happens to a client's CID when it is closed.
type ReleaseFlag int

const (
	// ReleaseCid issues CTL release_cid on Close, the default.
	ReleaseCid ReleaseFlag = iota
	// NoReleaseCid leaves the CID allocated in the modem after Close; the
	// caller is expected to reuse it later via a CID hint.
	NoReleaseCid
)

// Client is a session against one service on a Device, identified by the
// (service, client id) pair the modem uses to route requests and
// indications back to this session.
type Client struct {
	device  *Device
	service uint8
	cid     uint8
	release ReleaseFlag

	mu   sync.Mutex
	subs map[uint16]chan *Message // keyed by message id
	done chan struct{}
}

// Client allocates a new session for service with no CID hint, equivalent
// to AllocateClient(ctx, service, 0, ReleaseCid).
func (d *Device) Client(ctx context.Context, service uint8) (*Client, error) {
	return d.AllocateClient(ctx, service, 0, ReleaseCid)
}

// AllocateClient obtains a session for service. If cidHint is zero, the
// runtime issues CTL allocate_cid; otherwise it adopts the hinted CID
// directly without contacting the modem, matching the resumed-session use
// case where a previous process already owns that CID.
//
// If ctx is cancelled or times out while allocate_cid is in flight, the
// modem's response (if it still arrives) is logged and dropped as a
// response with no waiting caller; no release_cid is sent for it. A CID
// allocated this way stays allocated on the modem: it is never registered
// as a client, so Close does not release it either.
func (d *Device) AllocateClient(ctx context.Context, service uint8, cidHint uint8, release ReleaseFlag) (*Client, error) {
	if service == CTLService {
		return &Client{device: d, service: CTLService, cid: 0, release: NoReleaseCid, subs: make(map[uint16]chan *Message)}, nil
	}

	var cid uint8
	if cidHint != 0 {
		cid = cidHint
	} else {
		allocated, err := d.allocateCID(ctx, service)
		if err != nil {
			return nil, err
		}
		cid = allocated
	}

	d.mu.Lock()
	d.clients[clientKey{service, cid}] = &clientState{cid: cid, nextTxn: 1}
	d.mu.Unlock()

	c := &Client{
		device:  d,
		service: service,
		cid:     cid,
		release: release,
		subs:    make(map[uint16]chan *Message),
	}
	d.registerClient(c)
	return c, nil
}

// Service returns the service id this client was allocated against.
func (c *Client) Service() uint8 { return c.service }

// CID returns the client id allocated (or hinted) for this session.
func (c *Client) CID() uint8 { return c.cid }

// NewRequest allocates an empty request message addressed to this client's
// (service, cid), with a fresh transaction id assigned by the device.
func (c *Client) NewRequest(qmuxFlags, qmiFlags uint8, messageID uint16) (*Message, error) {
	txn := c.device.allocateTxn(c.service, c.cid)
	return NewRequest(c.service, c.cid, qmuxFlags, qmiFlags, txn, messageID)
}

// SendRequest builds on Device.SendRequest, additionally validating the
// response's mandatory result TLV and surfacing a failed result as
// *ProtocolError rather than leaving the caller to call ParseResult
// themselves.
func (c *Client) SendRequest(ctx context.Context, req *Message) (*Message, error) {
	resp, err := c.device.SendRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	ok, code, err := resp.ParseResult()
	if err != nil {
		return nil, err
	}
	if !ok {
		return resp, &ProtocolError{Code: code}
	}
	return resp, nil
}

// SubscribeIndication registers a channel that receives every indication
// addressed to this client's (service, cid) carrying the given message id.
// Indications for other client ids of the same service are not delivered
// to it. The channel is
// buffered by the caller's choice; a full channel causes the device to drop
// that indication rather than block the reader loop.
func (c *Client) SubscribeIndication(messageID uint16, buf int) <-chan *Message {
	ch := make(chan *Message, buf)
	c.mu.Lock()
	c.subs[messageID] = ch
	c.mu.Unlock()
	c.device.subscribe(c.service, c.cid, messageID, ch)
	return ch
}

// UnsubscribeIndication stops delivery to a channel previously returned by
// SubscribeIndication for messageID.
func (c *Client) UnsubscribeIndication(messageID uint16) {
	c.mu.Lock()
	ch, ok := c.subs[messageID]
	delete(c.subs, messageID)
	c.mu.Unlock()
	if ok {
		c.device.unsubscribe(c.service, ch)
	}
}

// Release closes the client session. When the client was allocated with
// ReleaseCid (the default), this also issues CTL release_cid so the modem
// frees the slot; with NoReleaseCid the CID is left allocated for later
// reuse via a CID hint.
func (c *Client) Release(ctx context.Context) error {
	c.mu.Lock()
	for id, ch := range c.subs {
		c.device.unsubscribe(c.service, ch)
		delete(c.subs, id)
	}
	c.mu.Unlock()

	c.device.unregisterClient(c)

	if c.service == CTLService || c.release == NoReleaseCid {
		return nil
	}
	return c.device.releaseCID(ctx, c.service, c.cid)
}

// CheckVersion reports whether the modem's advertised version for this
// client's service is at least major.minor.
func (c *Client) CheckVersion(ctx context.Context, major, minor uint16) (bool, error) {
	versions := c.device.Versions()
	if versions == nil {
		var err error
		versions, err = c.device.getVersionInfo(ctx)
		if err != nil {
			return false, err
		}
	}
	for _, v := range versions {
		if v.Service != c.service {
			continue
		}
		if v.Major != major {
			return v.Major > major, nil
		}
		return v.Minor >= minor, nil
	}
	return false, newErr(ErrTLVNotFound, "service not present in version info", nil)
}
