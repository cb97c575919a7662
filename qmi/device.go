package qmi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// pendingKey identifies one in-flight request uniquely across the whole
// device: the dispatch table is keyed by (service, client id, transaction
// id) rather than transaction id alone, since CTL and every other service
// each run their own per-(service,cid) transaction id sequence.
type pendingKey struct {
	service uint8
	cid     uint8
	txn     uint16
}

// clientKey identifies one (service, cid) session's transaction-id
// allocator state. A service can have more than one CID allocated at once
// (two independent client sessions against the same service), each with
// its own monotonic transaction sequence, so the allocator cannot be keyed
// by service alone.
type clientKey struct {
	service uint8
	cid     uint8
}

// closeClientTimeout bounds how long Close waits for each live client's
// release_cid to complete before moving on; a modem that never answers must
// not hang process shutdown indefinitely.
const closeClientTimeout = 2 * time.Second

// OpenOption configures Open.
type OpenOption func(*openOptions)

type openOptions struct {
	skipSync          bool
	versionProbe      bool
	expectIndications bool
	logger            *log.Logger
}

// WithSkipSync disables the CTL sync handshake normally performed during
// Open. Intended for talking to a proxy broker, which has already performed
// that handshake against the real modem. It does not affect the version
// probe requested by WithVersionProbe.
func WithSkipSync() OpenOption {
	return func(o *openOptions) { o.skipSync = true }
}

// WithExpectIndications records that the caller intends to subscribe to
// unsolicited indications. The reader loop runs for the device's whole
// lifetime whether or not this is set; the flag is only reported back
// through Device.ExpectIndications.
func WithExpectIndications() OpenOption {
	return func(o *openOptions) { o.expectIndications = true }
}

// WithLogger overrides the default logger used for reader-loop diagnostics.
func WithLogger(l *log.Logger) OpenOption {
	return func(o *openOptions) { o.logger = l }
}

// Device is a single open connection to a modem's QMI endpoint, shared by
// every Client session allocated against it. It owns the read-dispatch loop:
// exactly one goroutine ever reads the transport, and responses are routed
// to the caller blocked in SendRequest via a per-request channel, while
// messages carrying the indication flag fan out to subscribers.
type Device struct {
	transport Transport
	log       *log.Logger

	expectIndications bool

	mu          sync.Mutex
	pending     map[pendingKey]chan *Message
	clients     map[clientKey]*clientState // CTL's (0,0) entry is always present
	liveClients map[clientKey]*Client      // clients Close must tear down; excludes the implicit CTL client
	subs        map[uint8][]indicationSub
	versions    []serviceVersion

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

type indicationSub struct {
	cid       uint8
	messageID uint16
	wildcard  bool // matches any message id for (service, cid); used by the proxy
	ch        chan *Message
}

type clientState struct {
	cid     uint8
	nextTxn uint16 // monotonic per (service, cid), skips 0
}

// Open performs the sequence: take ownership of the transport, start the
// reader goroutine, run the CTL version probe if WithVersionProbe was given,
// then, unless WithSkipSync was given, allocate the implicit CTL client
// (cid 0, never released) and run the CTL sync handshake.
func Open(ctx context.Context, t Transport, opts ...OpenOption) (*Device, error) {
	o := &openOptions{logger: log.Default()}
	for _, fn := range opts {
		fn(o)
	}

	dctx, cancel := context.WithCancel(context.Background())
	d := &Device{
		transport:         t,
		log:               o.logger,
		expectIndications: o.expectIndications,
		pending:           make(map[pendingKey]chan *Message),
		clients:           make(map[clientKey]*clientState),
		liveClients:       make(map[clientKey]*Client),
		subs:              make(map[uint8][]indicationSub),
		ctx:               dctx,
		cancel:            cancel,
	}
	d.clients[clientKey{CTLService, 0}] = &clientState{cid: 0, nextTxn: 1}

	go d.readLoop()

	if o.versionProbe {
		if err := d.probeVersions(ctx); err != nil {
			d.Close()
			return nil, err
		}
	}

	if !o.skipSync {
		ctl, err := d.Client(ctx, CTLService)
		if err != nil {
			d.Close()
			return nil, err
		}
		if err := ctl.sync(ctx); err != nil {
			d.Close()
			return nil, err
		}
	}
	return d, nil
}

// readLoop is the device's single reader. It never touches application
// state directly: every decoded message is either handed to the channel a
// blocked SendRequest call is waiting on, or fanned out to indication
// subscribers. A response nobody is waiting for is logged and dropped; an
// indication with no matching subscriber is dropped without logging.
func (d *Device) readLoop() {
	for {
		frame, err := d.transport.ReadFrame(d.ctx)
		if err != nil {
			d.failPending(err)
			return
		}
		msg, err := FromRaw(frame)
		if err != nil {
			d.log.Warn("discarding malformed frame", "err", err)
			continue
		}
		if msg.IsIndication() {
			d.dispatchIndication(msg)
			continue
		}
		key := pendingKey{service: msg.Service(), cid: msg.ClientID(), txn: msg.TransactionID()}
		d.mu.Lock()
		ch, ok := d.pending[key]
		if ok {
			delete(d.pending, key)
		}
		d.mu.Unlock()
		if !ok {
			d.log.Warn("response with no waiting caller", "service", msg.Service(), "cid", msg.ClientID(), "txn", msg.TransactionID())
			continue
		}
		ch <- msg
	}
}

func (d *Device) dispatchIndication(msg *Message) {
	d.mu.Lock()
	subs := append([]indicationSub(nil), d.subs[msg.Service()]...)
	d.mu.Unlock()
	msgID := msg.MessageID()
	cid := msg.ClientID()
	for _, s := range subs {
		if s.cid != cid {
			continue
		}
		if !s.wildcard && s.messageID != msgID {
			continue
		}
		select {
		case s.ch <- msg:
		default:
			d.log.Warn("dropping indication, subscriber channel full", "service", msg.Service(), "message_id", msgID)
		}
	}
}

func (d *Device) failPending(cause error) {
	d.mu.Lock()
	pending := d.pending
	d.pending = make(map[pendingKey]chan *Message)
	d.mu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
	_ = cause
}

// AllocateTransactionID exposes the per-(service,cid) transaction allocator
// to collaborators outside this package that construct and send their own
// raw messages, such as the proxy broker relaying a message on behalf of a
// connected process.
func (d *Device) AllocateTransactionID(service, cid uint8) uint16 {
	return d.allocateTxn(service, cid)
}

// allocateTxn returns the next transaction id for (service, cid), skipping
// zero, which is reserved and never assigned to a real request.
func (d *Device) allocateTxn(service, cid uint8) uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	cs := d.clientForLocked(service, cid)
	txn := cs.nextTxn
	cs.nextTxn++
	if cs.nextTxn == 0 {
		cs.nextTxn = 1
	}
	maxTxn := uint16(0xFFFF)
	if service == CTLService {
		maxTxn = 0xFF
	}
	if txn > maxTxn {
		txn = 1
		cs.nextTxn = 2
	}
	return txn
}

func (d *Device) clientForLocked(service, cid uint8) *clientState {
	key := clientKey{service, cid}
	cs, ok := d.clients[key]
	if !ok {
		cs = &clientState{cid: cid, nextTxn: 1}
		d.clients[key] = cs
	}
	return cs
}

// ctlClient returns the implicit CTL (service 0, cid 0) client state. It
// exists because ctl.go's allocateCID/releaseCID/getVersionInfo read
// d.clients from outside the goroutines that otherwise only touch it under
// d.mu (allocateTxn, clientForLocked); reading the map without this helper
// races with those writers.
func (d *Device) ctlClient() *clientState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clients[clientKey{CTLService, 0}]
}

// registerClient records c as one Close must tear down. AllocateClient calls
// this for every session except the implicit CTL client.
func (d *Device) registerClient(c *Client) {
	d.mu.Lock()
	d.liveClients[clientKey{c.service, c.cid}] = c
	d.mu.Unlock()
}

// unregisterClient removes c from the set Close tears down. Client.Release
// calls this so a client the caller already released isn't released again
// by Close.
func (d *Device) unregisterClient(c *Client) {
	d.mu.Lock()
	delete(d.liveClients, clientKey{c.service, c.cid})
	d.mu.Unlock()
}

// liveClientsSnapshot returns the currently registered clients for Close to
// tear down, taken under d.mu so it reflects a consistent point in time.
func (d *Device) liveClientsSnapshot() []*Client {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Client, 0, len(d.liveClients))
	for _, c := range d.liveClients {
		out = append(out, c)
	}
	return out
}

// SendRequest serializes req, registers a pending slot keyed by
// (service,cid,transaction id), writes the frame, and blocks until a
// matching response arrives, ctx is done, or the device disconnects.
func (d *Device) SendRequest(ctx context.Context, req *Message) (*Message, error) {
	key := pendingKey{service: req.Service(), cid: req.ClientID(), txn: req.TransactionID()}
	ch := make(chan *Message, 1)

	d.mu.Lock()
	if _, exists := d.pending[key]; exists {
		d.mu.Unlock()
		return nil, newErr(ErrInvalidArgument, fmt.Sprintf("transaction %d already in flight for service %d cid %d", key.txn, key.service, key.cid), nil)
	}
	d.pending[key] = ch
	d.mu.Unlock()

	if err := d.transport.WriteFrame(ctx, req.Bytes()); err != nil {
		d.mu.Lock()
		delete(d.pending, key)
		d.mu.Unlock()
		return nil, newErr(ErrIO, "write request", err)
	}

	select {
	case msg, ok := <-ch:
		if !ok {
			return nil, newErr(ErrDisconnected, "transport closed while waiting for response", nil)
		}
		return msg, nil
	case <-ctx.Done():
		d.mu.Lock()
		delete(d.pending, key)
		d.mu.Unlock()
		if ctx.Err() == context.DeadlineExceeded {
			return nil, newErr(ErrTimeout, "request timed out", ctx.Err())
		}
		return nil, newErr(ErrCancelled, "request cancelled", ctx.Err())
	}
}

// SendRequestTimeout is a convenience wrapper around SendRequest using a
// fixed deadline relative to now.
func (d *Device) SendRequestTimeout(req *Message, timeout time.Duration) (*Message, error) {
	ctx, cancel := context.WithTimeout(d.ctx, timeout)
	defer cancel()
	return d.SendRequest(ctx, req)
}

// subscribe registers ch to receive indications for (service, cid, messageID).
func (d *Device) subscribe(service, cid uint8, messageID uint16, ch chan *Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs[service] = append(d.subs[service], indicationSub{cid: cid, messageID: messageID, ch: ch})
}

// SubscribeAllIndications registers ch to receive every indication for
// (service, cid), regardless of message id. It exists for the proxy broker,
// which relays indications to whichever connected process owns the CID
// without ever inspecting message ids itself.
func (d *Device) SubscribeAllIndications(service, cid uint8, ch chan *Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs[service] = append(d.subs[service], indicationSub{cid: cid, wildcard: true, ch: ch})
}

// UnsubscribeAllIndications undoes SubscribeAllIndications / any other
// subscription registered against ch for service.
func (d *Device) UnsubscribeAllIndications(service uint8, ch chan *Message) {
	d.unsubscribe(service, ch)
}

func (d *Device) unsubscribe(service uint8, ch chan *Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subs := d.subs[service]
	for i, s := range subs {
		if s.ch == ch {
			d.subs[service] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// ExpectIndications reports whether this device was opened with
// WithExpectIndications, for collaborators (the CLI, the proxy broker) that
// need to decide whether to keep a process alive solely to receive
// indications.
func (d *Device) ExpectIndications() bool { return d.expectIndications }

// Close tears down every client handle this Device allocated (issuing CTL
// release_cid for each one still configured with ReleaseCid), cancels the
// reader loop, and closes the transport. It is safe to call more than once;
// only the first call's error is returned thereafter.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		for _, c := range d.liveClientsSnapshot() {
			ctx, cancel := context.WithTimeout(context.Background(), closeClientTimeout)
			if err := c.Release(ctx); err != nil {
				d.log.Warn("release client on close", "service", c.Service(), "cid", c.CID(), "err", err)
			}
			cancel()
		}

		d.cancel()
		d.closeErr = d.transport.Close()
	})
	return d.closeErr
}
