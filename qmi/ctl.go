package qmi

import "context"

// CTL message ids and TLV types the device runtime itself needs to speak,
// independent of any generated per-service message set: allocating and
// releasing client ids, the version-info probe, and the sync handshake.
const (
	ctlMsgGetVersionInfo uint16 = 0x0021
	ctlMsgAllocateCID    uint16 = 0x0022
	ctlMsgReleaseCID     uint16 = 0x0023
	ctlMsgSync           uint16 = 0x0027
)

const (
	ctlTLVAllocationInfo uint8 = 0x01 // request: service(u8); response: service(u8), cid(u8)
	ctlTLVVersionList    uint8 = 0x01 // response: count(u8) then count * (service(u8), major(u16le), minor(u16le))
)

type serviceVersion struct {
	Service uint8
	Major   uint16
	Minor   uint16
}

// allocateCID asks the modem to hand out a new client id for service. It is
// only ever issued against the CTL client, which always has cid 0.
func (d *Device) allocateCID(ctx context.Context, service uint8) (uint8, error) {
	ctl := d.ctlClient()
	txn := d.allocateTxn(CTLService, ctl.cid)
	req, err := NewRequest(CTLService, ctl.cid, 0, 0, txn, ctlMsgAllocateCID)
	if err != nil {
		return 0, err
	}
	if err := req.WriteU8(ctlTLVAllocationInfo, service); err != nil {
		return 0, err
	}
	resp, err := d.SendRequest(ctx, req)
	if err != nil {
		return 0, err
	}
	if ok, code, perr := resp.ParseResult(); perr != nil {
		return 0, perr
	} else if !ok {
		return 0, &ProtocolError{Code: code}
	}
	r, err := resp.TLVReader(ctlTLVAllocationInfo)
	if err != nil {
		return 0, newErr(ErrMalformedResponse, "allocate_cid response missing allocation info", err)
	}
	gotService, err := r.ReadU8()
	if err != nil {
		return 0, newErr(ErrMalformedResponse, "allocate_cid allocation info truncated", err)
	}
	cid, err := r.ReadU8()
	if err != nil {
		return 0, newErr(ErrMalformedResponse, "allocate_cid allocation info truncated", err)
	}
	if gotService != service {
		return 0, newErr(ErrProtocol, "allocate_cid returned allocation for a different service", nil)
	}
	return cid, nil
}

// ReleaseClientID exposes releaseCID to collaborators outside this package
// that track CID ownership themselves, such as the proxy broker releasing
// every CID a disconnecting process owned.
func (d *Device) ReleaseClientID(ctx context.Context, service, cid uint8) error {
	return d.releaseCID(ctx, service, cid)
}

// releaseCID best-effort releases a previously allocated client id. Errors
// are returned for the caller to log; releasing is inherently racing the
// device shutting down, so callers should not treat failure here as fatal.
func (d *Device) releaseCID(ctx context.Context, service, cid uint8) error {
	ctl := d.ctlClient()
	txn := d.allocateTxn(CTLService, ctl.cid)
	req, err := NewRequest(CTLService, ctl.cid, 0, 0, txn, ctlMsgReleaseCID)
	if err != nil {
		return err
	}
	s := req.BeginTLV(ctlTLVAllocationInfo)
	s.WriteU8(service)
	s.WriteU8(cid)
	if err := s.Commit(); err != nil {
		return err
	}
	resp, err := d.SendRequest(ctx, req)
	if err != nil {
		return err
	}
	ok, code, err := resp.ParseResult()
	if err != nil {
		return err
	}
	if !ok {
		return &ProtocolError{Code: code}
	}
	return nil
}

// getVersionInfo queries the supported service versions, used by Client's
// CheckVersion helper.
func (d *Device) getVersionInfo(ctx context.Context) ([]serviceVersion, error) {
	ctl := d.ctlClient()
	txn := d.allocateTxn(CTLService, ctl.cid)
	req, err := NewRequest(CTLService, ctl.cid, 0, 0, txn, ctlMsgGetVersionInfo)
	if err != nil {
		return nil, err
	}
	resp, err := d.SendRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	if ok, code, perr := resp.ParseResult(); perr != nil {
		return nil, perr
	} else if !ok {
		return nil, &ProtocolError{Code: code}
	}
	r, err := resp.TLVReader(ctlTLVVersionList)
	if err != nil {
		return nil, newErr(ErrMalformedResponse, "get_version_info response missing version list", err)
	}
	count, err := r.ReadU8()
	if err != nil {
		return nil, newErr(ErrMalformedResponse, "version list truncated", err)
	}
	out := make([]serviceVersion, 0, count)
	for i := 0; i < int(count); i++ {
		svc, err := r.ReadU8()
		if err != nil {
			return nil, newErr(ErrMalformedResponse, "version list truncated", err)
		}
		major, err := r.ReadU16(LittleEndian)
		if err != nil {
			return nil, newErr(ErrMalformedResponse, "version list truncated", err)
		}
		minor, err := r.ReadU16(LittleEndian)
		if err != nil {
			return nil, newErr(ErrMalformedResponse, "version list truncated", err)
		}
		out = append(out, serviceVersion{Service: svc, Major: major, Minor: minor})
	}
	return out, nil
}

// sync issues the CTL sync request and waits for its matching response. Per
// the original behaviour this is a request/response exchange, not a wait on
// an indication: the modem drops any stale client state synchronously.
func (client *Client) sync(ctx context.Context) error {
	txn := client.device.allocateTxn(CTLService, client.cid)
	req, err := NewRequest(CTLService, client.cid, 0, 0, txn, ctlMsgSync)
	if err != nil {
		return err
	}
	resp, err := client.device.SendRequest(ctx, req)
	if err != nil {
		return err
	}
	ok, code, err := resp.ParseResult()
	if err != nil {
		return err
	}
	if !ok {
		return &ProtocolError{Code: code}
	}
	return nil
}
