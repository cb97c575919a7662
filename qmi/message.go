// Package qmi implements the QMUX/QMI wire codec and the client session
// runtime used to talk to a cellular modem over a character device.
package qmi

import (
	"encoding/binary"
	"fmt"

	"github.com/linux-mobile-broadband/libqmi-sub000/qmi/registry"
)

const (
	frameMarker = 0x01

	qmuxHeaderLen    = 5 // length(2) + flags(1) + service(1) + client(1)
	ctlHeaderLen     = 6 // flags(1) + transaction(1) + message(2) + tlv_length(2)
	serviceHeaderLen = 7 // flags(1) + transaction(2) + message(2) + tlv_length(2)

	// CTLService is the reserved service id for the control service.
	CTLService uint8 = 0
)

// QMI-flags bits. CTL uses a narrower enum than every other service: a
// response is bit 0, an indication is bit 1. Every other service shifts
// both up by one bit, leaving bit 0 unused.
const (
	ctlFlagResponse   = 0x01
	ctlFlagIndication = 0x02

	serviceFlagResponse   = 0x02
	serviceFlagIndication = 0x04
)

// ResultTLVType is the mandatory result TLV type present on every response:
// two little-endian u16s, success/failure then protocol error.
const ResultTLVType = 0x02

// Message is the in-memory view of one QMUX-framed QMI message. buf holds
// the raw wire bytes; all accessors read or mutate through it rather than
// keeping a parallel decoded representation, so Message.Bytes() is always
// exactly what will be written to (or was read from) the transport.
type Message struct {
	buf           []byte
	vendorContext uint16 // metadata only; never serialized on the wire
}

// Bytes returns the raw wire form of the message. The returned slice aliases
// the message's internal buffer and must not be mutated by the caller.
func (m *Message) Bytes() []byte { return m.buf }

// VendorContext returns the out-of-band vendor tag carried alongside the
// message. It is never part of the wire encoding.
func (m *Message) VendorContext() uint16 { return m.vendorContext }

// SetVendorContext sets the out-of-band vendor tag.
func (m *Message) SetVendorContext(v uint16) { m.vendorContext = v }

func (m *Message) isControl() bool { return m.buf[4] == CTLService }

func (m *Message) qmiHeaderLen() int {
	if m.isControl() {
		return ctlHeaderLen
	}
	return serviceHeaderLen
}

func (m *Message) tlvAreaStart() int {
	return 1 + qmuxHeaderLen + m.qmiHeaderLen()
}

func (m *Message) qmuxLength() uint16 {
	return binary.LittleEndian.Uint16(m.buf[1:3])
}

func (m *Message) setQMUXLength(v uint16) {
	binary.LittleEndian.PutUint16(m.buf[1:3], v)
}

func (m *Message) tlvTotalLength() uint16 {
	// tlv_length is the last 2 bytes of whichever QMI header shape applies.
	off := 1 + qmuxHeaderLen + m.qmiHeaderLen() - 2
	return binary.LittleEndian.Uint16(m.buf[off : off+2])
}

func (m *Message) setTLVTotalLength(v uint16) {
	off := 1 + qmuxHeaderLen + m.qmiHeaderLen() - 2
	binary.LittleEndian.PutUint16(m.buf[off:off+2], v)
}

// Service returns the 8-bit service tag (0 == CTL).
func (m *Message) Service() uint8 { return m.buf[4] }

// ClientID returns the 8-bit client id within the service.
func (m *Message) ClientID() uint8 { return m.buf[5] }

// QMUXFlags returns the outer QMUX flags byte.
func (m *Message) QMUXFlags() uint8 { return m.buf[3] }

// QMIFlags returns the inner QMI flags byte.
func (m *Message) QMIFlags() uint8 {
	return m.buf[1+qmuxHeaderLen]
}

// IsResponse reports whether the QMI flags mark this message as a response.
func (m *Message) IsResponse() bool {
	if m.isControl() {
		return m.QMIFlags()&ctlFlagResponse != 0
	}
	return m.QMIFlags()&serviceFlagResponse != 0
}

// IsIndication reports whether the QMI flags mark this message as an
// unsolicited indication.
func (m *Message) IsIndication() bool {
	if m.isControl() {
		return m.QMIFlags()&ctlFlagIndication != 0
	}
	return m.QMIFlags()&serviceFlagIndication != 0
}

// TransactionID returns the transaction id, widened to 16 bits regardless of
// whether the wire form used an 8-bit (CTL) or 16-bit (service) field.
func (m *Message) TransactionID() uint16 {
	off := 1 + qmuxHeaderLen + 1
	if m.isControl() {
		return uint16(m.buf[off])
	}
	return binary.LittleEndian.Uint16(m.buf[off : off+2])
}

// SetTransactionID rewrites only the transaction field in place, without
// moving any TLVs. The width is chosen from the service field
// already present in the header, so this never changes message layout.
func (m *Message) SetTransactionID(id uint16) error {
	off := 1 + qmuxHeaderLen + 1
	if m.isControl() {
		if id > 0xFF {
			return newErr(ErrInvalidArgument, "transaction id does not fit in 8 bits for CTL", nil)
		}
		m.buf[off] = byte(id)
		return nil
	}
	binary.LittleEndian.PutUint16(m.buf[off:off+2], id)
	return nil
}

// MessageID returns the 16-bit, per-service message id.
func (m *Message) MessageID() uint16 {
	off := 1 + qmuxHeaderLen + 2
	if !m.isControl() {
		off++
	}
	return binary.LittleEndian.Uint16(m.buf[off : off+2])
}

// NewRequest allocates an empty message with correct headers and a
// zero-length TLV area. It fails only if the chosen transaction
// width cannot hold the value (8 bits for CTL, 16 bits otherwise).
func NewRequest(service, client, qmuxFlags, qmiFlags uint8, transaction, messageID uint16) (*Message, error) {
	isCtl := service == CTLService
	if isCtl && transaction > 0xFF {
		return nil, newErr(ErrInvalidArgument, "transaction id does not fit in 8 bits for CTL", nil)
	}

	hdrLen := serviceHeaderLen
	if isCtl {
		hdrLen = ctlHeaderLen
	}
	buf := make([]byte, 1+qmuxHeaderLen+hdrLen)
	buf[0] = frameMarker
	buf[3] = qmuxFlags
	buf[4] = service
	buf[5] = client

	m := &Message{buf: buf}
	m.setQMUXLength(uint16(len(buf) - 1))

	qmiOff := 1 + qmuxHeaderLen
	buf[qmiOff] = qmiFlags
	if isCtl {
		buf[qmiOff+1] = byte(transaction)
		binary.LittleEndian.PutUint16(buf[qmiOff+2:qmiOff+4], messageID)
		binary.LittleEndian.PutUint16(buf[qmiOff+4:qmiOff+6], 0)
	} else {
		binary.LittleEndian.PutUint16(buf[qmiOff+1:qmiOff+3], transaction)
		binary.LittleEndian.PutUint16(buf[qmiOff+3:qmiOff+5], messageID)
		binary.LittleEndian.PutUint16(buf[qmiOff+5:qmiOff+7], 0)
	}
	return m, nil
}

// ResponseFor constructs a matching response message reusing the request's
// service/client/transaction, sets the response bit in qmi-flags, and
// inserts the mandatory result TLV.
func ResponseFor(request *Message, protocolError uint16) (*Message, error) {
	responseBit := uint8(serviceFlagResponse)
	if request.isControl() {
		responseBit = ctlFlagResponse
	}
	// 0x80 marks the QMUX-level direction as "from service", the
	// counterpart to the 0x00 every client request carries.
	resp, err := NewRequest(request.Service(), request.ClientID(), 0x80, responseBit, request.TransactionID(), request.MessageID())
	if err != nil {
		return nil, err
	}
	status := uint16(0)
	if protocolError != 0 {
		status = 1
	}
	s := resp.BeginTLV(ResultTLVType)
	s.WriteU16(status, LittleEndian)
	s.WriteU16(protocolError, LittleEndian)
	if err := s.Commit(); err != nil {
		return nil, err
	}
	return resp, nil
}

// ParseResult reads the mandatory result TLV and returns (success, protocol
// error code). Absence of the TLV is a protocol violation, surfaced as
// ErrMalformedResponse rather than ErrFraming, since the enclosing frame may
// otherwise be perfectly well-formed.
func (m *Message) ParseResult() (success bool, protocolErrorCode uint16, err error) {
	r, err := m.TLVReader(ResultTLVType)
	if err != nil {
		return false, 0, newErr(ErrMalformedResponse, "response missing mandatory result TLV", err)
	}
	status, err := r.ReadU16(LittleEndian)
	if err != nil {
		return false, 0, newErr(ErrMalformedResponse, "result TLV truncated", err)
	}
	code, err := r.ReadU16(LittleEndian)
	if err != nil {
		return false, 0, newErr(ErrMalformedResponse, "result TLV truncated", err)
	}
	return status == 0, code, nil
}

// FromRaw validates and wraps a single complete frame. The caller is
// responsible for having already determined the frame's length (e.g. via
// ParseFrames, or a transport that already delivers whole frames).
func FromRaw(b []byte) (*Message, error) {
	if len(b) < 1+qmuxHeaderLen {
		return nil, newErr(ErrTruncated, "buffer shorter than qmux header", nil)
	}
	if b[0] != frameMarker {
		return nil, newErr(ErrFraming, "bad frame marker", nil)
	}
	qmuxLen := binary.LittleEndian.Uint16(b[1:3])
	if int(qmuxLen)+1 > len(b) {
		return nil, newErr(ErrTruncated, "buffer shorter than qmux length", nil)
	}
	if int(qmuxLen)+1 != len(b) {
		return nil, newErr(ErrFraming, "buffer longer than qmux length", nil)
	}

	isCtl := b[4] == CTLService
	hdrLen := serviceHeaderLen
	if isCtl {
		hdrLen = ctlHeaderLen
	}
	if int(qmuxLen) < qmuxHeaderLen+hdrLen {
		return nil, newErr(ErrFraming, "qmux length too short for qmi header", nil)
	}

	m := &Message{buf: b}
	tlvLen := m.tlvTotalLength()
	if int(qmuxLen)-(qmuxHeaderLen+hdrLen) != int(tlvLen) {
		return nil, newErr(ErrFraming, "qmux length and tlv_length disagree", nil)
	}

	// Walk the TLVs once to confirm none of them runs past the declared
	// tlv_length (a TLV's value bytes never extend beyond the
	// declared QMUX length").
	start := m.tlvAreaStart()
	end := start + int(tlvLen)
	off := start
	for off < end {
		if off+3 > end {
			return nil, newErr(ErrTLVOverflow, "truncated tlv header", nil)
		}
		l := int(binary.LittleEndian.Uint16(b[off+1 : off+3]))
		valStart := off + 3
		if valStart+l > end {
			return nil, newErr(ErrTLVOverflow, "tlv value runs past tlv_length", nil)
		}
		off = valStart + l
	}

	return m, nil
}

// ParseFrames splits a concatenated buffer into zero or more complete
// messages plus the undecoded remainder. A malformed trailing short frame
// does not invalidate the frames already parsed: it
// is simply left in the remainder for the caller to append more bytes to.
func ParseFrames(buf []byte) (msgs []*Message, remainder []byte) {
	for len(buf) > 0 {
		if buf[0] != frameMarker {
			// Resynchronize: drop bytes until the next marker, or
			// discard everything if none remains.
			idx := indexByte(buf[1:], frameMarker)
			if idx < 0 {
				return msgs, nil
			}
			buf = buf[1+idx:]
			continue
		}
		if len(buf) < 1+qmuxHeaderLen {
			return msgs, buf
		}
		qmuxLen := binary.LittleEndian.Uint16(buf[1:3])
		total := int(qmuxLen) + 1
		if total > len(buf) {
			return msgs, buf
		}
		frame := buf[:total]
		m, err := FromRaw(frame)
		if err != nil {
			// Truncated/malformed trailing frame: stop here and let
			// the caller retain the remainder for more bytes.
			return msgs, buf
		}
		msgs = append(msgs, m)
		buf = buf[total:]
	}
	return msgs, buf
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// String returns a compact one-line debug form: service/client/transaction/
// message-id and the list of TLV types present, with the message name from
// the registry when the registry has metadata for it. It is not the full
// printable hex dump, which is left to external tooling.
func (m *Message) String() string {
	types := make([]byte, 0, 4)
	start := m.tlvAreaStart()
	end := start + int(m.tlvTotalLength())
	if end > len(m.buf) {
		end = len(m.buf)
	}
	off := start
	for off+3 <= end {
		l := int(binary.LittleEndian.Uint16(m.buf[off+1 : off+3]))
		valStart := off + 3
		if valStart+l > end {
			break
		}
		types = append(types, m.buf[off])
		off = valStart + l
	}
	name := ""
	if d, ok := registry.LookupMessage(registry.ServiceID(m.Service()), m.MessageID()); ok {
		name = " " + d.Name
	}
	return fmt.Sprintf("qmi svc=%d cid=%d txn=%d msg=0x%04x%s tlvs=%v",
		m.Service(), m.ClientID(), m.TransactionID(), m.MessageID(), name, types)
}
