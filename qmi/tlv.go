package qmi

import (
	"encoding/binary"
)

// Endianness selects byte order for a fixed-width integer TLV value. QMI is
// little-endian throughout, but the writer/reader helpers accept
// an explicit selector so big-endian payloads nested inside a TLV (rare, but
// present in some vendor extensions) can still round-trip.
type Endianness int

const (
	LittleEndian Endianness = iota
	BigEndian
)

func (e Endianness) order() binary.ByteOrder {
	if e == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// tlvRecord is one decoded (type, length, value) triple. value is a slice
// view into the owning Message's buffer; it is never copied while reading.
type tlvRecord struct {
	Type   uint8
	Length uint16
	Value  []byte
}

// MaxMessageLen is the largest a fully framed QMUX message may be, marker
// byte included; an append that would grow a message past it is rejected.
const MaxMessageLen = 0xFFFF

// tlvStage is a begin/commit/reset handle for building a composite TLV
// incrementally. A TLV may be staged and discarded
// atomically without committing any bytes to the message.
type tlvStage struct {
	msg     *Message
	typ     uint8
	payload []byte
}

// BeginTLV opens a staged TLV of the given type. Append to it with the
// returned handle's Write-style helpers, then either Commit or Reset it.
// The staged bytes are not visible via TLVFind until Commit is called.
func (m *Message) BeginTLV(typ uint8) *tlvStage {
	return &tlvStage{msg: m, typ: typ}
}

func (s *tlvStage) appendUint(v uint64, width int, e Endianness) {
	buf := make([]byte, width)
	switch width {
	case 1:
		buf[0] = byte(v)
	case 2:
		e.order().PutUint16(buf, uint16(v))
	case 4:
		e.order().PutUint32(buf, uint32(v))
	case 8:
		e.order().PutUint64(buf, v)
	}
	s.payload = append(s.payload, buf...)
}

func (s *tlvStage) WriteU8(v uint8)                      { s.payload = append(s.payload, v) }
func (s *tlvStage) WriteI8(v int8)                       { s.payload = append(s.payload, byte(v)) }
func (s *tlvStage) WriteU16(v uint16, e Endianness)      { s.appendUint(uint64(v), 2, e) }
func (s *tlvStage) WriteI16(v int16, e Endianness)       { s.appendUint(uint64(uint16(v)), 2, e) }
func (s *tlvStage) WriteU32(v uint32, e Endianness)      { s.appendUint(uint64(v), 4, e) }
func (s *tlvStage) WriteI32(v int32, e Endianness)       { s.appendUint(uint64(uint32(v)), 4, e) }
func (s *tlvStage) WriteU64(v uint64, e Endianness)      { s.appendUint(v, 8, e) }
func (s *tlvStage) WriteI64(v int64, e Endianness)       { s.appendUint(uint64(v), 8, e) }
func (s *tlvStage) WriteRaw(b []byte)                    { s.payload = append(s.payload, b...) }

// WriteSizedUint appends an n-byte (1..8) unsigned integer.
func (s *tlvStage) WriteSizedUint(v uint64, nBytes int, e Endianness) error {
	if nBytes < 1 || nBytes > 8 {
		return newErr(ErrInvalidArgument, "sized_uint width out of range", nil)
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	if e == BigEndian {
		// Re-encode big-endian directly into an nBytes-wide buffer.
		out := make([]byte, nBytes)
		for i := 0; i < nBytes; i++ {
			out[nBytes-1-i] = byte(v >> (8 * i))
		}
		s.payload = append(s.payload, out...)
		return nil
	}
	s.payload = append(s.payload, buf[:nBytes]...)
	return nil
}

// WriteString appends a string with the given length-prefix width (0, 1, or
// 2 bytes). A prefix width of 0 means the string runs to the end of the TLV
// (only meaningful as the last write before Commit).
func (s *tlvStage) WriteString(v string, lengthPrefixWidth int) error {
	switch lengthPrefixWidth {
	case 0:
		// fixed-size: consumes the remainder of the TLV, no prefix.
	case 1:
		if len(v) > 0xFF {
			return newErr(ErrTLVTooLong, "string too long for 1-byte length prefix", nil)
		}
		s.payload = append(s.payload, byte(len(v)))
	case 2:
		if len(v) > 0xFFFF {
			return newErr(ErrTLVTooLong, "string too long for 2-byte length prefix", nil)
		}
		lp := make([]byte, 2)
		binary.LittleEndian.PutUint16(lp, uint16(len(v)))
		s.payload = append(s.payload, lp...)
	default:
		return newErr(ErrInvalidArgument, "length prefix width must be 0, 1, or 2", nil)
	}
	s.payload = append(s.payload, v...)
	return nil
}

// Commit appends the staged TLV to the message. If committing would push
// the full message length above 0xFFFF bytes, the message is left
// unchanged and ErrTLVTooLong is returned.
func (s *tlvStage) Commit() error {
	return s.msg.appendTLV(s.typ, s.payload)
}

// Reset discards the staged bytes without touching the message.
func (s *tlvStage) Reset() {
	s.payload = s.payload[:0]
}

// appendTLV is the single mutation point for adding a TLV to a message; all
// typed writers funnel through it so the overflow check and length-field
// bookkeeping happen in exactly one place.
func (m *Message) appendTLV(typ uint8, value []byte) error {
	tlvLen := 3 + len(value)
	newTotal := len(m.buf) + tlvLen
	if newTotal > MaxMessageLen {
		return newErr(ErrTLVTooLong, "message would exceed 65535 bytes", nil)
	}
	if _, exists := m.tlvOffset(typ); exists {
		// A TLV type may not repeat within one message; the
		// first writer wins and later writes of the same type are
		// rejected rather than silently shadowing it.
		return newErr(ErrInvalidArgument, "tlv type already present in message", nil)
	}

	rec := make([]byte, tlvLen)
	rec[0] = typ
	binary.LittleEndian.PutUint16(rec[1:3], uint16(len(value)))
	copy(rec[3:], value)

	m.buf = append(m.buf, rec...)
	m.setQMUXLength(uint16(len(m.buf) - 1))
	m.setTLVTotalLength(m.tlvTotalLength() + uint16(tlvLen))
	return nil
}

// WriteU8 etc. are convenience one-shot writers for single-field TLVs; they
// are equivalent to BeginTLV(typ).WriteXxx(...); Commit().
func (m *Message) WriteU8(typ uint8, v uint8) error { return m.writeOne(typ, func(s *tlvStage) { s.WriteU8(v) }) }
func (m *Message) WriteI8(typ uint8, v int8) error  { return m.writeOne(typ, func(s *tlvStage) { s.WriteI8(v) }) }
func (m *Message) WriteU16(typ uint8, v uint16, e Endianness) error {
	return m.writeOne(typ, func(s *tlvStage) { s.WriteU16(v, e) })
}
func (m *Message) WriteI16(typ uint8, v int16, e Endianness) error {
	return m.writeOne(typ, func(s *tlvStage) { s.WriteI16(v, e) })
}
func (m *Message) WriteU32(typ uint8, v uint32, e Endianness) error {
	return m.writeOne(typ, func(s *tlvStage) { s.WriteU32(v, e) })
}
func (m *Message) WriteI32(typ uint8, v int32, e Endianness) error {
	return m.writeOne(typ, func(s *tlvStage) { s.WriteI32(v, e) })
}
func (m *Message) WriteU64(typ uint8, v uint64, e Endianness) error {
	return m.writeOne(typ, func(s *tlvStage) { s.WriteU64(v, e) })
}
func (m *Message) WriteI64(typ uint8, v int64, e Endianness) error {
	return m.writeOne(typ, func(s *tlvStage) { s.WriteI64(v, e) })
}
func (m *Message) WriteRaw(typ uint8, b []byte) error {
	return m.writeOne(typ, func(s *tlvStage) { s.WriteRaw(b) })
}
func (m *Message) WriteString(typ uint8, v string, lengthPrefixWidth int) error {
	s := m.BeginTLV(typ)
	if err := s.WriteString(v, lengthPrefixWidth); err != nil {
		return err
	}
	return s.Commit()
}

func (m *Message) writeOne(typ uint8, fill func(*tlvStage)) error {
	s := m.BeginTLV(typ)
	fill(s)
	return s.Commit()
}

// tlvOffset returns the byte offset (within m.buf) of the first TLV of the
// given type, and whether it was found. The walk is bounded by the declared
// tlv_total_length field or the end of the buffer, whichever comes first; a
// TLV whose value runs past that bound ends the walk, so it and anything
// after it are reported as not found.
func (m *Message) tlvOffset(typ uint8) (int, bool) {
	start := m.tlvAreaStart()
	end := start + int(m.tlvTotalLength())
	if end > len(m.buf) {
		end = len(m.buf)
	}
	off := start
	for off+3 <= end {
		t := m.buf[off]
		l := int(binary.LittleEndian.Uint16(m.buf[off+1 : off+3]))
		valStart := off + 3
		if valStart+l > end {
			break
		}
		if t == typ {
			return off, true
		}
		off = valStart + l
	}
	return 0, false
}

// TLVFind returns the first TLV with the given type.
func (m *Message) TLVFind(typ uint8) ([]byte, error) {
	off, ok := m.tlvOffset(typ)
	if !ok {
		return nil, newErr(ErrTLVNotFound, "", nil)
	}
	l := int(binary.LittleEndian.Uint16(m.buf[off+1 : off+3]))
	valStart := off + 3
	return m.buf[valStart : valStart+l], nil
}

// TLVCount returns the number of TLVs currently in the message.
func (m *Message) TLVCount() int {
	start := m.tlvAreaStart()
	end := start + int(m.tlvTotalLength())
	if end > len(m.buf) {
		end = len(m.buf)
	}
	n := 0
	off := start
	for off+3 <= end {
		l := int(binary.LittleEndian.Uint16(m.buf[off+1 : off+3]))
		valStart := off + 3
		if valStart+l > end {
			break
		}
		n++
		off = valStart + l
	}
	return n
}

// tlvReader reads sequential typed values out of a single TLV's value
// bytes, enforcing the TLV-level bound on every read.
type tlvReader struct {
	value []byte
	pos   int
}

func (m *Message) tlvReaderFor(typ uint8) (*tlvReader, error) {
	v, err := m.TLVFind(typ)
	if err != nil {
		return nil, err
	}
	return &tlvReader{value: v}, nil
}

func (r *tlvReader) take(n int) ([]byte, error) {
	if r.pos+n > len(r.value) {
		return nil, newErr(ErrTLVOverflow, "read past end of tlv", nil)
	}
	b := r.value[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *tlvReader) ReadU8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *tlvReader) ReadI8() (int8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return int8(b[0]), nil
}

func (r *tlvReader) ReadU16(e Endianness) (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return e.order().Uint16(b), nil
}

func (r *tlvReader) ReadI16(e Endianness) (int16, error) {
	v, err := r.ReadU16(e)
	return int16(v), err
}

func (r *tlvReader) ReadU32(e Endianness) (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return e.order().Uint32(b), nil
}

func (r *tlvReader) ReadI32(e Endianness) (int32, error) {
	v, err := r.ReadU32(e)
	return int32(v), err
}

func (r *tlvReader) ReadU64(e Endianness) (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return e.order().Uint64(b), nil
}

func (r *tlvReader) ReadI64(e Endianness) (int64, error) {
	v, err := r.ReadU64(e)
	return int64(v), err
}

// ReadSizedUint reads an n-byte (1..8) unsigned integer.
func (r *tlvReader) ReadSizedUint(nBytes int, e Endianness) (uint64, error) {
	if nBytes < 1 || nBytes > 8 {
		return 0, newErr(ErrInvalidArgument, "sized_uint width out of range", nil)
	}
	b, err := r.take(nBytes)
	if err != nil {
		return 0, err
	}
	var v uint64
	if e == BigEndian {
		for _, c := range b {
			v = v<<8 | uint64(c)
		}
	} else {
		for i := len(b) - 1; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
	}
	return v, nil
}

// ReadString reads a string with the given length-prefix width. A width of 0
// consumes the remainder of the TLV's value. A length-prefixed string of
// length zero succeeds and yields an empty string. On failure the cursor is
// left where it was before the call.
func (r *tlvReader) ReadString(lengthPrefixWidth int) (string, error) {
	start := r.pos
	var n int
	switch lengthPrefixWidth {
	case 0:
		n = len(r.value) - r.pos
	case 1:
		b, err := r.take(1)
		if err != nil {
			return "", err
		}
		n = int(b[0])
	case 2:
		b, err := r.take(2)
		if err != nil {
			return "", err
		}
		n = int(binary.LittleEndian.Uint16(b))
	default:
		return "", newErr(ErrInvalidArgument, "length prefix width must be 0, 1, or 2", nil)
	}
	b, err := r.take(n)
	if err != nil {
		r.pos = start
		return "", err
	}
	return string(b), nil
}

// ReadRaw reads exactly n raw bytes.
func (r *tlvReader) ReadRaw(n int) ([]byte, error) {
	return r.take(n)
}

// TLVReader opens a sequential reader over the first TLV of the given type.
func (m *Message) TLVReader(typ uint8) (*tlvReader, error) {
	return m.tlvReaderFor(typ)
}
