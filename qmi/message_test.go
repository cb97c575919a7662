package qmi

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func kindOf(t require.TestingT, err error) ErrorKind {
	var e *Error
	require.True(t, errors.As(err, &e))
	return e.Kind
}

var parseCompleteFrame = []byte{
	0x01, 0x26, 0x00, 0x80, 0x03, 0x01, 0x02, 0x01, 0x00, 0x20, 0x00, 0x1A,
	0x00, 0x02, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x02, 0x00, 0x9B,
	0x05, 0x11, 0x04, 0x00, 0x01, 0x00, 0x65, 0x05, 0x12, 0x04, 0x00, 0x01,
	0x00, 0x11, 0x05,
}

func TestParseFramesComplete(t *testing.T) {
	msgs, remainder := ParseFrames(parseCompleteFrame)
	require.Len(t, msgs, 1)
	assert.Empty(t, remainder)

	m := msgs[0]
	assert.EqualValues(t, 3, m.Service())
	assert.EqualValues(t, 1, m.ClientID())
	assert.EqualValues(t, 1, m.TransactionID())
	assert.EqualValues(t, 0x0020, m.MessageID())

	_, err := m.TLVFind(0x02)
	assert.NoError(t, err)
	_, err = m.TLVFind(0x01)
	assert.NoError(t, err)
	_, err = m.TLVFind(0x11)
	assert.NoError(t, err)
	_, err = m.TLVFind(0x12)
	assert.NoError(t, err)
}

func TestParseFramesTruncated(t *testing.T) {
	msgs, remainder := ParseFrames(parseCompleteFrame[:30])
	assert.Empty(t, msgs)
	assert.Equal(t, parseCompleteFrame[:30], remainder)
}

func TestNewRequestEncoding(t *testing.T) {
	req, err := NewRequest(2, 1, 0, 0, 2, 0xFFFF)
	require.NoError(t, err)

	want := []byte{0x01, 0x0C, 0x00, 0x00, 0x02, 0x01, 0x00, 0x02, 0x00, 0xFF, 0xFF, 0x00, 0x00}
	assert.Equal(t, want, req.Bytes())
}

func TestResponseForOK(t *testing.T) {
	req, err := NewRequest(2, 1, 0, 0, 2, 0xFFFF)
	require.NoError(t, err)

	resp, err := ResponseFor(req, 0)
	require.NoError(t, err)

	want := []byte{
		0x01, 0x13, 0x00, 0x80, 0x02, 0x01, 0x02, 0x02, 0x00, 0xFF, 0xFF,
		0x07, 0x00, 0x02, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
	assert.Equal(t, want, resp.Bytes())

	ok, code, err := resp.ParseResult()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 0, code)
}

func TestResponseForError(t *testing.T) {
	req, err := NewRequest(2, 1, 0, 0, 2, 0xFFFF)
	require.NoError(t, err)

	resp, err := ResponseFor(req, 3)
	require.NoError(t, err)

	want := []byte{
		0x01, 0x13, 0x00, 0x80, 0x02, 0x01, 0x02, 0x02, 0x00, 0xFF, 0xFF,
		0x07, 0x00, 0x02, 0x04, 0x00, 0x01, 0x00, 0x03, 0x00,
	}
	assert.Equal(t, want, resp.Bytes())

	ok, code, err := resp.ParseResult()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.EqualValues(t, 3, code)
}

func TestParseResultMissingIsMalformed(t *testing.T) {
	req, err := NewRequest(2, 1, 0, 0, 2, 0xFFFF)
	require.NoError(t, err)

	_, _, err = req.ParseResult()
	require.Error(t, err)
	assert.Equal(t, ErrMalformedResponse, kindOf(t, err))
}

func TestFromRawRejectsBadMarker(t *testing.T) {
	buf := append([]byte(nil), parseCompleteFrame...)
	buf[0] = 0x00
	_, err := FromRaw(buf)
	require.Error(t, err)
	assert.Equal(t, ErrFraming, kindOf(t, err))
}

func TestCtlTransactionWidth(t *testing.T) {
	_, err := NewRequest(CTLService, 0, 0, 0, 0x100, 0x0022)
	require.Error(t, err)
	assert.Equal(t, ErrInvalidArgument, kindOf(t, err))
}

// TestRoundTripProperty checks that any message built through NewRequest and
// a sequence of raw TLV writes parses back via ParseFrames to exactly one
// message with identical bytes and an empty remainder.
func TestRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		service := rapid.SampledFrom([]uint8{0, 1, 2, 3}).Draw(rt, "service")
		client := rapid.Byte().Draw(rt, "client")
		msgID := rapid.Uint16().Draw(rt, "msgID")

		var txn uint16
		if service == CTLService {
			txn = uint16(rapid.Byte().Draw(rt, "txn"))
		} else {
			txn = rapid.Uint16().Draw(rt, "txn")
		}

		m, err := NewRequest(service, client, 0, 0, txn, msgID)
		require.NoError(rt, err)

		n := rapid.IntRange(0, 4).Draw(rt, "n-tlvs")
		usedTypes := map[uint8]bool{}
		for i := 0; i < n; i++ {
			typ := rapid.Byte().Draw(rt, "tlv-type")
			if usedTypes[typ] {
				continue
			}
			usedTypes[typ] = true
			val := rapid.SliceOfN(rapid.Byte(), 0, 32).Draw(rt, "tlv-val")
			s := m.BeginTLV(typ)
			s.WriteRaw(val)
			require.NoError(rt, s.Commit())
		}

		raw := append([]byte(nil), m.Bytes()...)
		msgs, remainder := ParseFrames(raw)
		require.Len(rt, msgs, 1)
		assert.Empty(rt, remainder)
		assert.True(rt, bytes.Equal(raw, msgs[0].Bytes()))
	})
}

// TestParseFramesNeverDropsCompleteFrames checks that appending up to 8
// bytes of an incomplete trailing frame after N complete ones still yields
// exactly N parsed messages.
func TestParseFramesNeverDropsCompleteFrames(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 5).Draw(rt, "n")
		var buf []byte
		for i := 0; i < n; i++ {
			m, err := NewRequest(2, 1, 0, 0, uint16(i+1), 0x0001)
			require.NoError(rt, err)
			buf = append(buf, m.Bytes()...)
		}
		trailing := rapid.IntRange(0, 8).Draw(rt, "trailing")
		buf = append(buf, bytes.Repeat([]byte{0x01}, trailing)...)

		msgs, _ := ParseFrames(buf)
		assert.Len(rt, msgs, n)
	})
}
