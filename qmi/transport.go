package qmi

import "context"

// Transport is the contract a concrete byte stream must satisfy: it need
// only be message-preserving (writes land as whole frames from the host's
// perspective, reads eventually yield whole frames, and disconnects are
// reported), not frame-aware itself. qmi/chardev implements this over a
// cdc-wdm character device; qmi/proxy's ClientTransport implements it over
// a Unix-domain socket connected to a broker. The broker side of that socket
// reads and writes its net.Conn directly and is not a Transport.
type Transport interface {
	// ReadFrame blocks until one complete frame is available, ctx is
	// cancelled, or the transport disconnects. The returned slice is
	// only valid until the next call to ReadFrame.
	ReadFrame(ctx context.Context) ([]byte, error)

	// WriteFrame writes exactly one complete frame. Implementations must
	// make this atomic from the caller's perspective: partial frames are
	// never observable on the wire.
	WriteFrame(ctx context.Context, frame []byte) error

	// Close releases the underlying file descriptor or connection.
	Close() error

	// InterfaceName and DataFormat are advisory passthroughs for external
	// collaborators that configure the paired network interface; the
	// codec and device runtime never consult them.
	InterfaceName() string
	DataFormat() DataFormat
}

// DataFormat names the expected framing on the transport's paired network
// interface. Advisory only.
type DataFormat int

const (
	DataFormatUnknown DataFormat = iota
	DataFormatEthernet
	DataFormatRawIP
)

func (f DataFormat) String() string {
	switch f {
	case DataFormatEthernet:
		return "802.3"
	case DataFormatRawIP:
		return "raw-ip"
	default:
		return "unknown"
	}
}
