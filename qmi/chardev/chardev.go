// Package chardev implements qmi.Transport over a Linux cdc-wdm character
// device node, following the raw-fd-plus-poll pattern used for serial ports:
// a bare syscall fd, an atomic closed flag guarding every syscall, and
// readiness waits delegated to github.com/daedaluz/fdev/poll so reads can be
// interrupted by context cancellation instead of blocking forever.
package chardev

import (
	"context"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"
	"github.com/daedaluz/fdev/poll"

	"github.com/linux-mobile-broadband/libqmi-sub000/qmi"
)

// pollInterval bounds how long a single ReadFrame poll waits before
// rechecking ctx, so cancellation is never starved by a device that never
// becomes readable.
const pollInterval = 200 * time.Millisecond

// defaultBufSize is used whenever IOCTL_WDM_MAX_COMMAND is unsupported or
// reports a size the core has no reason to trust blindly.
const defaultBufSize = 16 * 1024

// iocWDMMaxCommand is IOCTL_WDM_MAX_COMMAND from linux/usb/cdc-wdm.h: an
// _IOR('H', 0xA0, __u16) query for the largest single QMUX frame the kernel
// driver will hand back from one read(2). cdc-wdm is the only char device
// this transport targets, so this is queried unconditionally at Open and
// only ever loosens the read buffer, never the framing contract itself.
var iocWDMMaxCommand = ioctl.IOR('H', 0xA0, unsafe.Sizeof(uint16(0)))

// Device is a qmi.Transport over a cdc-wdm node opened in raw read/write
// mode. Each kernel read on cdc-wdm yields exactly one QMUX frame, so no
// buffering beyond a per-call scratch buffer is required.
type Device struct {
	path       string
	iface      string
	dataFormat qmi.DataFormat

	fd     int
	closed atomic.Bool

	mu  sync.Mutex
	buf []byte
}

// Open opens path (typically /dev/cdc-wdm*) for raw read/write access; it
// does not request exclusive use of the node. iface and format are recorded only as advisory metadata returned
// by InterfaceName/DataFormat.
func Open(path, iface string, format qmi.DataFormat) (*Device, error) {
	fd, err := syscall.Open(path, syscall.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		return nil, qmi.NewIOError("open device", err)
	}
	d := &Device{path: path, iface: iface, dataFormat: format, fd: fd, buf: make([]byte, defaultBufSize)}
	if n := queryMaxCommandSize(fd); n > defaultBufSize {
		d.buf = make([]byte, n)
	}
	return d, nil
}

// queryMaxCommandSize issues IOCTL_WDM_MAX_COMMAND and returns the reported
// size, or 0 if the kernel driver does not support the ioctl (older
// kernels, or a transport that isn't actually cdc-wdm under test).
func queryMaxCommandSize(fd int) int {
	var size uint16
	if err := ioctl.Ioctl(uintptr(fd), iocWDMMaxCommand, uintptr(unsafe.Pointer(&size))); err != nil {
		return 0
	}
	return int(size)
}

func (d *Device) InterfaceName() string      { return d.iface }
func (d *Device) DataFormat() qmi.DataFormat { return d.dataFormat }

// ReadFrame waits for the device to become readable (respecting ctx) and
// returns exactly the bytes of one read(2) call, which on cdc-wdm is always
// one whole frame.
func (d *Device) ReadFrame(ctx context.Context) ([]byte, error) {
	if d.closed.Load() {
		return nil, qmi.NewDisconnectedError("device already closed")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	for {
		if d.closed.Load() {
			return nil, qmi.NewDisconnectedError("device already closed")
		}
		select {
		case <-ctx.Done():
			return nil, qmi.NewCancelledOrTimeoutError(ctx.Err())
		default:
		}
		err := poll.WaitInput(d.fd, pollInterval)
		if err == nil {
			break
		}
		if !isTimeoutErr(err) {
			return nil, qmi.NewIOError("wait for readable device", err)
		}
	}

	n, err := syscall.Read(d.fd, d.buf[:])
	if err != nil {
		return nil, qmi.NewIOError("read device", err)
	}
	if n == 0 {
		d.closed.Store(true)
		return nil, qmi.NewDisconnectedError("device reached EOF")
	}
	out := make([]byte, n)
	copy(out, d.buf[:n])
	return out, nil
}

// WriteFrame writes frame in a single syscall.Write; cdc-wdm treats each
// write(2) as one atomic frame submission to the modem.
func (d *Device) WriteFrame(ctx context.Context, frame []byte) error {
	if d.closed.Load() {
		return qmi.NewDisconnectedError("device already closed")
	}
	select {
	case <-ctx.Done():
		return qmi.NewCancelledOrTimeoutError(ctx.Err())
	default:
	}
	n, err := syscall.Write(d.fd, frame)
	if err != nil {
		return qmi.NewIOError("write device", err)
	}
	if n != len(frame) {
		return qmi.NewIOError("short write to device", syscall.EIO)
	}
	return nil
}

// Close closes the underlying fd. Safe to call more than once; only the
// first call performs the syscall.
func (d *Device) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	return syscall.Close(d.fd)
}

func isTimeoutErr(err error) bool {
	return err == syscall.ETIMEDOUT || err == syscall.EAGAIN || err == syscall.EINTR
}
