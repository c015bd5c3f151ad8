//go:build linux

package serialport

import (
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/feetech-go/scservo"
)

// Linux-specific termios2 ioctl numbers and flags not exposed by
// golang.org/x/sys/unix (which only wraps the legacy termios/TCGETS pair,
// insufficient for arbitrary baud rates).
const (
	tcgets2 = 0x802C542A
	tcsets2 = 0x402C542B

	cbaud  = 0010017
	bother = 0010000
	cs8    = 0000060
	cread  = 0000200
	clocal = 0004000
)

const ncc = 19

// termios2 mirrors Linux's struct termios2, which adds explicit c_ispeed/
// c_ospeed fields so BOTHER can request any integer baud rate instead of
// picking from the fixed Bnnnn table.
type termios2 struct {
	Iflag  uint32
	Oflag  uint32
	Cflag  uint32
	Lflag  uint32
	Line   byte
	Cc     [ncc]byte
	Ispeed uint32
	Ospeed uint32
}

func ioctl(fd int, req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// Linux implements scservo.Port over a POSIX tty device, setting arbitrary
// baud rates via termios2/BOTHER (Linux >= 2.6.20). The busy-flag/timer
// portion of the Port contract comes from the embedded BaseIO; Linux only
// adds the actual byte transfer.
type Linux struct {
	scservo.BaseIO

	opts Options
	fd   int
}

var _ scservo.Port = (*Linux)(nil)

// New builds a Port for the device described by opts. The device is not
// opened until Open is called.
func New(opts Options) *Linux {
	if opts.ReadBufferSize == 0 {
		opts.ReadBufferSize = 4096
	}
	return &Linux{opts: opts, fd: -1}
}

func (p *Linux) Open() error {
	fd, err := unix.Open(p.opts.Name, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return err
	}
	p.fd = fd
	p.Init()

	var t termios2
	if err := ioctl(p.fd, tcgets2, unsafe.Pointer(&t)); err != nil {
		unix.Close(fd)
		p.fd = -1
		return err
	}
	t.Iflag = 0
	t.Oflag = 0
	t.Lflag = 0
	t.Cflag = cs8 | cread | clocal
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0
	if err := ioctl(p.fd, tcsets2, unsafe.Pointer(&t)); err != nil {
		unix.Close(fd)
		p.fd = -1
		return err
	}
	return nil
}

func (p *Linux) Close() error {
	if p.fd < 0 {
		return nil
	}
	fd := p.fd
	p.fd = -1
	return unix.Close(fd)
}

// SetBaud applies rate as a custom BOTHER speed via termios2, sidestepping
// the fixed Bnnnn enumeration so non-standard servo baud rates (1,000,000,
// 500,000, ...) are representable.
func (p *Linux) SetBaud(rate int) error {
	if p.fd < 0 {
		return ErrClosed
	}
	var t termios2
	if err := ioctl(p.fd, tcgets2, unsafe.Pointer(&t)); err != nil {
		return err
	}
	t.Cflag &^= cbaud
	t.Cflag |= bother
	t.Ispeed = uint32(rate)
	t.Ospeed = uint32(rate)
	return ioctl(p.fd, tcsets2, unsafe.Pointer(&t))
}

func (p *Linux) Clear() error {
	if p.fd < 0 {
		return ErrClosed
	}
	return unix.IoctlSetInt(p.fd, unix.TCFLSH, unix.TCIOFLUSH)
}

// Read is non-blocking: the fd was opened O_NONBLOCK, so a read against an
// empty input queue returns (nil, nil) rather than blocking, matching the
// Port contract's polling model.
func (p *Linux) Read(n int) ([]byte, error) {
	if p.fd < 0 {
		return nil, ErrClosed
	}
	buf := make([]byte, n)
	got, err := unix.Read(p.fd, buf)
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if got < 0 {
		got = 0
	}
	return buf[:got], nil
}

func (p *Linux) Write(buf []byte) (int, error) {
	if p.fd < 0 {
		return 0, ErrClosed
	}
	return unix.Write(p.fd, buf)
}

// waitReadable blocks up to timeout for the fd to become readable. No Port
// method calls it; Read stays non-blocking.
func (p *Linux) waitReadable(timeout time.Duration) error {
	pfd := []unix.PollFd{{Fd: int32(p.fd), Events: unix.POLLIN}}
	ms := int(timeout / time.Millisecond)
	n, err := unix.Poll(pfd, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}
	if n == 0 {
		return syscall.ETIMEDOUT
	}
	return nil
}
