//go:build linux

package netio

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// linkPollInterval is how often the carrier files are sampled. Carrier
// polling through sysfs is cheap and avoids a netlink subscription for
// four ports.
const linkPollInterval = time.Second

// AFPacketDriver binds one AF_PACKET socket per configured interface and
// bridges raw frames between the kernel and the datapath.
//
// Socket setup per port:
//  1. socket(AF_PACKET, SOCK_RAW, htons(ETH_P_ALL))
//  2. bind to the interface's ifindex
//  3. PACKET_IGNORE_OUTGOING so our own transmissions do not loop back
type AFPacketDriver struct {
	logger *slog.Logger

	// ifNames maps port index (0-based) to interface name; empty slots
	// are disabled ports.
	ifNames [MaxPorts]string

	fds     [MaxPorts]int
	ifindex [MaxPorts]int

	frames chan Frame
	links  chan LinkEvent

	// rxDropped counts frames dropped on a full ingress queue.
	rxDropped atomic.Uint64

	writeMu sync.Mutex
}

// NewAFPacketDriver opens an AF_PACKET socket for every named interface.
// ifNames is indexed by 0-based port; empty names are skipped.
func NewAFPacketDriver(ifNames [MaxPorts]string, logger *slog.Logger) (*AFPacketDriver, error) {
	d := &AFPacketDriver{
		logger:  logger.With(slog.String("component", "netio")),
		ifNames: ifNames,
		frames:  make(chan Frame, rxQueueLen),
		links:   make(chan LinkEvent, MaxPorts*2),
	}
	for i := range d.fds {
		d.fds[i] = -1
	}

	for i, name := range ifNames {
		if name == "" {
			continue
		}
		if err := d.openPort(i, name); err != nil {
			d.Close()
			return nil, err
		}
	}
	return d, nil
}

// openPort creates and binds the raw socket for one interface.
func (d *AFPacketDriver) openPort(idx int, name string) error {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return fmt.Errorf("port %d interface %s: %w", idx+1, name, err)
	}

	proto := htons(unix.ETH_P_ALL)
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(proto))
	if err != nil {
		return fmt.Errorf("port %d socket: %w", idx+1, err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_PACKET, unix.PACKET_IGNORE_OUTGOING, 1); err != nil {
		// Older kernels reject this option; looped-back transmissions
		// are then filtered by the datapath's match on ingress port.
		d.logger.Debug("PACKET_IGNORE_OUTGOING unsupported",
			slog.String("interface", name),
			slog.String("error", err.Error()),
		)
	}

	sa := &unix.SockaddrLinklayer{
		Protocol: proto,
		Ifindex:  iface.Index,
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("port %d bind %s: %w", idx+1, name, err)
	}

	d.fds[idx] = fd
	d.ifindex[idx] = iface.Index
	d.logger.Info("port opened",
		slog.Int("port", idx+1),
		slog.String("interface", name),
	)
	return nil
}

// htons converts a short to network byte order for the socket protocol.
func htons(v uint16) uint16 {
	return v<<8 | v>>8
}

// Frames returns the bounded ingress queue.
func (d *AFPacketDriver) Frames() <-chan Frame { return d.frames }

// Links returns the link state event channel.
func (d *AFPacketDriver) Links() <-chan LinkEvent { return d.links }

// RxDropped returns the count of frames dropped on a full ingress queue.
func (d *AFPacketDriver) RxDropped() uint64 { return d.rxDropped.Load() }

// Run starts one receive goroutine per open port plus the link monitor,
// and blocks until the context is canceled.
func (d *AFPacketDriver) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := range d.fds {
		if d.fds[i] < 0 {
			continue
		}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			d.recvLoop(ctx, idx)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.linkLoop(ctx)
	}()

	<-ctx.Done()
	d.Close()
	wg.Wait()
	close(d.frames)
	close(d.links)
	return nil
}

// recvLoop reads frames from one port socket into the shared ingress
// queue. A full queue drops the frame, never blocks the socket.
func (d *AFPacketDriver) recvLoop(ctx context.Context, idx int) {
	fd := d.fds[idx]
	for {
		buf := make([]byte, MaxFrameSize+FrameHeadroom)
		n, _, err := unix.Recvfrom(fd, buf[:MaxFrameSize], 0)
		if err != nil {
			if ctx.Err() != nil || err == unix.EBADF {
				return
			}
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			d.logger.Warn("port receive failed",
				slog.Int("port", idx+1),
				slog.String("error", err.Error()),
			)
			return
		}
		if n == 0 {
			continue
		}

		select {
		case d.frames <- Frame{Data: buf, Len: n, Port: uint8(idx + 1)}:
		default:
			d.rxDropped.Add(1)
		}
	}
}

// WriteFrame transmits the frame on every port set in the bitmap.
func (d *AFPacketDriver) WriteFrame(frame []byte, portBitmap uint8) error {
	if portBitmap == 0 {
		return ErrInvalidPortBitmap
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	var firstErr error
	for i := 0; i < MaxPorts; i++ {
		if portBitmap&(1<<i) == 0 || d.fds[i] < 0 {
			continue
		}
		sa := &unix.SockaddrLinklayer{
			Protocol: htons(unix.ETH_P_ALL),
			Ifindex:  d.ifindex[i],
			Halen:    6,
		}
		if err := unix.Sendto(d.fds[i], frame, 0, sa); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("port %d send: %w", i+1, err)
		}
	}
	return firstErr
}

// linkLoop polls the sysfs carrier files and emits transitions.
func (d *AFPacketDriver) linkLoop(ctx context.Context) {
	var last [MaxPorts]bool
	ticker := time.NewTicker(linkPollInterval)
	defer ticker.Stop()

	// Prime the initial state so the datapath advertises links that were
	// already up at start.
	for i, name := range d.ifNames {
		if name == "" {
			continue
		}
		up := carrierUp(name)
		last[i] = up
		d.links <- LinkEvent{Port: uint8(i + 1), Up: up}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for i, name := range d.ifNames {
				if name == "" {
					continue
				}
				if up := carrierUp(name); up != last[i] {
					last[i] = up
					select {
					case d.links <- LinkEvent{Port: uint8(i + 1), Up: up}:
					default:
					}
				}
			}
		}
	}
}

// carrierUp reads the sysfs carrier flag for an interface.
func carrierUp(ifName string) bool {
	b, err := os.ReadFile("/sys/class/net/" + ifName + "/carrier")
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(b)) == "1"
}

// Close closes every port socket. Safe to call more than once.
func (d *AFPacketDriver) Close() {
	for i, fd := range d.fds {
		if fd >= 0 {
			_ = unix.Close(fd)
			d.fds[i] = -1
		}
	}
}
