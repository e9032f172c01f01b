// Package receiver exposes a single bounded-blocking multicast UDP read
// operation, joining the group with net.ListenMulticastUDP and an
// optional net.InterfaceByName binding.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"bsefeed/config"
)

// ErrTimeout is returned by NextDatagram when no datagram arrived within
// the configured bound. It is not a failure: the caller should retry
// silently.
var ErrTimeout = errors.New("receiver: no datagram within timeout")

// Datagram is one received UDP payload with its source address.
type Datagram struct {
	Payload []byte
	Source  *net.UDPAddr
}

// Receiver reads one datagram at a time from a joined multicast group.
type Receiver struct {
	conn    *net.UDPConn
	timeout time.Duration
	scratch []byte
}

// maxDatagramSize is generous headroom above the 564-byte canonical
// frame so a differently sized datagram is still read whole rather than
// truncated; the Decoder, not the Receiver, rejects unrecognized sizes.
const maxDatagramSize = 65536

// New joins the configured multicast group and returns a Receiver bound
// to it. timeout bounds every NextDatagram call (default approximately
// one second).
func New(mc config.MulticastConfig, bufferSize int, timeout time.Duration) (*Receiver, error) {
	ip := net.ParseIP(mc.IP)
	if ip == nil {
		return nil, fmt.Errorf("receiver: invalid multicast.ip %q", mc.IP)
	}
	addr := &net.UDPAddr{IP: ip, Port: mc.Port}

	var iface *net.Interface
	if mc.Interface != "" {
		i, err := net.InterfaceByName(mc.Interface)
		if err != nil {
			return nil, fmt.Errorf("receiver: interface %q: %w", mc.Interface, err)
		}
		iface = i
	}

	conn, err := net.ListenMulticastUDP("udp", iface, addr)
	if err != nil {
		return nil, fmt.Errorf("receiver: join %s:%d: %w", mc.IP, mc.Port, err)
	}
	if bufferSize > 0 {
		if err := conn.SetReadBuffer(bufferSize); err != nil {
			conn.Close()
			return nil, fmt.Errorf("receiver: set read buffer: %w", err)
		}
	}

	return newFromConn(conn, timeout), nil
}

func newFromConn(conn *net.UDPConn, timeout time.Duration) *Receiver {
	return &Receiver{conn: conn, timeout: timeout, scratch: make([]byte, maxDatagramSize)}
}

// NextDatagram blocks for at most the configured timeout waiting for one
// datagram. ctx is checked before the read so a cancellation observed
// between calls short-circuits immediately instead of starting a fresh
// bounded wait.
func (r *Receiver) NextDatagram(ctx context.Context) (Datagram, error) {
	if err := ctx.Err(); err != nil {
		return Datagram{}, err
	}

	if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
		return Datagram{}, fmt.Errorf("receiver: set read deadline: %w", err)
	}

	n, src, err := r.conn.ReadFromUDP(r.scratch)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return Datagram{}, ErrTimeout
		}
		return Datagram{}, fmt.Errorf("receiver: read: %w", err)
	}

	payload := make([]byte, n)
	copy(payload, r.scratch[:n])
	return Datagram{Payload: payload, Source: src}, nil
}

// Close releases the multicast socket. Called once at shutdown.
func (r *Receiver) Close() error {
	return r.conn.Close()
}
