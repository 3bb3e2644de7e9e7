/*
Package transport moves a single request and its response between a client and a server over
TCP or UDP. It knows nothing about what is in the payloads.

Over TCP each connection carries one exchange, and both directions are framed with a 4 byte big endian
length. Over UDP the request and the response are each a single datagram, so both are limited to
MaxDatagramSize. There are no retries: a lost datagram is a timeout.
*/
package transport

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Kind is the network protocol used
type Kind int

const (
	TCP Kind = iota
	UDP
)

const (
	// MaxDatagramSize is the largest UDP payload, including the response status byte
	MaxDatagramSize = 65507
	// MaxFrameSize limits TCP frames, so that a bad length cannot exhaust memory
	MaxFrameSize = 1 << 30

	DefaultTimeout = 30 * time.Second
)

const (
	statusOK    byte = 0
	statusError byte = 1
)

var (
	ErrUnknownKind     = errors.New("unknown transport kind")
	ErrPayloadTooLarge = errors.New("payload too large for transport")
	ErrBadResponse     = errors.New("malformed response")
)

// RemoteError is an error returned by the server's handler
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "remote: " + e.Message
}

func (k Kind) String() string {
	switch k {
	case TCP:
		return "tcp"
	case UDP:
		return "udp"
	default:
		return "unknown"
	}
}

func (k Kind) network() string {
	return k.String()
}

// ParseKind accepts "tcp" or "udp", in any case
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "tcp":
		return TCP, nil
	case "udp":
		return UDP, nil
	default:
		return TCP, errors.Wrap(ErrUnknownKind, s)
	}
}

// ParseAddress splits "tcp://host:port" or "udp://host:port". An address without a scheme is TCP.
func ParseAddress(s string) (Kind, string, error) {
	scheme, address, found := strings.Cut(s, "://")
	if !found {
		return TCP, s, nil
	}

	kind, err := ParseKind(scheme)
	if err != nil {
		return TCP, "", err
	}

	if address == "" {
		return TCP, "", errors.Errorf("missing host in address %q", s)
	}

	return kind, address, nil
}

// Client sends a request and waits for its response
type Client interface {
	SendReceive(ctx context.Context, payload []byte) ([]byte, error)
}

// NewClient creates a client for the kind of transport. A zero timeout uses DefaultTimeout.
func NewClient(kind Kind, address string, timeout time.Duration) (Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	switch kind {
	case TCP:
		return &TCPClient{Address: address, Timeout: timeout}, nil
	case UDP:
		return &UDPClient{Address: address, Timeout: timeout}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownKind, "%d", int(kind))
	}
}

// the earlier of the context deadline and now + timeout
func deadline(ctx context.Context, timeout time.Duration) time.Time {
	d := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}

// exchange runs f on conn, interrupting any blocked IO if ctx is cancelled
func exchange(ctx context.Context, conn net.Conn, timeout time.Duration, f func() error) error {
	if err := conn.SetDeadline(deadline(ctx, timeout)); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	err := f()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	return err
}

func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return errors.Wrapf(ErrPayloadTooLarge, "%v bytes", len(payload))
	}

	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(payload)))

	if _, err := w.Write(size[:]); err != nil {
		return err
	}

	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var size [4]byte
	if _, err := io.ReadFull(r, size[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(size[:])
	if n > MaxFrameSize {
		return nil, errors.Wrapf(ErrPayloadTooLarge, "frame of %v bytes", n)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.Wrap(err, "reading frame")
	}

	return payload, nil
}

// responses lead with a status byte
func encodeResponse(payload []byte, err error) []byte {
	if err != nil {
		return append([]byte{statusError}, err.Error()...)
	}
	return append([]byte{statusOK}, payload...)
}

func decodeResponse(response []byte) ([]byte, error) {
	if len(response) == 0 {
		return nil, ErrBadResponse
	}

	switch response[0] {
	case statusOK:
		return response[1:], nil
	case statusError:
		return nil, &RemoteError{Message: string(response[1:])}
	default:
		return nil, errors.Wrapf(ErrBadResponse, "status %v", response[0])
	}
}
