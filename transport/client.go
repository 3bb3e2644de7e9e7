package transport

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
)

// TCPClient opens a connection per request
type TCPClient struct {
	Address string
	Timeout time.Duration
}

func (c *TCPClient) SendReceive(ctx context.Context, payload []byte) ([]byte, error) {
	dialer := net.Dialer{Timeout: c.Timeout}

	conn, err := dialer.DialContext(ctx, "tcp", c.Address)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to %v", c.Address)
	}
	defer conn.Close()

	var response []byte

	err = exchange(ctx, conn, c.Timeout, func() error {
		if err := writeFrame(conn, payload); err != nil {
			return errors.Wrap(err, "sending request")
		}

		var err error
		response, err = readFrame(conn)
		return errors.Wrap(err, "receiving response")
	})

	if err != nil {
		return nil, err
	}

	return decodeResponse(response)
}

// UDPClient sends a single datagram per request
type UDPClient struct {
	Address string
	Timeout time.Duration
}

func (c *UDPClient) SendReceive(ctx context.Context, payload []byte) ([]byte, error) {
	if len(payload) > MaxDatagramSize {
		return nil, errors.Wrapf(ErrPayloadTooLarge, "%v bytes over udp", len(payload))
	}

	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "udp", c.Address)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to %v", c.Address)
	}
	defer conn.Close()

	buffer := make([]byte, MaxDatagramSize+1)
	n := 0

	err = exchange(ctx, conn, c.Timeout, func() error {
		if _, err := conn.Write(payload); err != nil {
			return errors.Wrap(err, "sending request")
		}

		var err error
		n, err = conn.Read(buffer)
		return errors.Wrap(err, "receiving response")
	})

	if err != nil {
		return nil, err
	}

	return decodeResponse(buffer[:n])
}
