package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Handler answers a single request. A returned error is sent to the client as a RemoteError.
type Handler func(ctx context.Context, request []byte) ([]byte, error)

var ErrNotListening = errors.New("server is not listening")

// Server accepts requests of one Kind on one address
type Server struct {
	Kind    Kind
	Address string
	Handler Handler
	Logger  zerolog.Logger
	// limit on reading a request and writing its response, DefaultTimeout if zero
	Timeout time.Duration

	listener net.Listener
	packets  net.PacketConn
}

func NewServer(kind Kind, address string, handler Handler, logger zerolog.Logger) *Server {
	return &Server{
		Kind:    kind,
		Address: address,
		Handler: handler,
		Logger:  logger.With().Str("transport", kind.String()).Logger(),
	}
}

// Listen binds the address. A port of 0 picks a free port, see Addr.
func (s *Server) Listen() error {
	var err error

	switch s.Kind {
	case TCP:
		s.listener, err = net.Listen("tcp", s.Address)
	case UDP:
		s.packets, err = net.ListenPacket("udp", s.Address)
	default:
		err = errors.Wrapf(ErrUnknownKind, "%d", int(s.Kind))
	}

	return errors.Wrapf(err, "listening on %v", s.Address)
}

// Addr is the bound address, nil before Listen
func (s *Server) Addr() net.Addr {
	switch {
	case s.listener != nil:
		return s.listener.Addr()
	case s.packets != nil:
		return s.packets.LocalAddr()
	default:
		return nil
	}
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve handles requests until ctx is cancelled, then waits for those in progress.
// Cancellation is a clean shutdown and returns nil.
func (s *Server) Serve(ctx context.Context) error {
	var closer func() error

	switch {
	case s.listener != nil:
		closer = s.listener.Close
	case s.packets != nil:
		closer = s.packets.Close
	default:
		return ErrNotListening
	}

	stop := context.AfterFunc(ctx, func() { closer() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	s.Logger.Info().Str("address", s.Addr().String()).Msg("serving")

	var err error
	if s.listener != nil {
		err = s.serveStreams(ctx, &wg)
	} else {
		err = s.servePackets(ctx, &wg)
	}

	if ctx.Err() != nil {
		return nil
	}

	closer()
	return err
}

func (s *Server) timeout() time.Duration {
	if s.Timeout <= 0 {
		return DefaultTimeout
	}
	return s.Timeout
}

func (s *Server) serveStreams(ctx context.Context, wg *sync.WaitGroup) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return errors.Wrap(err, "error accepting connection")
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			s.serveConnection(ctx, conn)
		}()
	}
}

func (s *Server) serveConnection(ctx context.Context, conn net.Conn) {
	logger := s.Logger.With().Str("peer", conn.RemoteAddr().String()).Logger()

	conn.SetDeadline(time.Now().Add(s.timeout()))

	request, err := readFrame(conn)
	if err != nil {
		logger.Warn().Err(err).Msg("unable to read request")
		return
	}

	response := s.handle(ctx, logger, request)

	conn.SetDeadline(time.Now().Add(s.timeout()))
	if err := writeFrame(conn, response); err != nil {
		logger.Warn().Err(err).Msg("unable to send response")
	}
}

func (s *Server) servePackets(ctx context.Context, wg *sync.WaitGroup) error {
	buffer := make([]byte, MaxDatagramSize)

	for {
		n, peer, err := s.packets.ReadFrom(buffer)
		if err != nil {
			return errors.Wrap(err, "error receiving datagram")
		}

		request := make([]byte, n)
		copy(request, buffer[:n])

		wg.Add(1)
		go func() {
			defer wg.Done()

			logger := s.Logger.With().Str("peer", peer.String()).Logger()
			response := s.handle(ctx, logger, request)

			if len(response) > MaxDatagramSize {
				response = encodeResponse(nil, errors.Wrapf(
					ErrPayloadTooLarge,
					"response of %v bytes over udp",
					len(response)-1,
				))
			}

			if _, err := s.packets.WriteTo(response, peer); err != nil {
				logger.Warn().Err(err).Msg("unable to send response")
			}
		}()
	}
}

func (s *Server) handle(ctx context.Context, logger zerolog.Logger, request []byte) []byte {
	start := time.Now()
	response, err := s.Handler(ctx, request)

	if err != nil {
		logger.Warn().Err(err).Msg("request failed")
	} else {
		logger.Debug().
			Int("request_bytes", len(request)).
			Int("response_bytes", len(response)).
			Dur("elapsed", time.Since(start)).
			Msg("request handled")
	}

	return encodeResponse(response, err)
}
