package tcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/dayanaadylkhanova/wisdom-pow/internal/entity"
)

type Options struct {
	Addr string
	// SolutionTimeout bounds the whole exchange of one connection. Zero disables it.
	SolutionTimeout time.Duration
	ShutdownWait    time.Duration
	// MaxConns caps concurrently handled connections. Zero means unbounded.
	MaxConns int
	// AcceptRate is connections per second; zero disables limiting.
	AcceptRate  float64
	AcceptBurst int
}

type Server struct {
	log     *slog.Logger
	opts    Options
	pow     PoW
	quotes  Quote
	limiter *rate.Limiter
	slots   chan struct{}

	ln      net.Listener
	ready   chan struct{}
	wg      sync.WaitGroup
	connsMu sync.Mutex
	active  map[net.Conn]struct{}

	issued   atomic.Uint64
	accepted atomic.Uint64
	rejected atomic.Uint64
	failed   atomic.Uint64
	inflight atomic.Int64
}

func NewServer(log *slog.Logger, opts Options, pow PoW, quotes Quote) *Server {
	s := &Server{
		log:    log,
		opts:   opts,
		pow:    pow,
		quotes: quotes,
		ready:  make(chan struct{}),
		active: make(map[net.Conn]struct{}),
	}
	if opts.AcceptRate > 0 {
		burst := opts.AcceptBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.AcceptRate), burst)
	}
	if opts.MaxConns > 0 {
		s.slots = make(chan struct{}, opts.MaxConns)
	}
	return s
}

// Ready is closed once Run is listening.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound listener address, or nil before Run is listening.
func (s *Server) Addr() net.Addr {
	select {
	case <-s.ready:
		return s.ln.Addr()
	default:
		return nil
	}
}

func (s *Server) Stats() entity.Stats {
	return entity.Stats{
		Issued:   s.issued.Load(),
		Accepted: s.accepted.Load(),
		Rejected: s.rejected.Load(),
		Failed:   s.failed.Load(),
		Active:   s.inflight.Load(),
	}
}

func (s *Server) Run(ctx context.Context, complexity uint8) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.ln = ln
	close(s.ready)
	s.log.Info("server started",
		"addr", ln.Addr().String(),
		"complexity", complexity,
		"solution_timeout", s.opts.SolutionTimeout.String(),
		"max_conns", s.opts.MaxConns,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- s.acceptLoop(ctx, complexity) }()

	select {
	case <-ctx.Done():

		s.log.Info("shutdown: closing listener")
		_ = s.ln.Close()

		s.connsMu.Lock()
		for c := range s.active {
			_ = c.SetDeadline(time.Now().Add(200 * time.Millisecond))
			if tc, ok := c.(*net.TCPConn); ok {
				_ = tc.CloseWrite()
			}
		}
		s.connsMu.Unlock()

		done := make(chan struct{})
		go func() { s.wg.Wait(); close(done) }()
		select {
		case <-done:
			s.log.Info("shutdown: all connections drained")
		case <-time.After(s.opts.ShutdownWait):
			s.log.Warn("shutdown: force-close remaining connections")
			s.connsMu.Lock()
			for c := range s.active {
				_ = c.Close()
			}
			s.connsMu.Unlock()
		}
		return nil

	case err := <-errCh:
		_ = s.ln.Close()
		return err
	}
}

func (s *Server) acceptLoop(ctx context.Context, complexity uint8) error {
	for {
		if s.slots != nil {
			select {
			case s.slots <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
		}
		conn, err := s.ln.Accept()
		if err != nil {
			s.release()
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.log.Warn("temporary accept error", "err", err)
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		if s.limiter != nil && !s.limiter.Allow() {
			s.log.Warn("accept rate exceeded, dropping connection", "remote", conn.RemoteAddr().String())
			_ = conn.Close()
			s.release()
			continue
		}
		s.track(conn, true)
		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			defer s.release()
			defer s.track(c, false)
			s.handle(c, complexity)
		}(conn)
	}
}

func (s *Server) release() {
	if s.slots != nil {
		<-s.slots
	}
}

func (s *Server) track(c net.Conn, add bool) {
	s.connsMu.Lock()
	if add {
		s.active[c] = struct{}{}
	} else {
		delete(s.active, c)
	}
	s.connsMu.Unlock()
}
