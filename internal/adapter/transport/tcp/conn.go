package tcp

import (
	"fmt"
	"net"
	"time"

	"github.com/dayanaadylkhanova/wisdom-pow/internal/adapter/transport/frame"
	"github.com/dayanaadylkhanova/wisdom-pow/internal/entity"
)

type connState uint8

const (
	stateInitial connState = iota
	statePuzzleSent
	stateClosed
)

// connection owns one accepted socket for a single puzzle exchange.
type connection struct {
	conn   net.Conn
	tr     *frame.Transport
	state  connState
	puzzle entity.Puzzle
}

func newConnection(c net.Conn) *connection {
	return &connection{conn: c, tr: frame.New(c), state: stateInitial}
}

// shutdown closes both directions, flushing the verdict before the FIN.
func (c *connection) shutdown() error {
	c.state = stateClosed
	if tc, ok := c.conn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
	return c.conn.Close()
}

func (s *Server) handle(conn net.Conn, complexity uint8) {
	s.inflight.Add(1)
	defer s.inflight.Add(-1)

	c := newConnection(conn)
	defer func() {
		if c.state != stateClosed {
			_ = conn.Close()
		}
	}()
	if s.opts.SolutionTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.opts.SolutionTimeout))
	}

	remote := conn.RemoteAddr().String()
	if err := s.exchange(c, complexity); err != nil {
		s.failed.Add(1)
		s.log.Warn("connection error", "remote", remote, "err", err)
		return
	}
	s.log.Debug("connection closed", "remote", remote)
}

func (s *Server) exchange(c *connection, complexity uint8) error {
	for {
		switch c.state {
		case stateInitial:
			p, err := s.pow.NewPuzzle(complexity)
			if err != nil {
				return fmt.Errorf("new puzzle: %w", err)
			}
			c.puzzle = p
			if err := c.tr.Send(p); err != nil {
				return fmt.Errorf("send puzzle: %w", err)
			}
			s.issued.Add(1)
			s.log.Debug("puzzle sent", "remote", c.conn.RemoteAddr().String(), "complexity", p.Complexity)
			c.state = statePuzzleSent

		case statePuzzleSent:
			var sol entity.Solution
			if err := c.tr.Receive(&sol, entity.SolutionSize); err != nil {
				return fmt.Errorf("receive solution: %w", err)
			}

			if s.pow.Verify(c.puzzle, sol) {
				if err := c.tr.Send(entity.Accepted); err != nil {
					return fmt.Errorf("send verdict: %w", err)
				}
				if err := c.tr.SendWithVarsize(entity.Response(s.quotes.Random())); err != nil {
					return fmt.Errorf("send response: %w", err)
				}
				s.accepted.Add(1)
				s.log.Info("solution accepted", "remote", c.conn.RemoteAddr().String())
			} else {
				if err := c.tr.Send(entity.Rejected); err != nil {
					return fmt.Errorf("send verdict: %w", err)
				}
				s.rejected.Add(1)
				s.log.Info("solution rejected", "remote", c.conn.RemoteAddr().String())
			}
			return c.shutdown()

		default:
			return nil
		}
	}
}
