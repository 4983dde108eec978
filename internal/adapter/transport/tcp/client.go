package tcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/dayanaadylkhanova/wisdom-pow/internal/adapter/transport/frame"
	"github.com/dayanaadylkhanova/wisdom-pow/internal/entity"
)

var (
	ErrRejected         = errors.New("solution rejected")
	ErrResponseTooLarge = errors.New("response exceeds size limit")
)

const DefaultMaxResponseSize = 1 << 20

type ClientOptions struct {
	Addr        string
	DialTimeout time.Duration
	// MaxResponseSize caps the announced payload size. Zero selects DefaultMaxResponseSize.
	MaxResponseSize uint64
}

// Client performs exactly one puzzle exchange per GetResponse call.
type Client struct {
	log    *slog.Logger
	opts   ClientOptions
	solver Solver
}

func NewClient(log *slog.Logger, opts ClientOptions, solver Solver) *Client {
	if opts.MaxResponseSize == 0 {
		opts.MaxResponseSize = DefaultMaxResponseSize
	}
	return &Client{log: log, opts: opts, solver: solver}
}

func (c *Client) GetResponse(ctx context.Context) (string, error) {
	d := net.Dialer{Timeout: c.opts.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.opts.Addr)
	if err != nil {
		return "", fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	return c.session(ctx, frame.New(conn))
}

func (c *Client) session(ctx context.Context, tr *frame.Transport) (string, error) {
	var p entity.Puzzle
	if err := tr.Receive(&p, entity.PuzzleSize); err != nil {
		return "", fmt.Errorf("receive puzzle: %w", err)
	}
	c.log.Info("puzzle received", "complexity", p.Complexity)

	started := time.Now()
	sol, attempts, err := c.solver.Solve(ctx, p)
	if err != nil {
		return "", fmt.Errorf("solve: %w", err)
	}
	c.log.Info("puzzle solved", "attempts", attempts, "took", time.Since(started).String())

	if err := tr.Send(sol); err != nil {
		return "", fmt.Errorf("send solution: %w", err)
	}

	var st entity.SolutionState
	if err := tr.Receive(&st, entity.SolutionStateSize); err != nil {
		return "", fmt.Errorf("receive verdict: %w", err)
	}
	if st == entity.Rejected {
		return "", ErrRejected
	}
	c.log.Debug("solution accepted")

	var size entity.PayloadSize
	if err := tr.Receive(&size, entity.PayloadSizeSize); err != nil {
		return "", fmt.Errorf("receive response size: %w", err)
	}
	if uint64(size) > c.opts.MaxResponseSize {
		return "", fmt.Errorf("%w: %d > %d", ErrResponseTooLarge, size, c.opts.MaxResponseSize)
	}
	var text entity.Response
	if err := tr.Receive(&text, int(size)); err != nil {
		return "", fmt.Errorf("receive response: %w", err)
	}
	return string(text), nil
}
