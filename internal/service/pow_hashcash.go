package service

import (
	"context"
	crand "crypto/rand"
	"crypto/sha256"
	"encoding"
	"fmt"
	"io"
	mrand "math/rand/v2"
	"sync"

	"github.com/dayanaadylkhanova/wisdom-pow/internal/entity"
)

const ctxCheckEvery = 4096

// Hashcash issues, verifies and solves sha256 leading-zero-nibble puzzles.
type Hashcash struct {
	mu   sync.Mutex
	rand io.Reader
}

func NewHashcash() *Hashcash { return &Hashcash{rand: crand.Reader} }

// NewHashcashWith доп. конструктор для тестов/DI: r may be a seeded source.
func NewHashcashWith(r io.Reader) *Hashcash { return &Hashcash{rand: r} }

func (h *Hashcash) read(b []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.ReadFull(h.rand, b)
	return err
}

func (h *Hashcash) NewPuzzle(complexity uint8) (entity.Puzzle, error) {
	p := entity.Puzzle{Complexity: complexity}
	if err := h.read(p.Value[:]); err != nil {
		return entity.Puzzle{}, fmt.Errorf("puzzle value: %w", err)
	}
	return p, nil
}

func (h *Hashcash) Verify(p entity.Puzzle, s entity.Solution) bool {
	return IsValidSolution(p, s)
}

// Solve brute-forces p with a ChaCha8 stream seeded from the Hashcash source.
func (h *Hashcash) Solve(ctx context.Context, p entity.Puzzle) (entity.Solution, uint64, error) {
	var seed [32]byte
	if err := h.read(seed[:]); err != nil {
		return entity.Solution{}, 0, fmt.Errorf("solver seed: %w", err)
	}
	solver, err := NewSolver(p)
	if err != nil {
		return entity.Solution{}, 0, err
	}
	return solver.Solve(ctx, mrand.NewChaCha8(seed))
}

func leadingZeroNibbles(digest []byte, complexity uint8) uint8 {
	limit := int(complexity)/2 + 1
	if limit > len(digest) {
		limit = len(digest)
	}
	var n uint8
	for _, b := range digest[:limit] {
		if b>>4 != 0 {
			break
		}
		n++
		if b&0x0f != 0 {
			break
		}
		n++
	}
	return n
}

func IsValidSolution(p entity.Puzzle, s entity.Solution) bool {
	var msg [entity.PuzzleValueSize + entity.SolutionSize]byte
	copy(msg[:], p.Value[:])
	copy(msg[entity.PuzzleValueSize:], s[:])
	sum := sha256.Sum256(msg[:])
	return leadingZeroNibbles(sum[:], p.Complexity) >= p.Complexity
}

// Solver keeps the sha256 state after absorbing the puzzle value and
// restores it for every candidate.
type Solver struct {
	puzzle entity.Puzzle
	prefix []byte
}

func NewSolver(p entity.Puzzle) (*Solver, error) {
	h := sha256.New()
	h.Write(p.Value[:])
	state, err := h.(encoding.BinaryMarshaler).MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("snapshot hash state: %w", err)
	}
	return &Solver{puzzle: p, prefix: state}, nil
}

func (s *Solver) IsValid(sol entity.Solution) bool {
	h := sha256.New()
	if err := h.(encoding.BinaryUnmarshaler).UnmarshalBinary(s.prefix); err != nil {
		return false
	}
	h.Write(sol[:])
	var buf [sha256.Size]byte
	return leadingZeroNibbles(h.Sum(buf[:0]), s.puzzle.Complexity) >= s.puzzle.Complexity
}

// Solve draws candidates from r until one is accepted. There is no attempt cap.
func (s *Solver) Solve(ctx context.Context, r io.Reader) (entity.Solution, uint64, error) {
	var (
		sol      entity.Solution
		attempts uint64
	)
	for {
		if attempts%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return entity.Solution{}, attempts, err
			}
		}
		if _, err := io.ReadFull(r, sol[:]); err != nil {
			return entity.Solution{}, attempts, fmt.Errorf("candidate: %w", err)
		}
		attempts++
		if s.IsValid(sol) {
			return sol, attempts, nil
		}
	}
}
