package tcp

import (
	"context"

	"github.com/dayanaadylkhanova/wisdom-pow/internal/entity"
)

//go:generate mockgen -source=interfaces.go -destination=./server_mock.go -package=tcp

type PoW interface {
	NewPuzzle(complexity uint8) (entity.Puzzle, error)
	Verify(p entity.Puzzle, s entity.Solution) bool
}

type Solver interface {
	Solve(ctx context.Context, p entity.Puzzle) (entity.Solution, uint64, error)
}

type Quote interface {
	Random() string
}
