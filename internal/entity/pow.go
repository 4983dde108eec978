package entity

const (
	PuzzleValueSize   = 16
	PuzzleSize        = 1 + PuzzleValueSize
	SolutionSize      = 16
	SolutionStateSize = 4
	PayloadSizeSize   = 8
)

// Puzzle is issued once per connection and never reused.
type Puzzle struct {
	Complexity uint8
	Value      [PuzzleValueSize]byte
}

type Solution [SolutionSize]byte

// SolutionState is the server verdict. Only Accepted and Rejected exist on the wire.
type SolutionState uint32

const (
	Accepted SolutionState = iota
	Rejected
)

func (s SolutionState) String() string {
	switch s {
	case Accepted:
		return "ACCEPTED"
	case Rejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// PayloadSize announces the encoded length of the Response that follows it.
type PayloadSize uint64

// Response is the text delivered after an accepted solution.
type Response string

type Stats struct {
	Issued   uint64 `json:"issued"`
	Accepted uint64 `json:"accepted"`
	Rejected uint64 `json:"rejected"`
	Failed   uint64 `json:"failed"`
	Active   int64  `json:"active"`
}
