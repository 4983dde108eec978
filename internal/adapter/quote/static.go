package quote

import (
	"errors"
	"fmt"
	mrand "math/rand/v2"
	"os"
	"strings"
	"sync"
)

var ErrEmptyPool = errors.New("response pool must not be empty")

type Static struct {
	mu   sync.Mutex
	list []string
	r    *mrand.Rand
}

func NewStatic() *Static {
	return &Static{
		list: []string{
			"“Do. Or do not. There is no try.” – Yoda",
			"“Simplicity is the soul of efficiency.” – Austin Freeman",
			"“Programs must be written for people to read.” – Harold Abelson",
			"“Premature optimization is the root of all evil.” – Donald Knuth",
			"“Talk is cheap. Show me the code.” – Linus Torvalds",
		},
	}
}

// NewStaticWith доп. конструктор для тестов/DI. r may be nil.
func NewStaticWith(list []string, r *mrand.Rand) (*Static, error) {
	if len(list) == 0 {
		return nil, ErrEmptyPool
	}
	return &Static{list: list, r: r}, nil
}

// LoadFile reads phrases separated by blank lines.
func LoadFile(path string, r *mrand.Rand) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read responses: %w", err)
	}
	s, err := NewStaticWith(Parse(string(data)), r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse splits text into phrases on blank lines. Lines are trimmed and
// lines of one phrase are joined with "\n".
func Parse(text string) []string {
	var (
		out   []string
		group []string
	)
	flush := func() {
		if len(group) > 0 {
			out = append(out, strings.Join(group, "\n"))
			group = group[:0]
		}
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.Trim(line, " \t\r")
		if line == "" {
			flush()
			continue
		}
		group = append(group, line)
	}
	flush()
	return out
}

func (s *Static) Len() int { return len(s.list) }

func (s *Static) Random() string {
	if len(s.list) == 0 {
		return ""
	}
	if s.r != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.list[s.r.IntN(len(s.list))]
	}
	return s.list[mrand.IntN(len(s.list))]
}
