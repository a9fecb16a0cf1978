// Package encoder synthesizes exotic VM programs that print a given text.
//
// Programs are built left to right without jumps, so the code and data
// pointers stay equal and every instruction operates on its own cell. At
// a given address exactly one printable character decodes to each
// instruction, which leaves three useful moves per cell (crazy, rotate,
// no-op) before the output instruction that emits the accumulator.
package encoder

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/djlacavera21/Apophis/malbolge"
)

var log = commonlog.GetLogger("apophis.encoder")

// ErrUnencodable is returned when no program was found for the target.
var ErrUnencodable = errors.New("encoder: target cannot be encoded")

const (
	// DefaultCandidates is the number of alternative end states kept per
	// target byte for backtracking.
	DefaultCandidates = 3

	// DefaultMaxExpansions is the search effort allowed per target byte.
	// The budget of one Encode is this times the target length, so long
	// targets run out of memory cells before they run out of budget.
	DefaultMaxExpansions = 100_000
)

type config struct {
	candidates    int
	maxExpansions int
}

// Option configures Encode.
type Option func(*config)

// WithCandidates sets how many alternatives are kept per target byte.
func WithCandidates(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.candidates = n
		}
	}
}

// WithMaxExpansions sets the number of search nodes that may be expanded
// per target byte.
func WithMaxExpansions(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxExpansions = n
		}
	}
}

// state is the part of the machine the search tracks: the accumulator
// and the address of the next instruction.
type state struct {
	a    malbolge.Word
	addr int
}

// moves are the instructions the search may place before an output.
var moves = [...]malbolge.Opcode{malbolge.OpCrazy, malbolge.OpRotate, malbolge.OpNop}

// advance applies op at s.addr.
func advance(s state, op malbolge.Opcode) state {
	next := state{a: s.a, addr: s.addr + 1}
	raw := malbolge.Word(malbolge.RawFor(op, s.addr))
	switch op {
	case malbolge.OpCrazy:
		next.a = malbolge.Crazy(s.a, raw)
	case malbolge.OpRotate:
		next.a = malbolge.Rotate(raw)
	}
	return next
}

// stateKey folds a state into a map key. Only the address modulo 94
// matters for which characters are available.
func stateKey(s state) uint32 {
	return uint32(s.a)*94 + uint32(s.addr%94)
}

var (
	reachOnce sync.Once
	reachable [256]bool
)

// Encodable reports whether b can appear in an encoded target. Bytes are
// encodable when some accumulator value reachable from the initial state
// is congruent to b modulo 256.
func Encodable(b byte) bool {
	reachOnce.Do(func() {
		start := state{}
		seen := map[uint32]struct{}{stateKey(start): {}}
		queue := []state{start}
		for len(queue) > 0 {
			s := queue[0]
			queue = queue[1:]
			reachable[s.a%256] = true
			for _, op := range moves {
				n := advance(s, op)
				k := stateKey(n)
				if _, ok := seen[k]; ok {
					continue
				}
				seen[k] = struct{}{}
				n.addr %= 94
				queue = append(queue, n)
			}
		}
	})
	return reachable[b]
}

// Encode returns exotic VM source whose output is exactly target.
func Encode(target string, opts ...Option) (string, error) {
	cfg := config{candidates: DefaultCandidates, maxExpansions: DefaultMaxExpansions}
	for _, opt := range opts {
		opt(&cfg)
	}

	for i := 0; i < len(target); i++ {
		if !Encodable(target[i]) {
			return "", fmt.Errorf("%w: byte %#02x at offset %d is outside the encodable set", ErrUnencodable, target[i], i)
		}
	}

	s := &search{cfg: cfg, budget: cfg.budget(len(target)), target: target, failed: make(map[failKey]struct{})}
	prog, err := s.run()
	if err != nil {
		return "", err
	}

	src := string(prog)
	verify(src, target)
	log.Debugf("encoded %d bytes into %d cells (%d nodes expanded)", len(target), len(src), s.expanded)
	return src, nil
}

// verify re-runs the generated program. A mismatch is a bug in the
// search, not a property of the input.
func verify(src, target string) {
	out, err := malbolge.Execute(src)
	if err != nil {
		panic(fmt.Sprintf("encoder: generated program failed: %v", err))
	}
	if out != target {
		panic(fmt.Sprintf("encoder: generated program printed %q, want %q", out, target))
	}
}
