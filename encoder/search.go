package encoder

import (
	"fmt"
	"math"

	"github.com/djlacavera21/Apophis/malbolge"
)

// budget is the total expansion allowance for a target of n bytes.
func (c config) budget(n int) int {
	if n < 1 {
		n = 1
	}
	if c.maxExpansions > math.MaxInt/n {
		return math.MaxInt
	}
	return c.maxExpansions * n
}

// candidate is one way to emit a target byte from a given state.
type candidate struct {
	path []malbolge.Opcode // moves before the output instruction
	end  state             // state after the output instruction
}

// frame records the choice made for one target byte.
type frame struct {
	start   state
	cands   []candidate
	next    int
	progLen int
}

type failKey struct {
	idx int
	key uint32
}

type search struct {
	cfg      config
	budget   int
	target   string
	prog     []byte
	frames   []frame
	failed   map[failKey]struct{}
	expanded int
}

// run builds the program, backtracking over candidates when a byte
// cannot be reached from the state the previous choices left behind.
func (s *search) run() ([]byte, error) {
	cur := state{}
	for len(s.frames) < len(s.target) {
		idx := len(s.frames)
		fk := failKey{idx: idx, key: stateKey(cur)}

		var cands []candidate
		if _, dead := s.failed[fk]; !dead {
			var err error
			cands, err = s.candidates(cur, s.target[idx])
			if err != nil {
				return nil, err
			}
		}
		if len(cands) == 0 {
			s.failed[fk] = struct{}{}
			next, ok := s.backtrack()
			if !ok {
				return nil, fmt.Errorf("%w: byte %d (%q) unreachable", ErrUnencodable, idx, s.target[idx])
			}
			cur = next
			continue
		}

		s.frames = append(s.frames, frame{start: cur, cands: cands, progLen: len(s.prog)})
		cur = s.apply(cur, cands[0])
	}

	halt := malbolge.RawFor(malbolge.OpHalt, cur.addr)
	if cur.addr+1 > malbolge.MemSize {
		return nil, fmt.Errorf("%w: program exceeds memory", ErrUnencodable)
	}
	return append(s.prog, halt), nil
}

// backtrack moves to the next untried candidate of the most recent frame
// that has one, discarding later frames. It returns the resulting state.
func (s *search) backtrack() (state, bool) {
	for len(s.frames) > 0 {
		top := len(s.frames) - 1
		f := &s.frames[top]
		f.next++
		s.prog = s.prog[:f.progLen]
		if f.next < len(f.cands) {
			log.Debugf("backtracking to byte %d, candidate %d", top, f.next)
			return s.apply(f.start, f.cands[f.next]), true
		}
		s.failed[failKey{idx: top, key: stateKey(f.start)}] = struct{}{}
		s.frames = s.frames[:top]
	}
	return state{}, false
}

// apply appends the instructions for c starting at cur.
func (s *search) apply(cur state, c candidate) state {
	addr := cur.addr
	for _, op := range c.path {
		s.prog = append(s.prog, malbolge.RawFor(op, addr))
		addr++
	}
	s.prog = append(s.prog, malbolge.RawFor(malbolge.OpOutput, addr))
	return c.end
}

type node struct {
	st     state
	parent int
	op     malbolge.Opcode
}

// candidates runs a breadth-first search from start for accumulator values
// congruent to b modulo 256, returning up to cfg.candidates paths with
// distinct end accumulators, shortest first.
func (s *search) candidates(start state, b byte) ([]candidate, error) {
	var out []candidate
	ends := make(map[malbolge.Word]struct{})
	seen := map[uint32]struct{}{stateKey(start): {}}
	nodes := []node{{st: start, parent: -1}}

	for i := 0; i < len(nodes); i++ {
		n := nodes[i]
		if byte(n.st.a%256) == b {
			if _, dup := ends[n.st.a]; !dup {
				ends[n.st.a] = struct{}{}
				out = append(out, candidate{
					path: pathTo(nodes, i),
					end:  state{a: n.st.a, addr: n.st.addr + 1},
				})
				if len(out) >= s.cfg.candidates {
					break
				}
			}
		}

		// Leave room for the output and halt instructions.
		if n.st.addr+2 >= malbolge.MemSize {
			continue
		}
		s.expanded++
		if s.expanded > s.budget {
			return nil, fmt.Errorf("%w: search budget of %d nodes (%d per byte) exhausted", ErrUnencodable, s.budget, s.cfg.maxExpansions)
		}
		for _, op := range moves {
			next := advance(n.st, op)
			k := stateKey(next)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			nodes = append(nodes, node{st: next, parent: i, op: op})
		}
	}
	return out, nil
}

func pathTo(nodes []node, i int) []malbolge.Opcode {
	var path []malbolge.Opcode
	for ; nodes[i].parent >= 0; i = nodes[i].parent {
		path = append(path, nodes[i].op)
	}
	for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
		path[l], path[r] = path[r], path[l]
	}
	return path
}
