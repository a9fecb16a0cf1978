package malbolge

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("apophis.malbolge")

// StopReason tells why a machine stopped running.
type StopReason int

const (
	StopNone     StopReason = iota // still runnable
	StopHalt                       // executed the halt instruction
	StopLeftCode                   // code pointer reached a cell outside 33..126
)

func (r StopReason) String() string {
	switch r {
	case StopHalt:
		return "halt"
	case StopLeftCode:
		return "left code"
	default:
		return "running"
	}
}

// Trace describes one instruction just before it executes.
type Trace struct {
	Step    uint64
	A, C, D Word
	Cell    Word
	Op      Opcode
}

// Machine is the execution state of one program: memory, the three
// registers and the halted flag.
type Machine struct {
	Mem     Memory
	A, C, D Word
	Halted  bool
	Stop    StopReason
	Steps   uint64
	Length  int // program length in cells

	in  *bufio.Reader
	out bytes.Buffer
	cfg config
}

// Load builds a machine for src. The source must decode cell by cell to
// defined instructions; otherwise a *MalformedProgram is returned.
func Load(src string, opts ...Option) (*Machine, error) {
	m := &Machine{cfg: defaultConfig()}
	for _, opt := range opts {
		opt(&m.cfg)
	}
	n, err := load(src, &m.Mem)
	if err != nil {
		return nil, err
	}
	m.Length = n
	if m.cfg.input != nil {
		m.in = bufio.NewReader(m.cfg.input)
	}
	return m, nil
}

// Output returns everything written by output instructions so far.
func (m *Machine) Output() string {
	return m.out.String()
}

// check verifies register and cell ranges.
func (m *Machine) check() error {
	switch {
	case m.A > MaxWord:
		return fmt.Errorf("accumulator out of range: %d", m.A)
	case m.C > MaxWord:
		return fmt.Errorf("code pointer out of range: %d", m.C)
	case m.D > MaxWord:
		return fmt.Errorf("data pointer out of range: %d", m.D)
	case m.Mem[m.C] > MaxWord || m.Mem[m.D] > MaxWord:
		return fmt.Errorf("cell value out of range")
	}
	return nil
}

func (m *Machine) fault(err error) *RuntimeFault {
	return &RuntimeFault{Step: m.Steps, A: m.A, C: m.C, D: m.D, Err: err}
}

// Step executes one instruction. It returns false once the machine has
// stopped. An instruction, its self-modification and the pointer
// increments happen as one unit.
func (m *Machine) Step() (bool, error) {
	if m.Stop != StopNone {
		return false, nil
	}
	if err := m.check(); err != nil {
		return false, m.fault(err)
	}

	cell := m.Mem[m.C]
	if !isCode(cell) {
		m.Stop = StopLeftCode
		return false, nil
	}

	op := Decode(cell, m.C)
	if m.cfg.trace != nil {
		m.cfg.trace(Trace{Step: m.Steps, A: m.A, C: m.C, D: m.D, Cell: cell, Op: op})
	}

	switch op {
	case OpJump:
		m.C = m.Mem[m.D]
	case OpOutput:
		m.out.WriteByte(byte(m.A % 256))
	case OpInput:
		m.A = m.readInput()
	case OpRotate:
		m.A = Rotate(m.Mem[m.D])
		m.Mem[m.D] = m.A
	case OpMoveD:
		m.D = m.Mem[m.D]
	case OpCrazy:
		m.A = Crazy(m.A, m.Mem[m.D])
		m.Mem[m.D] = m.A
	case OpHalt:
		m.Steps++
		m.Halted = true
		m.Stop = StopHalt
		return false, nil
	}

	m.Mem[m.C] = EncryptWord(m.Mem[m.C])
	m.C = (m.C + 1) % MemSize
	m.D = (m.D + 1) % MemSize
	m.Steps++
	return true, nil
}

func (m *Machine) readInput() Word {
	if m.in == nil {
		return MaxWord
	}
	b, err := m.in.ReadByte()
	if err != nil {
		if err != io.EOF {
			log.Warningf("input read failed, treating as end of input: %v", err)
		}
		return MaxWord
	}
	return Word(b)
}

// Run steps the machine until it stops, the context is done or the step
// budget is exhausted.
func (m *Machine) Run(ctx context.Context) error {
	for {
		if m.cfg.maxSteps > 0 && m.Steps >= m.cfg.maxSteps {
			return m.fault(ErrStepBudget)
		}
		if m.Steps%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return m.fault(err)
			}
		}
		running, err := m.Step()
		if err != nil {
			return err
		}
		if !running {
			return nil
		}
	}
}

// Result summarizes a finished execution.
type Result struct {
	Output  string
	Halted  bool
	Stop    StopReason
	Steps   uint64
	A, C, D Word
}

// Run loads and executes src. On a runtime fault the returned result
// still carries the output produced before the fault.
func Run(ctx context.Context, src string, opts ...Option) (*Result, error) {
	m, err := Load(src, opts...)
	if err != nil {
		return nil, err
	}
	runErr := m.Run(ctx)
	res := &Result{
		Output: m.Output(),
		Halted: m.Halted,
		Stop:   m.Stop,
		Steps:  m.Steps,
		A:      m.A,
		C:      m.C,
		D:      m.D,
	}
	log.Debugf("executed %d cells in %d steps (%s)", m.Length, m.Steps, m.Stop)
	return res, runErr
}

// Execute runs src and returns its output.
func Execute(src string, opts ...Option) (string, error) {
	res, err := Run(context.Background(), src, opts...)
	if res == nil {
		return "", err
	}
	return res.Output, err
}
