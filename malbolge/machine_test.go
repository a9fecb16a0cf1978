package malbolge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

const (
	helloWorld      = "(=<`#9]~6ZY32Vx/4Rs+0No-&Jk)\"Fh}|Bcy?`=*z]Kw%oG4UUS0/@-ejc(:'8dc"
	helloWorldComma = "(=<`#9]~6ZY327Uv4-QsqpMn&+Ij\"'E%e{Ab~w=_:]Kw%o44Uqp0/Q?xNvL:`H%c#DD2^WV>gY;dts76qKJImZkj"
)

func TestExecutePrograms(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
		stop StopReason
	}{
		{"halt", "Q", "", StopHalt},
		{"crazy then output", ">b", "s", StopLeftCode},
		{"hello world", helloWorld, "Hello World!", StopHalt},
		{"hello comma", helloWorldComma, "Hello, world.", StopHalt},
		{"whitespace skipped", "> \n b", "s", StopLeftCode},
	}

	for _, tc := range tests {
		res, err := Run(context.Background(), tc.src)
		if err != nil {
			t.Fatalf("%s: Run error: %v", tc.name, err)
		}
		if res.Output != tc.want {
			t.Errorf("%s: output = %q, want %q", tc.name, res.Output, tc.want)
		}
		if res.Stop != tc.stop {
			t.Errorf("%s: stop = %v, want %v", tc.name, res.Stop, tc.stop)
		}
	}
}

func TestHaltAtZero(t *testing.T) {
	res, err := Run(context.Background(), "Q")
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if !res.Halted {
		t.Error("Halted = false, want true")
	}
	if res.Steps != 1 {
		t.Errorf("Steps = %d, want 1", res.Steps)
	}
	if res.Output != "" {
		t.Errorf("Output = %q, want empty", res.Output)
	}
}

func TestHaltedIsMonotone(t *testing.T) {
	m, err := Load("Q")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	for i := 0; i < 3; i++ {
		running, err := m.Step()
		if err != nil || running {
			t.Fatalf("Step %d = (%v, %v), want (false, nil)", i, running, err)
		}
		if !m.Halted {
			t.Fatalf("Halted reset after step %d", i)
		}
	}
	if m.Steps != 1 {
		t.Errorf("Steps = %d, want 1", m.Steps)
	}
}

func TestMalformedPrograms(t *testing.T) {
	tests := []struct {
		src    string
		addr   int
		offset int
	}{
		{"", 0, -1},
		{"   ", 0, -1},
		{"a", 0, 0},      // 97 mod 94 = 3
		{"Q\x01", 1, 1}, // control character
		{" \tX", 0, 2},   // 88 mod 94 = 88
		{"QQ", 1, 1},     // 'Q' only halts at address 0
	}
	for _, tc := range tests {
		err := Validate(tc.src)
		var mp *MalformedProgram
		if !errors.As(err, &mp) {
			t.Errorf("Validate(%q) = %v, want *MalformedProgram", tc.src, err)
			continue
		}
		if mp.Addr != tc.addr || mp.Offset != tc.offset {
			t.Errorf("Validate(%q): addr=%d offset=%d, want addr=%d offset=%d",
				tc.src, mp.Addr, mp.Offset, tc.addr, tc.offset)
		}
	}
}

func TestLoadPadsMemory(t *testing.T) {
	m, err := Load(">b")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if m.Length != 2 {
		t.Errorf("Length = %d, want 2", m.Length)
	}
	if m.Mem[2] != 29461 {
		t.Errorf("Mem[2] = %d, want 29461", m.Mem[2])
	}
	for i := 2; i < MemSize; i++ {
		if want := Crazy(m.Mem[i-1], m.Mem[i-2]); m.Mem[i] != want {
			t.Fatalf("Mem[%d] = %d, want %d", i, m.Mem[i], want)
		}
	}
}

func TestSelfModification(t *testing.T) {
	m, err := Load("D")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if op := Decode(m.Mem[0], 0); op != OpNop {
		t.Fatalf("Decode('D', 0) = %v, want nop", op)
	}
	if _, err := m.Step(); err != nil {
		t.Fatalf("Step error: %v", err)
	}
	if want := Word(encryptTable['D'-33]); m.Mem[0] != want {
		t.Errorf("Mem[0] after nop = %d, want %d", m.Mem[0], want)
	}
	if m.C != 1 || m.D != 1 {
		t.Errorf("pointers = (%d, %d), want (1, 1)", m.C, m.D)
	}
}

func TestDeterminism(t *testing.T) {
	first, err := Run(context.Background(), helloWorld)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := Run(context.Background(), helloWorld)
		if err != nil {
			t.Fatalf("Run error: %v", err)
		}
		if *again != *first {
			t.Fatalf("run %d = %+v, want %+v", i, *again, *first)
		}
	}
}

func TestInput(t *testing.T) {
	// in, out: address 0 needs (ch+0)%94 == 23, address 1 needs out.
	src := string([]byte{RawFor(OpInput, 0), RawFor(OpOutput, 1), RawFor(OpHalt, 2)})
	out, err := Execute(src, WithInput(strings.NewReader("z")))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if out != "z" {
		t.Errorf("output = %q, want %q", out, "z")
	}

	// End of input leaves MaxWord in the accumulator: 59048 mod 256 = 168.
	out, err = Execute(src)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if out != string([]byte{168}) {
		t.Errorf("output at EOF = %q, want %q", out, string([]byte{168}))
	}
}

func TestStepBudget(t *testing.T) {
	// The program needs 40 steps, the budget allows 5.
	_, err := Execute(helloWorld, WithMaxSteps(5))
	var rf *RuntimeFault
	if !errors.As(err, &rf) {
		t.Fatalf("Execute error = %v, want *RuntimeFault", err)
	}
	if !errors.Is(err, ErrStepBudget) {
		t.Errorf("error %v does not wrap ErrStepBudget", err)
	}
	if rf.Step != 5 {
		t.Errorf("fault step = %d, want 5", rf.Step)
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Run(ctx, helloWorld)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if res == nil || res.Output != "" {
		t.Errorf("result = %+v, want empty output", res)
	}
}

func TestTrace(t *testing.T) {
	var ops []Opcode
	_, err := Execute(">b", WithTrace(func(tr Trace) { ops = append(ops, tr.Op) }))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	want := []Opcode{OpCrazy, OpOutput}
	if len(ops) != len(want) {
		t.Fatalf("traced %v, want %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("op[%d] = %v, want %v", i, ops[i], want[i])
		}
	}
}

func TestConcurrentMachinesAreIsolated(t *testing.T) {
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		src, want := helloWorld, "Hello World!"
		if i%2 == 1 {
			src, want = ">b", "s"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := Execute(src)
			if err != nil {
				errs <- err
				return
			}
			if out != want {
				errs <- errors.New("unexpected output " + out)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
