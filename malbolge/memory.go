package malbolge

// Memory is the machine's flat cell arena, addressed 0..MaxWord.
type Memory [MemSize]Word

// isSpace reports whether the loader skips ch without consuming an address.
func isSpace(ch byte) bool {
	switch ch {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// Validate checks that src would load, without allocating memory.
func Validate(src string) error {
	_, err := scan(src, nil)
	return err
}

// scan walks the non-space characters of src, checking each decodes to a
// defined instruction at its own address. When mem is non-nil the
// characters are stored into it. It returns the program length in cells.
func scan(src string, mem *Memory) (int, error) {
	n := 0
	for i := 0; i < len(src); i++ {
		ch := src[i]
		if isSpace(ch) {
			continue
		}
		if n >= MemSize {
			return 0, &MalformedProgram{Addr: n, Offset: i, Char: ch, Reason: "program does not fit in memory"}
		}
		if !isCode(Word(ch)) {
			return 0, &MalformedProgram{Addr: n, Offset: i, Char: ch, Reason: "character outside 33..126"}
		}
		if op := Decode(Word(ch), Word(n)); !op.Valid() {
			return 0, &MalformedProgram{Addr: n, Offset: i, Char: ch,
				Reason: "does not decode to an instruction at its address"}
		}
		if mem != nil {
			mem[n] = Word(ch)
		}
		n++
	}
	if n == 0 {
		return 0, &MalformedProgram{Offset: -1, Reason: "empty program"}
	}
	return n, nil
}

// load stores src into mem and pads the remaining cells with
// crazy(memory[i-1], memory[i-2]).
func load(src string, mem *Memory) (int, error) {
	n, err := scan(src, mem)
	if err != nil {
		return 0, err
	}
	for i := n; i < MemSize; i++ {
		var prev2 Word
		if i >= 2 {
			prev2 = mem[i-2]
		}
		mem[i] = Crazy(mem[i-1], prev2)
	}
	return n, nil
}
