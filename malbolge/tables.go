package malbolge

import "fmt"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode is the decoded meaning of a code cell: (memory[c] + c) mod 94.
type Opcode byte

const (
	OpJump   Opcode = 4  // c = memory[d]
	OpOutput Opcode = 5  // write a mod 256
	OpInput  Opcode = 23 // a = next input byte, MaxWord at end of input
	OpRotate Opcode = 39 // a = memory[d] = rotate(memory[d])
	OpMoveD  Opcode = 40 // d = memory[d]
	OpCrazy  Opcode = 62 // a = memory[d] = crazy(a, memory[d])
	OpNop    Opcode = 68 // no operation
	OpHalt   Opcode = 81 // stop
)

// Opcodes lists the eight instructions in ascending order.
var Opcodes = [...]Opcode{OpJump, OpOutput, OpInput, OpRotate, OpMoveD, OpCrazy, OpNop, OpHalt}

var opcodeNames = map[Opcode]string{
	OpJump:   "jmp",
	OpOutput: "out",
	OpInput:  "in",
	OpRotate: "rot",
	OpMoveD:  "movd",
	OpCrazy:  "crz",
	OpNop:    "nop",
	OpHalt:   "hlt",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("nop(%d)", op)
}

// Valid reports whether op is one of the eight defined instructions.
func (op Opcode) Valid() bool {
	_, ok := opcodeNames[op]
	return ok
}

// Decode returns the instruction a cell holding value performs when
// executed at addr. It is a pure function of value and address.
func Decode(value, addr Word) Opcode {
	return Opcode((uint64(value) + uint64(addr)) % 94)
}

// RawFor returns the only printable character that decodes to op at addr.
func RawFor(op Opcode, addr int) byte {
	n := (int(op) - addr - 33) % 94
	if n < 0 {
		n += 94
	}
	return byte(33 + n)
}

// ---------------------------------------------------------------------------
// Encryption table
// ---------------------------------------------------------------------------

// encryptTable maps a printable cell value (index value-33) to the value
// the cell holds after it has been executed.
var encryptTable = [94]byte{
	53, 122, 93, 38, 103, 113, 116, 121, 102, 114, 36, 40, 119, 101, 52,
	123, 87, 80, 41, 72, 45, 90, 110, 44, 91, 37, 92, 51, 100, 76, 43, 81,
	59, 62, 85, 33, 112, 74, 83, 55, 50, 70, 104, 79, 65, 49, 67, 66, 54,
	118, 94, 61, 73, 95, 48, 47, 56, 124, 106, 115, 98, 57, 109, 60, 46,
	84, 86, 97, 99, 96, 117, 89, 42, 77, 75, 39, 88, 126, 120, 68, 108,
	125, 82, 69, 111, 107, 78, 58, 35, 63, 71, 34, 105, 64,
}

// EncryptWord returns the rewrite value for a cell after execution.
// Values outside the printable range are reduced modulo 94 first, which
// keeps the rewrite defined for cells overwritten by rotate or crazy.
func EncryptWord(w Word) Word {
	idx := (int64(w) - 33) % 94
	if idx < 0 {
		idx += 94
	}
	return Word(encryptTable[idx])
}

// Encrypt substitutes every printable character (33..126) of text through
// the encryption table. Other bytes are copied unchanged.
func Encrypt(text string) string {
	out := []byte(text)
	for i, ch := range out {
		if ch >= 33 && ch <= 126 {
			out[i] = encryptTable[ch-33]
		}
	}
	return string(out)
}

// isCode reports whether a cell value is a printable instruction character.
func isCode(w Word) bool {
	return w >= 33 && w <= 126
}
