package malbolge

// ---------------------------------------------------------------------------
// Ternary words
// ---------------------------------------------------------------------------

// Word is one memory cell: ten trits, a value in [0, MaxWord].
type Word uint32

const (
	// Trits is the number of ternary digits in a word.
	Trits = 10

	// MemSize is the number of cells in memory (3^10).
	MemSize = 59049

	// MaxWord is the largest value a cell or register can hold.
	MaxWord Word = MemSize - 1

	// topTrit is the weight of the most significant trit (3^9).
	topTrit = 19683
)

// crz is the tritwise crazy operator, indexed [y][x].
var crz = [3][3]Word{
	{1, 0, 0},
	{1, 0, 2},
	{2, 2, 1},
}

// Crazy applies the crazy operation trit by trit. x is the first operand
// (the accumulator when executing, memory[i-1] when padding) and y the
// second.
func Crazy(x, y Word) Word {
	var result Word
	weight := Word(1)
	for i := 0; i < Trits; i++ {
		result += crz[y%3][x%3] * weight
		x /= 3
		y /= 3
		weight *= 3
	}
	return result
}

// Rotate rotates the ten trits of w right by one position; the lowest
// trit becomes the highest.
func Rotate(w Word) Word {
	return w/3 + (w%3)*topTrit
}

// TritString renders w as ten trits, most significant first.
func TritString(w Word) string {
	var buf [Trits]byte
	for i := Trits - 1; i >= 0; i-- {
		buf[i] = '0' + byte(w%3)
		w /= 3
	}
	return string(buf[:])
}
