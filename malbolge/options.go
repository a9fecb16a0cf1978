package malbolge

import "io"

type config struct {
	input    io.Reader
	maxSteps uint64
	trace    func(Trace)
}

func defaultConfig() config {
	return config{}
}

// Option configures a Machine.
type Option func(*config)

// WithInput sets the stream read by input instructions. Without it every
// input instruction sees end of input.
func WithInput(r io.Reader) Option {
	return func(c *config) { c.input = r }
}

// WithMaxSteps bounds the number of instructions Run executes. Zero means
// no bound.
func WithMaxSteps(n uint64) Option {
	return func(c *config) { c.maxSteps = n }
}

// WithTrace installs a hook called before every instruction.
func WithTrace(fn func(Trace)) Option {
	return func(c *config) { c.trace = fn }
}
