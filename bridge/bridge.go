// Package bridge runs secondary-language segments in an external Ruby
// runtime. Each evaluation starts one process, feeds it a prelude that
// recreates the shared environment, the segment itself and an epilogue
// that reports the top-level bindings back after a marker line.
package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/djlacavera21/Apophis/script"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("apophis.bridge")

var (
	// ErrRuntimeUnavailable means the runtime command is missing or could
	// not be started.
	ErrRuntimeUnavailable = errors.New("bridge: secondary runtime unavailable")

	// ErrTimeout means the runtime did not finish within the timeout.
	ErrTimeout = errors.New("bridge: secondary runtime timed out")
)

// DefaultTimeout bounds one segment evaluation.
const DefaultTimeout = 10 * time.Second

// markerPrefix starts the line that separates program output from the
// exported bindings. A per-run suffix keeps scripts from forging it.
const markerPrefix = "__APOPHIS_ENV__"

// Bridge evaluates segments with an external runtime. The zero value is
// not usable; create one with New.
type Bridge struct {
	command []string
	timeout time.Duration
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithCommand sets the runtime command and its arguments. The program
// text is written to the command's standard input.
func WithCommand(name string, args ...string) Option {
	return func(b *Bridge) {
		if name != "" {
			b.command = append([]string{name}, args...)
		}
	}
}

// WithTimeout sets the per-segment timeout. Zero or less disables it.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.timeout = d }
}

// New creates a bridge that runs `ruby` with DefaultTimeout.
func New(opts ...Option) *Bridge {
	b := &Bridge{command: []string{"ruby"}, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Command returns the runtime command line.
func (b *Bridge) Command() []string { return append([]string(nil), b.command...) }

// Available reports whether the runtime command can be found.
func (b *Bridge) Available() error {
	if _, err := exec.LookPath(b.command[0]); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRuntimeUnavailable, b.command[0], err)
	}
	return nil
}

// Eval runs text with env bound as top-level variables. It returns the
// program's standard output and env updated with every primitive
// top-level binding the program left behind. On failure the output
// printed so far is returned with a nil Env.
func (b *Bridge) Eval(ctx context.Context, text string, env script.Env) (string, script.Env, error) {
	prelude, err := Prelude(env)
	if err != nil {
		return "", nil, err
	}
	marker := markerPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	var program strings.Builder
	program.WriteString(prelude)
	program.WriteString(text)
	if !strings.HasSuffix(text, "\n") {
		program.WriteByte('\n')
	}
	program.WriteString(epilogue(marker))

	runCtx := ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, b.command[0], b.command[1:]...)
	cmd.Stdin = strings.NewReader(program.String())
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return "", nil, fmt.Errorf("%w: starting %s: %w", ErrRuntimeUnavailable, b.command[0], err)
	}
	waitErr := cmd.Wait()
	log.Debugf("%s finished in %s (%d bytes out)", b.command[0], time.Since(started), stdout.Len())

	out, exported, found := strings.Cut(stdout.String(), marker)
	switch {
	case runCtx.Err() != nil && ctx.Err() == nil:
		return out, nil, fmt.Errorf("%w after %s", ErrTimeout, b.timeout)
	case ctx.Err() != nil:
		return out, nil, &script.EvalFault{Msg: ctx.Err().Error(), Err: ctx.Err()}
	case waitErr != nil:
		return out, nil, runtimeFault(stderr.String(), strings.Count(prelude, "\n"), waitErr)
	case !found:
		// The program ended before the epilogue, e.g. through exit.
		return out, env.Clone(), nil
	}

	bindings, err := DecodeBindings([]byte(exported))
	if err != nil {
		return out, nil, &script.EvalFault{Msg: err.Error(), Err: err}
	}
	next := env.Clone()
	for name, v := range bindings {
		next[name] = v
	}
	return out, next, nil
}

// rubyErrorLine matches the location Ruby prints for programs read from
// standard input.
var rubyErrorLine = regexp.MustCompile(`(?m)^-:(\d+):`)

// runtimeFault converts a failed run into an EvalFault whose line is
// relative to the segment rather than the generated program.
func runtimeFault(stderr string, preludeLines int, cause error) error {
	msg := strings.TrimSpace(stderr)
	line := 0
	if m := rubyErrorLine.FindStringSubmatch(msg); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > preludeLines {
			line = n - preludeLines
		}
		msg = rubyErrorLine.ReplaceAllString(msg, "")
		msg = strings.TrimSpace(msg)
	}
	if msg == "" {
		msg = cause.Error()
	}
	if first, _, ok := strings.Cut(msg, "\n"); ok {
		msg = first
	}
	return &script.EvalFault{Line: line, Msg: msg, Err: cause}
}
