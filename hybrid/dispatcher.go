// Package hybrid runs programs that interleave two scripting dialects
// with exotic VM code, one marker-tagged line at a time.
//
// A program is split into segments: maximal runs of lines of the same
// kind. Segments run in source order. Script segments receive the shared
// environment and return an updated one; exotic segments see only their
// own text. The outputs of all segments are concatenated.
package hybrid

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/djlacavera21/Apophis/malbolge"
	"github.com/djlacavera21/Apophis/script"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("apophis.hybrid")

// Evaluator runs one script segment against an environment. Both
// *script.Interpreter and *bridge.Bridge implement it.
type Evaluator interface {
	Eval(ctx context.Context, text string, env script.Env) (string, script.Env, error)
}

// ExoticRunner runs one exotic segment. Partial output must be returned
// alongside a runtime fault.
type ExoticRunner interface {
	Execute(ctx context.Context, src string) (string, error)
}

// Machine is the default ExoticRunner: a fresh malbolge machine per
// segment.
type Machine struct {
	Options []malbolge.Option
}

// Execute implements ExoticRunner.
func (m Machine) Execute(ctx context.Context, src string) (string, error) {
	res, err := malbolge.Run(ctx, src, m.Options...)
	if res == nil {
		return "", err
	}
	return res.Output, err
}

// Dispatcher routes segments to their evaluators. It holds no run state
// and may be shared between goroutines if its evaluators can.
type Dispatcher struct {
	primary   Evaluator
	secondary Evaluator
	exotic    ExoticRunner
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPrimary sets the evaluator for ':' lines.
func WithPrimary(e Evaluator) Option { return func(d *Dispatcher) { d.primary = e } }

// WithSecondary sets the evaluator for ';' lines.
func WithSecondary(e Evaluator) Option { return func(d *Dispatcher) { d.secondary = e } }

// WithExotic sets the runner for exotic lines.
func WithExotic(r ExoticRunner) Option { return func(d *Dispatcher) { d.exotic = r } }

// New creates a dispatcher. By default primary lines run in the built-in
// interpreter's colon dialect, secondary lines in its block dialect and
// exotic lines on a malbolge machine without a step budget. The external
// Ruby bridge is opt-in through WithSecondary.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		primary:   script.New(script.Python),
		secondary: script.New(script.Ruby),
		exotic:    Machine{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Result is the outcome of a run. Output holds everything printed up to
// the end or the failing segment; Env is the environment after the last
// successful script segment.
type Result struct {
	Output   string
	Env      script.Env
	Segments int // segments evaluated successfully
}

// RunError reports the segment a run stopped at.
type RunError struct {
	Segment    int  // 0-based segment index
	Kind       Kind // kind of the failing segment
	FirstLine  int  // source line the segment starts on
	SourceLine int  // offending source line, 0 when unknown
	Err        error
}

func (e *RunError) Error() string {
	line := e.FirstLine
	if e.SourceLine > 0 {
		line = e.SourceLine
	}
	return fmt.Sprintf("segment %d (%s) at line %d: %v", e.Segment+1, e.Kind, line, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// Run evaluates src starting from a copy of env. The returned Result is
// never nil. Any fault stops the run and is returned as a *RunError.
func (d *Dispatcher) Run(ctx context.Context, src string, env script.Env) (*Result, error) {
	segs := Segments(src)
	res := &Result{Env: env.Clone()}

	// Exotic segments are checked up front so a malformed one aborts the
	// run before anything is printed.
	for i := range segs {
		seg := &segs[i]
		if seg.Kind != Exotic {
			continue
		}
		if err := malbolge.Validate(seg.Text); err != nil {
			return res, wrapFault(seg, err)
		}
	}

	var out strings.Builder
	for i := range segs {
		seg := &segs[i]
		log.Debugf("segment %d: %s, %d lines from line %d", seg.Index+1, seg.Kind, len(seg.Lines), seg.FirstLine())
		var (
			frag string
			next script.Env
			err  error
		)
		switch seg.Kind {
		case Primary:
			frag, next, err = d.primary.Eval(ctx, seg.Text, res.Env)
		case Secondary:
			frag, next, err = d.secondary.Eval(ctx, seg.Text, res.Env)
		case Exotic:
			frag, err = d.exotic.Execute(ctx, seg.Text)
		}
		out.WriteString(frag)
		if err != nil {
			res.Output = out.String()
			log.Infof("run stopped at segment %d: %s", seg.Index+1, err)
			return res, wrapFault(seg, err)
		}
		if seg.Kind.IsScript() && next != nil {
			res.Env = next
		}
		res.Segments++
	}
	res.Output = out.String()
	return res, nil
}

// wrapFault attaches segment position to err.
func wrapFault(seg *Segment, err error) *RunError {
	re := &RunError{Segment: seg.Index, Kind: seg.Kind, FirstLine: seg.FirstLine(), Err: err}
	var sf *script.SyntaxFault
	var ef *script.EvalFault
	var mp *malbolge.MalformedProgram
	switch {
	case errors.As(err, &sf):
		re.SourceLine = seg.SourceLine(sf.Line)
	case errors.As(err, &ef):
		re.SourceLine = seg.SourceLine(ef.Line)
	case errors.As(err, &mp) && mp.Offset >= 0 && mp.Offset <= len(seg.Text):
		re.SourceLine = seg.SourceLine(strings.Count(seg.Text[:mp.Offset], "\n") + 1)
	}
	return re
}

// Run evaluates src with the default dispatcher. On failure it returns
// the output produced so far and the environment after the last
// successful script segment.
func Run(src string, env script.Env) (string, script.Env, error) {
	res, err := New().Run(context.Background(), src, env)
	return res.Output, res.Env, err
}
