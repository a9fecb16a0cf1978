package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/djlacavera21/Apophis/encoder"
	"github.com/djlacavera21/Apophis/hybrid"
	"github.com/djlacavera21/Apophis/malbolge"
)

// Encoder produces exotic source printing target.
type Encoder interface {
	Encode(ctx context.Context, target string) (string, error)
}

// EncoderFunc adapts a function to Encoder.
type EncoderFunc func(ctx context.Context, target string) (string, error)

// Encode implements Encoder.
func (f EncoderFunc) Encode(ctx context.Context, target string) (string, error) {
	return f(ctx, target)
}

// defaultEncoder searches without a cache.
var defaultEncoder = EncoderFunc(func(_ context.Context, target string) (string, error) {
	return encoder.Encode(target)
})

// EvalService implements the apophis.v1.EvalService procedures. Messages
// are google.protobuf.Struct so clients can speak plain JSON.
type EvalService struct {
	dispatcher *hybrid.Dispatcher
	encoder    Encoder
	exotic     []malbolge.Option
	pool       *Pool
	sessions   *SessionStore
}

// NewEvalService creates an EvalService.
func NewEvalService(d *hybrid.Dispatcher, enc Encoder, exotic []malbolge.Option, pool *Pool, sessions *SessionStore) *EvalService {
	if enc == nil {
		enc = defaultEncoder
	}
	return &EvalService{
		dispatcher: d,
		encoder:    enc,
		exotic:     exotic,
		pool:       pool,
		sessions:   sessions,
	}
}

// Run evaluates a hybrid program. Request fields: source, env, session.
// A fault is reported in the response, not as an RPC error:
// output and env hold what the run produced before it stopped.
func (s *EvalService) Run(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	source, err := stringField(req.Msg, "source")
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if source == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}
	env, err := envFromStruct(req.Msg.GetFields()["env"].GetStructValue())
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	sessionID, err := stringField(req.Msg, "session")
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	var session *Session
	if sessionID != "" {
		var ok bool
		session, ok = s.sessions.Get(sessionID)
		if !ok {
			return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", sessionID))
		}
		base := session.Env()
		for name, v := range env {
			base[name] = v
		}
		env = base
	}

	value, err := s.pool.Do(ctx, func() any {
		res, runErr := s.dispatcher.Run(ctx, source, env)
		return runOutcome{res, runErr}
	})
	if err != nil {
		return nil, connectError(err)
	}
	out := value.(runOutcome)
	if session != nil {
		session.setEnv(out.res.Env)
	}

	fields := map[string]any{"output": out.res.Output}
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	msg.Fields["env"] = structpb.NewStructValue(envToStruct(out.res.Env))
	if out.err != nil {
		msg.Fields["error"] = structpb.NewStringValue(out.err.Error())
		var re *hybrid.RunError
		if errors.As(out.err, &re) {
			msg.Fields["segment"] = structpb.NewNumberValue(float64(re.Segment + 1))
			msg.Fields["kind"] = structpb.NewStringValue(re.Kind.String())
			if re.SourceLine > 0 {
				msg.Fields["line"] = structpb.NewNumberValue(float64(re.SourceLine))
			}
		}
	}
	log.Debugf("run: %d bytes of source, fault=%v", len(source), out.err != nil)
	return connect.NewResponse(msg), nil
}

type runOutcome struct {
	res *hybrid.Result
	err error
}

// Execute runs exotic source directly. Request fields: source, input,
// max_steps.
func (s *EvalService) Execute(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	source, err := stringField(req.Msg, "source")
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if source == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}
	input, err := stringField(req.Msg, "input")
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	maxSteps, err := uintField(req.Msg, "max_steps")
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	opts := append([]malbolge.Option(nil), s.exotic...)
	opts = append(opts, malbolge.WithInput(strings.NewReader(input)))
	if maxSteps > 0 {
		opts = append(opts, malbolge.WithMaxSteps(maxSteps))
	}

	value, err := s.pool.Do(ctx, func() any {
		res, runErr := malbolge.Run(ctx, source, opts...)
		return execOutcome{res, runErr}
	})
	if err != nil {
		return nil, connectError(err)
	}
	out := value.(execOutcome)

	fields := map[string]any{"output": "", "halted": false, "steps": 0.0}
	if out.res != nil {
		fields["output"] = out.res.Output
		fields["halted"] = out.res.Halted
		fields["steps"] = float64(out.res.Steps)
	}
	if out.err != nil {
		fields["error"] = out.err.Error()
	}
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

type execOutcome struct {
	res *malbolge.Result
	err error
}

// Encode synthesizes exotic source printing target.
func (s *EvalService) Encode(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	target, err := stringField(req.Msg, "target")
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	value, err := s.pool.Do(ctx, func() any {
		src, encErr := s.encoder.Encode(ctx, target)
		return encodeOutcome{src, encErr}
	})
	if err != nil {
		return nil, connectError(err)
	}
	out := value.(encodeOutcome)
	if errors.Is(out.err, encoder.ErrUnencodable) {
		return nil, connect.NewError(connect.CodeInvalidArgument, out.err)
	}
	if out.err != nil {
		return nil, connect.NewError(connect.CodeInternal, out.err)
	}

	msg, err := structpb.NewStruct(map[string]any{"source": out.src})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

type encodeOutcome struct {
	src string
	err error
}

// connectError maps pool failures to RPC codes.
func connectError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.Is(err, errStopped):
		return connect.NewError(connect.CodeUnavailable, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}
