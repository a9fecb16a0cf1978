package server

import (
	"context"
	"errors"
	"testing"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/djlacavera21/Apophis/hybrid"
)

// ---------------------------------------------------------------------------
// Shared test infrastructure for server package tests.
// ---------------------------------------------------------------------------

// testEnv bundles a pool, session store and services.
type testEnv struct {
	Pool     *Pool
	Sessions *SessionStore
	Eval     *EvalService
	Session  *SessionService
}

// newTestEnv creates services backed by the default dispatcher. The pool
// is stopped when the test ends.
func newTestEnv(t *testing.T, enc Encoder) *testEnv {
	t.Helper()
	pool := NewPool(2)
	t.Cleanup(pool.Stop)
	sessions := NewSessionStore()
	return &testEnv{
		Pool:     pool,
		Sessions: sessions,
		Eval:     NewEvalService(hybrid.New(), enc, nil, pool, sessions),
		Session:  NewSessionService(sessions),
	}
}

// ---------------------------------------------------------------------------
// Request builder helpers.
// ---------------------------------------------------------------------------

func structReq(t *testing.T, fields map[string]any) *connect.Request[structpb.Struct] {
	t.Helper()
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return connect.NewRequest(msg)
}

func bg() context.Context {
	return context.Background()
}

func asConnectError(err error, target **connect.Error) bool {
	return errors.As(err, target)
}

func wantCode(t *testing.T, err error, code connect.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", code)
	}
	var connectErr *connect.Error
	if !asConnectError(err, &connectErr) {
		t.Fatalf("expected connect.Error, got %T: %v", err, err)
	}
	if connectErr.Code() != code {
		t.Errorf("code = %v, want %v", connectErr.Code(), code)
	}
}

func field(msg *structpb.Struct, name string) *structpb.Value {
	return msg.GetFields()[name]
}
