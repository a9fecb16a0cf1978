package server

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
)

// ---------------------------------------------------------------------------
// Run: happy paths
// ---------------------------------------------------------------------------

func TestRun_Concatenation(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := env.Eval.Run(bg(), structReq(t, map[string]any{
		"source": ":print('A', end='')\n;print 'B'\n>b\n:print('C')",
	}))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got := field(resp.Msg, "output").GetStringValue(); got != "ABsC\n" {
		t.Errorf("output = %q, want %q", got, "ABsC\n")
	}
	if _, ok := resp.Msg.Fields["error"]; ok {
		t.Errorf("unexpected error field: %v", resp.Msg.Fields["error"])
	}
}

func TestRun_EnvInAndOut(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := env.Eval.Run(bg(), structReq(t, map[string]any{
		"source": ":y = x * 2\n:half = x / 4\n:name = 'n' + str(x)\n",
		"env":    map[string]any{"x": 10},
	}))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	out := field(resp.Msg, "env").GetStructValue()
	if got := field(out, "y").GetNumberValue(); got != 20 {
		t.Errorf("y = %v, want 20", got)
	}
	if got := field(out, "half").GetNumberValue(); got != 2.5 {
		t.Errorf("half = %v, want 2.5", got)
	}
	if got := field(out, "name").GetStringValue(); got != "n10" {
		t.Errorf("name = %q, want %q", got, "n10")
	}
}

// ---------------------------------------------------------------------------
// Run: error paths
// ---------------------------------------------------------------------------

func TestRun_EmptySource(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.Eval.Run(bg(), structReq(t, map[string]any{"source": ""}))
	wantCode(t, err, connect.CodeInvalidArgument)
}

func TestRun_SourceNotString(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.Eval.Run(bg(), structReq(t, map[string]any{"source": 3}))
	wantCode(t, err, connect.CodeInvalidArgument)
}

func TestRun_NestedEnvRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.Eval.Run(bg(), structReq(t, map[string]any{
		"source": ":pass",
		"env":    map[string]any{"xs": []any{1, 2}},
	}))
	wantCode(t, err, connect.CodeInvalidArgument)
}

func TestRun_FaultReportedInBody(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := env.Eval.Run(bg(), structReq(t, map[string]any{
		"source": ":a = 1\n:print('one')\n;puts 'two'\n:b = a / 0\n",
	}))
	if err != nil {
		t.Fatalf("Run returned RPC error: %v", err)
	}
	if got := field(resp.Msg, "output").GetStringValue(); got != "one\ntwo\n" {
		t.Errorf("output = %q, want %q", got, "one\ntwo\n")
	}
	if !strings.Contains(field(resp.Msg, "error").GetStringValue(), "segment 3") {
		t.Errorf("error = %q, want segment 3", field(resp.Msg, "error").GetStringValue())
	}
	if got := field(resp.Msg, "segment").GetNumberValue(); got != 3 {
		t.Errorf("segment = %v, want 3", got)
	}
	if got := field(resp.Msg, "line").GetNumberValue(); got != 4 {
		t.Errorf("line = %v, want 4", got)
	}
	if got := field(resp.Msg, "kind").GetStringValue(); got != "primary" {
		t.Errorf("kind = %q, want primary", got)
	}
	if got := field(field(resp.Msg, "env").GetStructValue(), "a").GetNumberValue(); got != 1 {
		t.Errorf("env a = %v, want 1", got)
	}
}

func TestRun_UnknownSession(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.Eval.Run(bg(), structReq(t, map[string]any{"source": ":pass", "session": "nope"}))
	wantCode(t, err, connect.CodeNotFound)
}

func TestRun_Cancelled(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithCancel(bg())
	cancel()
	resp, err := env.Eval.Run(ctx, structReq(t, map[string]any{"source": ":while True:\n:    pass\n"}))
	// Either the pool gives up or the interpreter sees the cancellation.
	if err == nil && field(resp.Msg, "error").GetStringValue() == "" {
		t.Fatal("expected cancelled run to fail")
	}
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

func TestRun_SessionKeepsEnvironment(t *testing.T) {
	env := newTestEnv(t, nil)

	created, err := env.Session.CreateSession(bg(), structReq(t, map[string]any{"name": "scratch"}))
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	id := field(created.Msg, "session").GetStringValue()
	if id == "" {
		t.Fatal("CreateSession returned no id")
	}

	if _, err := env.Eval.Run(bg(), structReq(t, map[string]any{"source": ":n = 41\n", "session": id})); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	resp, err := env.Eval.Run(bg(), structReq(t, map[string]any{"source": ";n += 1\n;puts n\n", "session": id}))
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if got := field(resp.Msg, "output").GetStringValue(); got != "42\n" {
		t.Errorf("output = %q, want %q", got, "42\n")
	}

	comp, err := env.Session.Complete(bg(), structReq(t, map[string]any{"prefix": "n", "session": id}))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	found := false
	for _, item := range field(comp.Msg, "items").GetListValue().GetValues() {
		if field(item.GetStructValue(), "label").GetStringValue() == "n" {
			found = true
		}
	}
	if !found {
		t.Error("session variable n missing from completions")
	}

	if _, err := env.Session.DestroySession(bg(), structReq(t, map[string]any{"session": id})); err != nil {
		t.Fatalf("DestroySession: %v", err)
	}
	_, err = env.Session.DestroySession(bg(), structReq(t, map[string]any{"session": id}))
	wantCode(t, err, connect.CodeNotFound)
}

func TestDestroySession_MissingID(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.Session.DestroySession(bg(), structReq(t, map[string]any{}))
	wantCode(t, err, connect.CodeInvalidArgument)
}

// ---------------------------------------------------------------------------
// Execute
// ---------------------------------------------------------------------------

func TestExecute_Output(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := env.Eval.Execute(bg(), structReq(t, map[string]any{"source": ">b"}))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if got := field(resp.Msg, "output").GetStringValue(); got != "s" {
		t.Errorf("output = %q, want %q", got, "s")
	}
	if field(resp.Msg, "halted").GetBoolValue() {
		t.Error("halted = true, want false")
	}
}

func TestExecute_Halt(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := env.Eval.Execute(bg(), structReq(t, map[string]any{"source": "Q"}))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !field(resp.Msg, "halted").GetBoolValue() {
		t.Error("halted = false, want true")
	}
	if got := field(resp.Msg, "output").GetStringValue(); got != "" {
		t.Errorf("output = %q, want empty", got)
	}
	if got := field(resp.Msg, "steps").GetNumberValue(); got != 1 {
		t.Errorf("steps = %v, want 1", got)
	}
}

func TestExecute_Malformed(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := env.Eval.Execute(bg(), structReq(t, map[string]any{"source": "QQ"}))
	if err != nil {
		t.Fatalf("Execute returned RPC error: %v", err)
	}
	if field(resp.Msg, "error").GetStringValue() == "" {
		t.Error("expected error field for malformed program")
	}
}

func TestExecute_StepBudget(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := env.Eval.Execute(bg(), structReq(t, map[string]any{
		"source":    "(=<`#9]~6ZY32Vx/4Rs+0No-&Jk)\"Fh}|Bcy?`=*z]Kw%oG4UUS0/@-ejc(:'8dc",
		"max_steps": 10,
	}))
	if err != nil {
		t.Fatalf("Execute returned RPC error: %v", err)
	}
	if !strings.Contains(field(resp.Msg, "error").GetStringValue(), "step budget") {
		t.Errorf("error = %q, want step budget", field(resp.Msg, "error").GetStringValue())
	}
}

func TestExecute_BadMaxSteps(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.Eval.Execute(bg(), structReq(t, map[string]any{"source": "Q", "max_steps": -1}))
	wantCode(t, err, connect.CodeInvalidArgument)
}

// ---------------------------------------------------------------------------
// Encode
// ---------------------------------------------------------------------------

func TestEncode_UsesEncoder(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	enc := EncoderFunc(func(_ context.Context, target string) (string, error) {
		mu.Lock()
		seen = append(seen, target)
		mu.Unlock()
		return "SRC:" + target, nil
	})
	env := newTestEnv(t, enc)

	resp, err := env.Eval.Encode(bg(), structReq(t, map[string]any{"target": "hi"}))
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if got := field(resp.Msg, "source").GetStringValue(); got != "SRC:hi" {
		t.Errorf("source = %q, want %q", got, "SRC:hi")
	}
	if len(seen) != 1 || seen[0] != "hi" {
		t.Errorf("encoder saw %v", seen)
	}
}

func TestEncode_Unencodable(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.Eval.Encode(bg(), structReq(t, map[string]any{"target": "È"}))
	wantCode(t, err, connect.CodeInvalidArgument)
}

func TestEncode_InternalError(t *testing.T) {
	env := newTestEnv(t, EncoderFunc(func(context.Context, string) (string, error) {
		return "", errors.New("disk full")
	}))
	_, err := env.Eval.Encode(bg(), structReq(t, map[string]any{"target": "a"}))
	wantCode(t, err, connect.CodeInternal)
}

// ---------------------------------------------------------------------------
// Over HTTP
// ---------------------------------------------------------------------------

func TestServer_ConnectClient(t *testing.T) {
	srv := New(WithWorkers(2))
	defer srv.Stop()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	for _, opts := range [][]connect.ClientOption{nil, {connect.WithProtoJSON()}} {
		client := connect.NewClient[structpb.Struct, structpb.Struct](ts.Client(), ts.URL+RunProcedure, opts...)
		msg, _ := structpb.NewStruct(map[string]any{"source": ":print(6 * 7)\n"})
		resp, err := client.CallUnary(bg(), connect.NewRequest(msg))
		if err != nil {
			t.Fatalf("CallUnary: %v", err)
		}
		if got := field(resp.Msg, "output").GetStringValue(); got != "42\n" {
			t.Errorf("output = %q, want %q", got, "42\n")
		}
	}

	client := connect.NewClient[structpb.Struct, structpb.Struct](ts.Client(), ts.URL+ExecuteProcedure)
	_, err := client.CallUnary(bg(), connect.NewRequest(&structpb.Struct{}))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("code = %v, want InvalidArgument", connect.CodeOf(err))
	}
}
