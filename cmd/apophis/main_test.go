package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/djlacavera21/Apophis/snapshot"
	"github.com/djlacavera21/Apophis/script"
)

// execute runs the CLI with args and returns stdout, stderr and the error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	configPath, verbosity = "", 0
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "demo.apop", ":print('A', end='')\n;print 'B'\n>b\n:print('C')\n")

	out, _, err := execute(t, "run", prog)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "ABsC\n" {
		t.Errorf("output = %q, want %q", out, "ABsC\n")
	}
}

func TestRunSnapshots(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.cbor")
	outPath := filepath.Join(dir, "out.cbor")
	if err := snapshot.Save(in, script.Env{"n": script.Int(4)}); err != nil {
		t.Fatal(err)
	}
	prog := writeFile(t, dir, "inc.apo", ":n = n * 10\n")

	if _, _, err := execute(t, "run", prog, "--env-in", in, "--env-out", outPath); err != nil {
		t.Fatalf("run: %v", err)
	}
	env, err := snapshot.Load(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if env["n"] != script.Int(40) {
		t.Errorf("n = %#v, want 40", env["n"])
	}
}

func TestRunFaultKeepsOutput(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "bad.apop", ":print('first')\n:x = 1 / 0\n")

	out, stderr, err := execute(t, "run", prog)
	if err == nil {
		t.Fatal("expected error")
	}
	if out != "first\n" {
		t.Errorf("output = %q, want partial output", out)
	}
	if !strings.Contains(stderr, "segment 1") {
		t.Errorf("stderr = %q, want segment number", stderr)
	}
}

func TestRunRejectsExtension(t *testing.T) {
	dir := t.TempDir()
	prog := writeFile(t, dir, "prog.txt", ":print(1)\n")
	if _, _, err := execute(t, "run", prog); err == nil {
		t.Fatal("expected extension error")
	}
}

func TestExecCommand(t *testing.T) {
	out, _, err := execute(t, "exec", "-e", ">b")
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if out != "s" {
		t.Errorf("output = %q, want %q", out, "s")
	}

	_, _, err = execute(t, "exec", "-e", "QQ")
	if err == nil {
		t.Error("expected malformed program error")
	}
	if _, _, err := execute(t, "exec"); err == nil {
		t.Error("expected error with nothing to run")
	}
}

func TestExecTrace(t *testing.T) {
	_, stderr, err := execute(t, "exec", "-e", "Q", "--trace")
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if !strings.Contains(stderr, "hlt") {
		t.Errorf("trace = %q, want hlt", stderr)
	}
}

func TestEncodeCommand(t *testing.T) {
	out, _, err := execute(t, "encode", "--no-cache", "Hi")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	src := strings.TrimSuffix(out, "\n")
	got, _, err := execute(t, "exec", "-e", src)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if got != "Hi" {
		t.Errorf("encoded program printed %q, want %q", got, "Hi")
	}
}

func TestCryptCommand(t *testing.T) {
	out, _, err := execute(t, "crypt", "Q")
	if err != nil {
		t.Fatalf("crypt: %v", err)
	}
	if len(strings.TrimSpace(out)) != 1 {
		t.Errorf("crypt output = %q, want one character", out)
	}
}

func TestParseCommand(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "s.rb", "x = 1\nputs x\n")
	out, _, err := execute(t, "parse", "--dialect", "ruby", file)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !strings.Contains(out, "puts") {
		t.Errorf("dump = %q, want puts call", out)
	}
}

func TestCheckCommand(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.apop", ":x = 1\n>b\n")
	bad := writeFile(t, dir, "bad.apop", ":x = (1\nQQ\n")

	if _, _, err := execute(t, "check", good); err != nil {
		t.Errorf("check good: %v", err)
	}
	out, _, err := execute(t, "check", bad)
	if err == nil {
		t.Error("check bad: expected error")
	}
	if !strings.Contains(out, "bad.apop:1") || !strings.Contains(out, "bad.apop:2:2") {
		t.Errorf("check output = %q", out)
	}
}

func TestConfigFlag(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "apophis.toml", "[exotic]\nmax_steps = 2\n")
	hello := "(=<`#9]~6ZY32Vx/4Rs+0No-&Jk)\"Fh}|Bcy?`=*z]Kw%oG4UUS0/@-ejc(:'8dc"
	if _, _, err := execute(t, "--config", cfg, "exec", "-e", hello); err == nil {
		t.Error("expected step budget error from config")
	}

	bad := writeFile(t, dir, "bad.toml", "[nope]\n")
	if _, _, err := execute(t, "--config", bad, "exec", "-e", "Q"); err == nil {
		t.Error("expected invalid config error")
	}
}

func TestIncomplete(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{":x = 1", false},
		{":if x:", true},
		{":if x:\n:    y = 1", true},
		{";if x", true},
		{";if x\n;  y = 1\n;end", false},
		{";def f(a)", true},
		{">b", false},
		{":x = )", false},
	}
	for _, tt := range tests {
		if got := incomplete(tt.src); got != tt.want {
			t.Errorf("incomplete(%q) = %v, want %v", tt.src, got, tt.want)
		}
	}
}
