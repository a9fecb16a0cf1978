package snapshot

import (
	"bytes"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/djlacavera21/Apophis/script"
	"github.com/fxamacker/cbor/v2"
)

func TestKindsSurvive(t *testing.T) {
	env := script.Env{
		"i":    script.Int(-42),
		"f":    script.Float(2),
		"s":    script.Str("héllo"),
		"b":    script.Bool(true),
		"none": script.None,
		"big":  script.Int(math.MaxInt64),
	}
	data, err := Marshal(env)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for name, want := range env {
		if got[name] != want {
			t.Errorf("%s: got %#v, want %#v", name, got[name], want)
		}
	}
	// A whole float must not come back as an integer.
	if _, ok := got["f"].(script.Float); !ok {
		t.Errorf("f decoded as %T", got["f"])
	}
}

func TestFunctionsAreDropped(t *testing.T) {
	_, env, err := script.EvalScript("def f():\n    return 1\nx = f()\n", nil)
	if err != nil {
		t.Fatalf("EvalScript: %v", err)
	}
	data, err := Marshal(env)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := got["f"]; ok {
		t.Error("function binding was saved")
	}
	if got["x"] != script.Int(1) {
		t.Errorf("x = %#v, want 1", got["x"])
	}
}

func TestDeterministic(t *testing.T) {
	env := script.Env{}
	for _, name := range []string{"a", "b", "c", "d", "e", "zz", "m"} {
		env[name] = script.Str(name)
	}
	first, err := Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, _ := Marshal(env.Clone())
		if !bytes.Equal(first, again) {
			t.Fatal("encoding differs between calls")
		}
	}
}

func TestVersionMismatch(t *testing.T) {
	data, err := encMode.Marshal(document{Version: Version + 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Unmarshal(data); !errors.Is(err, ErrVersion) {
		t.Errorf("Unmarshal error = %v, want ErrVersion", err)
	}
}

func TestUnsupportedValue(t *testing.T) {
	data, err := cbor.Marshal(map[int]any{1: Version, 2: map[string]any{"xs": []int{1, 2}}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Unmarshal(data); err == nil {
		t.Error("expected error for list binding")
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.cbor")
	if err := Save(path, script.Env{"n": script.Int(7)}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	env, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if env["n"] != script.Int(7) {
		t.Errorf("n = %#v, want 7", env["n"])
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}
