// Package snapshot saves and restores the primitive part of a script
// environment as canonical CBOR, so one run can pick up where another
// left off.
package snapshot

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/djlacavera21/Apophis/script"
	"github.com/fxamacker/cbor/v2"
)

// Version is written into every snapshot.
const Version = 1

// ErrVersion is returned for snapshots written by an incompatible release.
var ErrVersion = errors.New("snapshot: unsupported version")

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("snapshot: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

type document struct {
	Version  int            `cbor:"1,keyasint"`
	Bindings map[string]any `cbor:"2,keyasint"`
}

// Marshal encodes env. Functions are not primitive and are left out.
// Equal environments always encode to equal bytes.
func Marshal(env script.Env) ([]byte, error) {
	doc := document{Version: Version, Bindings: make(map[string]any, len(env))}
	for name, v := range env {
		switch v := v.(type) {
		case script.Int:
			doc.Bindings[name] = int64(v)
		case script.Float:
			doc.Bindings[name] = float64(v)
		case script.Str:
			doc.Bindings[name] = string(v)
		case script.Bool:
			doc.Bindings[name] = bool(v)
		case script.NoneType:
			doc.Bindings[name] = nil
		}
	}
	return encMode.Marshal(doc)
}

// Unmarshal decodes a snapshot produced by Marshal.
func Unmarshal(data []byte) (script.Env, error) {
	var doc document
	if err := cbor.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal: %w", err)
	}
	if doc.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, doc.Version)
	}
	env := make(script.Env, len(doc.Bindings))
	for name, raw := range doc.Bindings {
		v, err := value(raw)
		if err != nil {
			return nil, fmt.Errorf("snapshot: binding %q: %w", name, err)
		}
		env[name] = v
	}
	return env, nil
}

func value(raw any) (script.Value, error) {
	switch x := raw.(type) {
	case nil:
		return script.None, nil
	case bool:
		return script.Bool(x), nil
	case string:
		return script.Str(x), nil
	case int64:
		return script.Int(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d out of range", x)
		}
		return script.Int(x), nil
	case float64:
		return script.Float(x), nil
	case float32:
		return script.Float(x), nil
	}
	return nil, fmt.Errorf("unsupported value of type %T", raw)
}

// Save writes env to path.
func Save(path string, env script.Env) error {
	data, err := Marshal(env)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("snapshot: writing: %w", err)
	}
	return nil
}

// Load reads a snapshot from path.
func Load(path string) (script.Env, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: reading: %w", err)
	}
	return Unmarshal(data)
}
