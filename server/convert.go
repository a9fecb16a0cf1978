package server

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/djlacavera21/Apophis/script"
)

// envFromStruct converts a request env. JSON has a single number type,
// so whole numbers become integers and everything else floats.
func envFromStruct(s *structpb.Struct) (script.Env, error) {
	env := script.Env{}
	if s == nil {
		return env, nil
	}
	for name, v := range s.GetFields() {
		val, err := valueFromProto(v)
		if err != nil {
			return nil, fmt.Errorf("env %q: %w", name, err)
		}
		env[name] = val
	}
	return env, nil
}

func valueFromProto(v *structpb.Value) (script.Value, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return script.None, nil
	case *structpb.Value_BoolValue:
		return script.Bool(k.BoolValue), nil
	case *structpb.Value_StringValue:
		return script.Str(k.StringValue), nil
	case *structpb.Value_NumberValue:
		f := k.NumberValue
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return script.Int(int64(f)), nil
		}
		return script.Float(f), nil
	}
	return nil, fmt.Errorf("only null, bool, number and string values are allowed")
}

// envToStruct converts the primitive bindings of env. Functions are
// omitted, as are floats JSON cannot carry.
func envToStruct(env script.Env) *structpb.Struct {
	out := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(env))}
	for name, v := range env {
		switch v := v.(type) {
		case script.Int:
			out.Fields[name] = structpb.NewNumberValue(float64(v))
		case script.Float:
			f := float64(v)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				continue
			}
			out.Fields[name] = structpb.NewNumberValue(f)
		case script.Str:
			out.Fields[name] = structpb.NewStringValue(string(v))
		case script.Bool:
			out.Fields[name] = structpb.NewBoolValue(bool(v))
		case script.NoneType:
			out.Fields[name] = structpb.NewNullValue()
		}
	}
	return out
}

// stringField returns a string field, or "" when absent.
func stringField(s *structpb.Struct, name string) (string, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return "", nil
	}
	sv, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("%s must be a string", name)
	}
	return sv.StringValue, nil
}

// uintField returns a non-negative integer field, or 0 when absent.
func uintField(s *structpb.Struct, name string) (uint64, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return 0, nil
	}
	nv, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || nv.NumberValue < 0 || nv.NumberValue != math.Trunc(nv.NumberValue) {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return uint64(nv.NumberValue), nil
}
