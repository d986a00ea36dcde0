package config

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// StarlarkValues evaluates .star values files. A values file is a
// Starlark program that assigns a dict to the global `values`; the
// environment name is predeclared as `env` so a single file can branch
// per environment.
type StarlarkValues struct {
	timeout time.Duration
}

// NewStarlarkValues creates an evaluator with the given per-file timeout.
func NewStarlarkValues(timeout time.Duration) *StarlarkValues {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &StarlarkValues{timeout: timeout}
}

// EvalFile runs the program at path and returns its `values` dict.
func (sv *StarlarkValues) EvalFile(ctx context.Context, path, environment string) (map[string]interface{}, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read values file: %w", err)
	}
	return sv.Eval(ctx, path, string(src), environment)
}

// Eval runs a program from source. The filename is used only for error
// positions.
func (sv *StarlarkValues) Eval(ctx context.Context, filename, src, environment string) (map[string]interface{}, error) {
	evalCtx, cancel := context.WithTimeout(ctx, sv.timeout)
	defer cancel()

	type result struct {
		values map[string]interface{}
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := evalValues(filename, src, environment)
		ch <- result{values: v, err: err}
	}()

	select {
	case <-evalCtx.Done():
		return nil, fmt.Errorf("starlark values file %s: timeout after %v", filename, sv.timeout)
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("starlark values file %s: %w", filename, r.err)
		}
		return r.values, nil
	}
}

func evalValues(filename, src, environment string) (map[string]interface{}, error) {
	thread := &starlark.Thread{
		Name:  "values",
		Print: func(_ *starlark.Thread, _ string) {},
	}
	predeclared := starlark.StringDict{
		"struct": starlarkstruct.Default,
		"env":    starlark.String(environment),
	}

	globals, err := starlark.ExecFile(thread, filename, src, predeclared)
	if err != nil {
		return nil, err
	}

	raw, ok := globals["values"]
	if !ok {
		return nil, fmt.Errorf("program does not assign a global `values`")
	}
	converted, err := fromStarlarkValue(raw)
	if err != nil {
		return nil, err
	}
	values, ok := converted.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("global `values` is %s, want dict", raw.Type())
	}
	return values, nil
}

// fromStarlarkValue converts a Starlark value to the interface{} shapes
// the values merge operates on.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		if i, ok := val.Int64(); ok {
			if i >= math.MinInt32 && i <= math.MaxInt32 {
				return int(i), nil
			}
			return i, nil
		}
		return nil, fmt.Errorf("integer %s out of range", val.String())
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		out := make([]interface{}, 0, val.Len())
		it := val.Iterate()
		defer it.Done()
		var item starlark.Value
		for it.Next(&item) {
			converted, err := fromStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return out, nil
	case starlark.Tuple:
		out := make([]interface{}, 0, val.Len())
		for i := 0; i < val.Len(); i++ {
			converted, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return out, nil
	case *starlark.Dict:
		out := make(map[string]interface{}, val.Len())
		for _, key := range val.Keys() {
			ks, ok := key.(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key %s is %s, want string", key.String(), key.Type())
			}
			item, _, err := val.Get(key)
			if err != nil {
				return nil, err
			}
			converted, err := fromStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			out[string(ks)] = converted
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type %s", v.Type())
	}
}
