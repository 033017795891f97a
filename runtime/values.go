package runtime

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-shell/errors"
)

// ParseValue converts text into the raw stack encoding of t.
func ParseValue(t api.ValueType, s string) (uint64, error) {
	s = strings.TrimSpace(s)
	switch t {
	case api.ValueTypeI32:
		v, err := strconv.ParseInt(s, 0, 32)
		if err != nil {
			return 0, invalidValue(t, s, err)
		}
		return api.EncodeI32(int32(v)), nil
	case api.ValueTypeI64:
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return 0, invalidValue(t, s, err)
		}
		return api.EncodeI64(v), nil
	case api.ValueTypeF32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return 0, invalidValue(t, s, err)
		}
		return api.EncodeF32(float32(v)), nil
	case api.ValueTypeF64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, invalidValue(t, s, err)
		}
		return api.EncodeF64(v), nil
	default:
		return 0, errors.Unsupported(errors.PhaseLoad, "value type "+api.ValueTypeName(t))
	}
}

// FormatValue renders a raw stack value of type t.
func FormatValue(t api.ValueType, v uint64) string {
	switch t {
	case api.ValueTypeI32:
		return strconv.FormatInt(int64(api.DecodeI32(v)), 10)
	case api.ValueTypeI64:
		return strconv.FormatInt(int64(v), 10)
	case api.ValueTypeF32:
		return strconv.FormatFloat(float64(api.DecodeF32(v)), 'g', -1, 32)
	case api.ValueTypeF64:
		return strconv.FormatFloat(api.DecodeF64(v), 'g', -1, 64)
	default:
		return fmt.Sprintf("0x%x", v)
	}
}

func invalidValue(t api.ValueType, s string, err error) error {
	return errors.New(errors.PhaseLoad, errors.KindInvalidInput).
		Target(api.ValueTypeName(t)).
		Value(s).
		Detail("%q is not a valid %s", s, api.ValueTypeName(t)).
		Cause(err).
		Build()
}

// Signature renders f like "add(i32, i32) -> i32".
func (f Function) Signature() string {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = api.ValueTypeName(p)
	}
	sig := f.Name + "(" + strings.Join(params, ", ") + ")"
	switch len(f.Results) {
	case 0:
		return sig
	case 1:
		return sig + " -> " + api.ValueTypeName(f.Results[0])
	default:
		results := make([]string, len(f.Results))
		for i, r := range f.Results {
			results[i] = api.ValueTypeName(r)
		}
		return sig + " -> (" + strings.Join(results, ", ") + ")"
	}
}
