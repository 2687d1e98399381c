package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

type calculatorArgs struct {
	Op string  `mapstructure:"op"`
	A  float64 `mapstructure:"a"`
	B  float64 `mapstructure:"b"`
}

// Calculator is a tool performing one arithmetic operation.
// Arguments: "op" (add, sub, mul, div), "a" and "b". Numbers may be given as
// any numeric type or numeric string.
func Calculator(_ context.Context, args map[string]any) (any, error) {
	var in calculatorArgs
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &in,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(args); err != nil {
		return nil, fmt.Errorf("calculator arguments: %w", err)
	}

	switch in.Op {
	case "add":
		return in.A + in.B, nil
	case "sub":
		return in.A - in.B, nil
	case "mul":
		return in.A * in.B, nil
	case "div":
		if in.B == 0 {
			return nil, errors.New("division by zero")
		}
		return in.A / in.B, nil
	default:
		return nil, fmt.Errorf("unsupported operation %q", in.Op)
	}
}
