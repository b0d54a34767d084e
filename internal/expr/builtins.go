package expr

import (
	"strconv"
	"strings"

	"github.com/ginja-dev/ginja/internal/binding"
	"github.com/ginja-dev/ginja/internal/errors"
)

// parseFloatStrict parses a trimmed decimal number, rejecting anything
// strconv would accept but Python would not (hex, inf, nan).
func parseFloatStrict(s string) (float64, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0, errors.NewExpression("could not convert string to number: " + Repr(s))
	}
	lower := strings.ToLower(t)
	if strings.ContainsAny(lower, "xpn") || strings.Contains(lower, "inf") {
		return 0, errors.NewExpression("could not convert string to number: " + Repr(s))
	}
	v, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, errors.NewExpression("could not convert string to number: " + Repr(s))
	}
	return v, nil
}

func oneArg(name string, args []any, kwargs map[string]any) (any, error) {
	if len(args) != 1 || len(kwargs) > 0 {
		return nil, errors.NewExpression(name + "() takes exactly one positional argument")
	}
	return args[0], nil
}

var builtinStr = &Invertible{
	Name: "str",
	Fn: func(args []any, kwargs map[string]any) (any, error) {
		v, err := oneArg("str", args, kwargs)
		if err != nil {
			return nil, err
		}
		return Str(v), nil
	},
	// the inverse maps the rendered text back onto the argument: numbers
	// are parsed, everything else passes through as the string itself
	Inverse: func(args []any, kwargs map[string]any) (any, error) {
		v, err := oneArg("str", args, kwargs)
		if err != nil {
			return nil, err
		}
		s, ok := v.(string)
		if !ok {
			return v, nil
		}
		if f, err := parseFloatStrict(s); err == nil {
			return f, nil
		}
		switch s {
		case "True":
			return true, nil
		case "False":
			return false, nil
		case "None":
			return nil, nil
		}
		return s, nil
	},
}

var builtinInt = &Invertible{
	Name: "int",
	Fn: func(args []any, kwargs map[string]any) (any, error) {
		v, err := oneArg("int", args, kwargs)
		if err != nil {
			return nil, err
		}
		switch t := v.(type) {
		case string:
			f, err := parseFloatStrict(t)
			if err != nil {
				return nil, err
			}
			if f != float64(int64(f)) {
				return nil, errors.NewExpression("invalid literal for int(): " + Repr(t))
			}
			return f, nil
		case bool:
			if t {
				return float64(1), nil
			}
			return float64(0), nil
		default:
			f, ok := toFloat(v)
			if !ok {
				return nil, errors.NewExpression("int() argument must be a string or a number")
			}
			return float64(int64(f)), nil
		}
	},
	Inverse: func(args []any, kwargs map[string]any) (any, error) {
		v, err := oneArg("int", args, kwargs)
		if err != nil {
			return nil, err
		}
		if s, ok := v.(string); ok {
			return parseFloatStrict(s)
		}
		f, ok := toFloat(v)
		if !ok {
			return nil, errors.NewExpression("cannot invert int() for " + Repr(v))
		}
		return f, nil
	},
}

var builtinLen = Func(func(args []any, kwargs map[string]any) (any, error) {
	v, err := oneArg("len", args, kwargs)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case string:
		return float64(len([]rune(t))), nil
	case map[string]any:
		return float64(len(t)), nil
	case *binding.Map:
		return float64(t.Len()), nil
	}
	if items, ok := asItems(v); ok {
		return float64(len(items)), nil
	}
	return nil, errors.NewExpression("object has no len()")
})

var builtinFloat = Func(func(args []any, kwargs map[string]any) (any, error) {
	v, err := oneArg("float", args, kwargs)
	if err != nil {
		return nil, err
	}
	if s, ok := v.(string); ok {
		return parseFloatStrict(s)
	}
	f, ok := toFloat(v)
	if !ok {
		return nil, errors.NewExpression("float() argument must be a string or a number")
	}
	return f, nil
})

// Builtins are the callables available in every expression. They cannot
// be shadowed by context variables.
var Builtins = map[string]any{
	"str":   builtinStr,
	"int":   builtinInt,
	"len":   builtinLen,
	"float": builtinFloat,
}
