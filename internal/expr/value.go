package expr

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/ginja-dev/ginja/internal/binding"
	"github.com/ginja-dev/ginja/internal/errors"
)

// Func is the calling convention for values callable from expressions.
type Func func(args []any, kwargs map[string]any) (any, error)

// Invertible is a callable with a known inverse, enabling two-way value
// binding: given y = f(x), the inverse recovers x from an edited y.
type Invertible struct {
	Name    string
	Fn      Func
	Inverse Func
}

// Truth reports the truthiness of a value, following the source
// language's rules: empty/zero values are false.
func Truth(val any) bool {
	switch v := val.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case *binding.List:
		return v.Len() > 0
	case *binding.Map:
		return v.Len() > 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		if f, ok := toFloat(val); ok {
			return f != 0
		}
		return true
	}
}

func toFloat(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Str stringifies a value for template output. Whole floats print without
// a decimal part so numeric results look like the original engine's.
func Str(val any) string {
	switch v := val.(type) {
	case nil:
		return "None"
	case bool:
		if v {
			return "True"
		}
		return "False"
	case string:
		return v
	case *binding.List:
		return Str(v.Items())
	case []any:
		parts := make([]string, len(v))
		for i, it := range v {
			parts[i] = Repr(it)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *binding.Map:
		parts := make([]string, 0, v.Len())
		for _, k := range v.Keys() {
			item, _ := v.Get(k)
			parts = append(parts, Repr(k)+": "+Repr(item))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(v))
		for _, k := range keys {
			parts = append(parts, Repr(k)+": "+Repr(v[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		if f, ok := toFloat(val); ok {
			return formatNumber(f)
		}
		return fmt.Sprint(val)
	}
}

// Repr stringifies a value the way it would appear in an expression:
// strings are quoted, everything else matches Str.
func Repr(val any) string {
	if s, ok := val.(string); ok {
		return "'" + strings.ReplaceAll(s, "'", "\\'") + "'"
	}
	return Str(val)
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

// Equal compares two values, comparing numbers numerically regardless of
// the concrete numeric type.
func Equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	if la, ok := a.(*binding.List); ok {
		a = la.Items()
	}
	if lb, ok := b.(*binding.List); ok {
		b = lb.Items()
	}
	if sa, ok := a.([]any); ok {
		sb, ok := b.([]any)
		if !ok || len(sa) != len(sb) {
			return false
		}
		for i := range sa {
			if !Equal(sa[i], sb[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// compare returns -1, 0 or 1 for ordered values (numbers and strings).
func compare(a, b any) (int, error) {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1, nil
			case fa > fb:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return strings.Compare(sa, sb), nil
		}
	}
	return 0, errors.NewExpression(fmt.Sprintf("cannot order %T and %T", a, b))
}

func numeric(op string, val any) (float64, error) {
	f, ok := toFloat(val)
	if !ok {
		return 0, errors.NewExpression(fmt.Sprintf("operator %q needs a number, got %T", op, val))
	}
	return f, nil
}

// applyBinary evaluates a binary operator on two values.
func applyBinary(op string, left, right any) (any, error) {
	switch op {
	case "+":
		if ls, ok := left.(string); ok {
			rs, ok := right.(string)
			if !ok {
				return nil, errors.NewExpression(fmt.Sprintf("cannot concatenate string and %T", right))
			}
			return ls + rs, nil
		}
		if ll, lok := asItems(left); lok {
			rl, rok := asItems(right)
			if !rok {
				return nil, errors.NewExpression(fmt.Sprintf("cannot concatenate list and %T", right))
			}
			out := make([]any, 0, len(ll)+len(rl))
			out = append(out, ll...)
			out = append(out, rl...)
			return out, nil
		}
		fallthrough
	case "-", "*", "/", "//", "%", "**":
		if op == "*" {
			if s, n, ok := stringRepeat(left, right); ok {
				return strings.Repeat(s, n), nil
			}
		}
		l, err := numeric(op, left)
		if err != nil {
			return nil, err
		}
		r, err := numeric(op, right)
		if err != nil {
			return nil, err
		}
		switch op {
		case "+":
			return l + r, nil
		case "-":
			return l - r, nil
		case "*":
			return l * r, nil
		case "/":
			if r == 0 {
				return nil, errors.NewExpression("division by zero")
			}
			return l / r, nil
		case "//":
			if r == 0 {
				return nil, errors.NewExpression("division by zero")
			}
			return math.Floor(l / r), nil
		case "%":
			if r == 0 {
				return nil, errors.NewExpression("modulo by zero")
			}
			m := math.Mod(l, r)
			if m != 0 && (m < 0) != (r < 0) {
				m += r
			}
			return m, nil
		case "**":
			return math.Pow(l, r), nil
		}
	case "==":
		return Equal(left, right), nil
	case "!=":
		return !Equal(left, right), nil
	case "<", ">", "<=", ">=":
		c, err := compare(left, right)
		if err != nil {
			return nil, err
		}
		switch op {
		case "<":
			return c < 0, nil
		case ">":
			return c > 0, nil
		case "<=":
			return c <= 0, nil
		default:
			return c >= 0, nil
		}
	case "and":
		if !Truth(left) {
			return left, nil
		}
		return right, nil
	case "or":
		if Truth(left) {
			return left, nil
		}
		return right, nil
	case "is":
		return Equal(left, right), nil
	case "is not":
		return !Equal(left, right), nil
	case "in":
		return contains(right, left)
	}
	return nil, errors.NewExpression("unknown operator: " + op)
}

func stringRepeat(left, right any) (string, int, bool) {
	if s, ok := left.(string); ok {
		if f, ok := toFloat(right); ok && f >= 0 && f == math.Trunc(f) {
			return s, int(f), true
		}
	}
	if s, ok := right.(string); ok {
		if f, ok := toFloat(left); ok && f >= 0 && f == math.Trunc(f) {
			return s, int(f), true
		}
	}
	return "", 0, false
}

func asItems(val any) ([]any, bool) {
	switch v := val.(type) {
	case []any:
		return v, true
	case *binding.List:
		return v.Items(), true
	default:
		return nil, false
	}
}

func contains(haystack, needle any) (any, error) {
	switch h := haystack.(type) {
	case string:
		s, ok := needle.(string)
		if !ok {
			return nil, errors.NewExpression(fmt.Sprintf("'in <string>' needs a string, got %T", needle))
		}
		return strings.Contains(h, s), nil
	case *binding.Map:
		s, ok := needle.(string)
		if !ok {
			return false, nil
		}
		_, found := h.Get(s)
		return found, nil
	case map[string]any:
		s, ok := needle.(string)
		if !ok {
			return false, nil
		}
		_, found := h[s]
		return found, nil
	default:
		items, ok := asItems(haystack)
		if !ok {
			return nil, errors.NewExpression(fmt.Sprintf("%T is not iterable", haystack))
		}
		for _, it := range items {
			if Equal(it, needle) {
				return true, nil
			}
		}
		return false, nil
	}
}

// Iterate returns the elements of an iterable value: runes of a string,
// sorted keys of a map, elements of a list.
func Iterate(val any) ([]any, error) { return iterate(val) }

// iterate returns the elements of an iterable value.
func iterate(val any) ([]any, error) {
	switch v := val.(type) {
	case string:
		out := make([]any, 0, len(v))
		for _, r := range v {
			out = append(out, string(r))
		}
		return out, nil
	case *binding.Map:
		keys := v.Keys()
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = k
		}
		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = k
		}
		return out, nil
	default:
		if items, ok := asItems(val); ok {
			return items, nil
		}
		return nil, errors.NewExpression(fmt.Sprintf("%T is not iterable", val))
	}
}

func applyUnary(op string, val any) (any, error) {
	switch op {
	case "-unary":
		f, err := numeric("-", val)
		if err != nil {
			return nil, err
		}
		return -f, nil
	case "not":
		return !Truth(val), nil
	}
	return nil, errors.NewExpression("unknown unary operator: " + op)
}

func normalizeIndex(i float64, length int) (int, error) {
	if i != math.Trunc(i) {
		return 0, errors.NewExpression("index must be an integer")
	}
	idx := int(i)
	if idx < 0 {
		idx += length
	}
	if idx < 0 || idx >= length {
		return 0, errors.NewExpression(fmt.Sprintf("index %d out of range", int(i)))
	}
	return idx, nil
}

// indexValue implements subscription: container[index or slice].
func indexValue(container, index any) (any, error) {
	if sl, ok := index.(sliceSpec); ok {
		return sliceValue(container, sl)
	}
	switch c := container.(type) {
	case string:
		f, err := numeric("[]", index)
		if err != nil {
			return nil, err
		}
		runes := []rune(c)
		idx, err := normalizeIndex(f, len(runes))
		if err != nil {
			return nil, err
		}
		return string(runes[idx]), nil
	case *binding.Map:
		key, ok := index.(string)
		if !ok {
			return nil, errors.NewExpression(fmt.Sprintf("map index must be a string, got %T", index))
		}
		v, found := c.Get(key)
		if !found {
			return nil, errors.NewUndefined(key)
		}
		return v, nil
	case map[string]any:
		key, ok := index.(string)
		if !ok {
			return nil, errors.NewExpression(fmt.Sprintf("map index must be a string, got %T", index))
		}
		v, found := c[key]
		if !found {
			return nil, errors.NewUndefined(key)
		}
		return v, nil
	default:
		items, ok := asItems(container)
		if !ok {
			return nil, errors.NewExpression(fmt.Sprintf("%T is not subscriptable", container))
		}
		f, err := numeric("[]", index)
		if err != nil {
			return nil, err
		}
		idx, err := normalizeIndex(f, len(items))
		if err != nil {
			return nil, err
		}
		return items[idx], nil
	}
}

// sliceSpec is the runtime value of a slice expression a[start:end:step].
type sliceSpec struct {
	start, end, step any // nil when omitted
}

func sliceValue(container any, spec sliceSpec) (any, error) {
	if s, ok := container.(string); ok {
		runes := []rune(s)
		idxs, err := sliceIndices(spec, len(runes))
		if err != nil {
			return nil, err
		}
		out := make([]rune, 0, len(idxs))
		for _, i := range idxs {
			out = append(out, runes[i])
		}
		return string(out), nil
	}
	items, ok := asItems(container)
	if !ok {
		return nil, errors.NewExpression(fmt.Sprintf("%T cannot be sliced", container))
	}
	idxs, err := sliceIndices(spec, len(items))
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, items[i])
	}
	return out, nil
}

func sliceBound(val any, def int, length int) (int, error) {
	if val == nil {
		return def, nil
	}
	f, err := numeric("[:]", val)
	if err != nil {
		return 0, err
	}
	idx := int(f)
	if idx < 0 {
		idx += length
	}
	if idx < 0 {
		idx = 0
	}
	if idx > length {
		idx = length
	}
	return idx, nil
}

func sliceIndices(spec sliceSpec, length int) ([]int, error) {
	step := 1
	if spec.step != nil {
		f, err := numeric("[:]", spec.step)
		if err != nil {
			return nil, err
		}
		step = int(f)
		if step == 0 {
			return nil, errors.NewExpression("slice step cannot be zero")
		}
	}
	var out []int
	if step > 0 {
		start, err := sliceBound(spec.start, 0, length)
		if err != nil {
			return nil, err
		}
		end, err := sliceBound(spec.end, length, length)
		if err != nil {
			return nil, err
		}
		for i := start; i < end; i += step {
			out = append(out, i)
		}
	} else {
		start, err := sliceBound(spec.start, length-1, length)
		if err != nil {
			return nil, err
		}
		if spec.start != nil && start == length {
			start = length - 1
		}
		end, err := sliceBound(spec.end, -1, length)
		if err != nil {
			return nil, err
		}
		if spec.end == nil {
			end = -1
		}
		for i := start; i > end && i >= 0; i += step {
			out = append(out, i)
		}
	}
	return out, nil
}

// getAttr implements attribute access obj.name: map keys, struct fields
// and bound methods.
func getAttr(obj any, name string) (any, error) {
	switch o := obj.(type) {
	case *binding.Map:
		if v, ok := o.Get(name); ok {
			return v, nil
		}
		return nil, errors.NewUndefined(name)
	case map[string]any:
		if v, ok := o[name]; ok {
			return v, nil
		}
		return nil, errors.NewUndefined(name)
	case *binding.Context:
		return o.Get(name)
	}
	rv := reflect.ValueOf(obj)
	if !rv.IsValid() {
		return nil, errors.NewExpression("cannot access attribute " + name + " of None")
	}
	if m := rv.MethodByName(exported(name)); m.IsValid() {
		return m.Interface(), nil
	}
	for rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Struct {
		if f := rv.FieldByName(exported(name)); f.IsValid() && f.CanInterface() {
			return f.Interface(), nil
		}
	}
	return nil, errors.NewExpression(fmt.Sprintf("%T has no attribute %q", obj, name))
}

// setAttr implements attribute assignment obj.name = val.
func setAttr(obj any, name string, val any) error {
	switch o := obj.(type) {
	case *binding.Map:
		o.Set(name, val)
		return nil
	case map[string]any:
		o[name] = val
		return nil
	case *binding.Context:
		return o.Set(name, val)
	}
	rv := reflect.ValueOf(obj)
	for rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Struct {
		f := rv.FieldByName(exported(name))
		if f.IsValid() && f.CanSet() {
			nv := reflect.ValueOf(val)
			if nv.IsValid() && nv.Type().ConvertibleTo(f.Type()) {
				f.Set(nv.Convert(f.Type()))
				return nil
			}
		}
	}
	return errors.NewExpression(fmt.Sprintf("cannot assign attribute %q on %T", name, obj))
}

// setIndex implements subscript assignment container[index] = val.
func setIndex(container, index, val any) error {
	switch c := container.(type) {
	case *binding.List:
		f, err := numeric("[]", index)
		if err != nil {
			return err
		}
		idx, err := normalizeIndex(f, c.Len())
		if err != nil {
			return err
		}
		c.Set(idx, val)
		return nil
	case []any:
		f, err := numeric("[]", index)
		if err != nil {
			return err
		}
		idx, err := normalizeIndex(f, len(c))
		if err != nil {
			return err
		}
		c[idx] = val
		return nil
	case *binding.Map:
		key, ok := index.(string)
		if !ok {
			return errors.NewExpression("map index must be a string")
		}
		c.Set(key, val)
		return nil
	case map[string]any:
		key, ok := index.(string)
		if !ok {
			return errors.NewExpression("map index must be a string")
		}
		c[key] = val
		return nil
	default:
		return errors.NewExpression(fmt.Sprintf("%T does not support item assignment", container))
	}
}

// call invokes a callable value with evaluated arguments.
func call(callee any, args []any, kwargs map[string]any) (any, error) {
	switch f := callee.(type) {
	case Func:
		return f(args, kwargs)
	case Invertible:
		return f.Fn(args, kwargs)
	case *Invertible:
		return f.Fn(args, kwargs)
	case func(args []any, kwargs map[string]any) (any, error):
		return f(args, kwargs)
	}
	rv := reflect.ValueOf(callee)
	if rv.Kind() != reflect.Func {
		return nil, errors.NewExpression(fmt.Sprintf("%T is not callable", callee))
	}
	if len(kwargs) > 0 {
		return nil, errors.NewExpression("keyword arguments are not supported for native functions")
	}
	return callReflected(rv, args)
}

func callReflected(fn reflect.Value, args []any) (any, error) {
	t := fn.Type()
	if !t.IsVariadic() && t.NumIn() != len(args) {
		return nil, errors.NewExpression(fmt.Sprintf("function expects %d arguments, got %d", t.NumIn(), len(args)))
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		var want reflect.Type
		if t.IsVariadic() && i >= t.NumIn()-1 {
			want = t.In(t.NumIn() - 1).Elem()
		} else {
			want = t.In(i)
		}
		av := reflect.ValueOf(a)
		if !av.IsValid() {
			in[i] = reflect.Zero(want)
			continue
		}
		if av.Type().ConvertibleTo(want) {
			in[i] = av.Convert(want)
		} else {
			return nil, errors.NewExpression(fmt.Sprintf("argument %d: cannot use %T as %s", i, a, want))
		}
	}
	out := fn.Call(in)
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0].Interface(), nil
	default:
		if err, ok := out[len(out)-1].Interface().(error); ok && err != nil {
			return nil, err
		}
		return out[0].Interface(), nil
	}
}

func exported(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
