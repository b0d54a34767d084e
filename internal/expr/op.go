package expr

import (
	"github.com/ginja-dev/ginja/internal/binding"
	"github.com/ginja-dev/ginja/internal/errors"
	"github.com/ginja-dev/ginja/internal/pubsub"
)

// unaryOps have no left argument.
var unaryOps = map[string]bool{"-unary": true, "not": true}

// OpNode is an operator application: a + b, a is None, a[10], f(x, y=1).
type OpNode struct {
	base
	opstr   string
	larg    Node // nil for unary operators
	rarg    Node
	valEmit *pubsub.Emitter
	valSub  pubsub.Subscription
}

// NewOp returns an operator node; larg is nil for unary operators.
func NewOp(operator string, larg, rarg Node) *OpNode {
	n := &OpNode{base: newBase(), opstr: operator, larg: larg, rarg: rarg}
	n.self = n
	if larg != nil {
		larg.Events().On("change", n.changeHandler)
	}
	rarg.Events().On("change", n.changeHandler)
	return n
}

// Op returns the operator string.
func (n *OpNode) Op() string { return n.opstr }

// Left returns the left operand; nil for unary operators.
func (n *OpNode) Left() Node { return n.larg }

// Right returns the right operand.
func (n *OpNode) Right() Node { return n.rarg }

// Mutable subscripts (a[i] with a constant-shaped index, not a slice)
// can be assigned through.
func (n *OpNode) Mutable() bool {
	if n.opstr != "[]" {
		return false
	}
	sl, ok := n.rarg.(*SliceNode)
	return ok && !sl.isSlice && n.larg.Mutable()
}

func (n *OpNode) IsConst(assume []Node) bool {
	if n.larg != nil && !n.larg.IsConst(assume) {
		return false
	}
	return n.rarg.IsConst(assume)
}

func (n *OpNode) Simplify(assume []Node) Node {
	var sl Node
	if n.larg != nil {
		sl = n.larg.Simplify(assume)
	}
	sr := n.rarg.Simplify(assume)
	if (sl == nil || sl.IsConst(assume)) && sr.IsConst(assume) {
		if v, err := NewOp(n.opstr, sl, sr).Eval(false); err == nil {
			return NewConst(v)
		}
	}
	return NewOp(n.opstr, sl, sr)
}

func (n *OpNode) Clone() Node {
	var l Node
	if n.larg != nil {
		l = n.larg.Clone()
	}
	return NewOp(n.opstr, l, n.rarg.Clone())
}

func (n *OpNode) apply(left, right any) (any, error) {
	switch n.opstr {
	case "[]":
		if spec, ok := right.(sliceSpec); ok {
			return sliceValue(left, spec)
		}
		return indexValue(left, right)
	case "()":
		av, ok := right.(argsValue)
		if !ok {
			av = argsValue{}
		}
		return call(left, av.args, av.kwargs)
	default:
		if unaryOps[n.opstr] {
			return applyUnary(n.opstr, right)
		}
		return applyBinary(n.opstr, left, right)
	}
}

func (n *OpNode) Eval(refresh bool) (any, error) {
	if !n.dirty && !refresh {
		return n.cached, nil
	}
	n.defined = false
	var left any
	var err error
	if !unaryOps[n.opstr] {
		left, err = n.larg.Eval(refresh)
		if err != nil {
			return nil, err
		}
	}
	right, err := n.rarg.Eval(refresh)
	if err != nil {
		return nil, err
	}
	val, err := n.apply(left, right)
	if err != nil {
		return nil, err
	}
	n.cached = val
	// subscripts and calls can yield observable containers; watch them so
	// mutations propagate through this node
	if n.opstr == "[]" || n.opstr == "()" {
		if n.valEmit != nil {
			n.valEmit.Off(n.valSub)
			n.valEmit = nil
		}
		if em := binding.Observe(val); em != nil {
			n.valEmit = em
			n.valSub = em.On("change", n.changeHandler)
		}
	}
	n.defined = true
	n.dirty = false
	return val, nil
}

func (n *OpNode) EvalCtx(ctx *binding.Context) (any, error) {
	var left any
	var err error
	if !unaryOps[n.opstr] {
		left, err = n.larg.EvalCtx(ctx)
		if err != nil {
			return nil, err
		}
	}
	right, err := n.rarg.EvalCtx(ctx)
	if err != nil {
		return nil, err
	}
	return n.apply(left, right)
}

// Call evaluates the node as a function call with extra arguments
// appended and extra keyword arguments merged in. Event handlers in
// templates use it to inject the event object.
func (n *OpNode) Call(injectArgs []any, injectKwargs map[string]any) (any, error) {
	if n.opstr != "()" {
		return nil, errors.NewExpression("calling " + n.String() + " does not make sense")
	}
	fn, err := n.larg.Eval(false)
	if err != nil {
		return nil, err
	}
	rv, err := n.rarg.Eval(false)
	if err != nil {
		return nil, err
	}
	av, _ := rv.(argsValue)
	args := make([]any, 0, len(av.args)+len(injectArgs))
	args = append(args, av.args...)
	args = append(args, injectArgs...)
	kwargs := make(map[string]any, len(av.kwargs)+len(injectKwargs))
	for k, v := range av.kwargs {
		kwargs[k] = v
	}
	for k, v := range injectKwargs {
		kwargs[k] = v
	}
	return call(fn, args, kwargs)
}

func (n *OpNode) solveFunc(val any, x Node) error {
	fn, err := n.larg.Eval(false)
	if err != nil {
		return noSolution(n, val, x)
	}
	var inv Invertible
	switch f := fn.(type) {
	case Invertible:
		inv = f
	case *Invertible:
		inv = *f
	default:
		return noSolution(n, val, x)
	}
	if inv.Inverse == nil {
		return noSolution(n, val, x)
	}
	fa, ok := n.rarg.(*FuncArgsNode)
	if !ok {
		return noSolution(n, val, x)
	}
	var exp Node
	found := 0
	for _, v := range fa.kwargs {
		if v.Contains(x) {
			found++
		}
	}
	for _, v := range fa.children {
		if v.Contains(x) {
			found++
		}
	}
	if found != 1 {
		return noSolution(n, val, x)
	}
	rv, err := fa.Eval(false)
	if err != nil {
		return noSolution(n, val, x)
	}
	av := rv.(argsValue)
	args := append([]any{}, av.args...)
	kwargs := make(map[string]any, len(av.kwargs))
	for k, v := range av.kwargs {
		kwargs[k] = v
	}
	for k, v := range fa.kwargs {
		if v.Contains(x) {
			kwargs[k] = val
			exp = v
		}
	}
	for i, v := range fa.children {
		if v.Contains(x) {
			args[i] = val
			exp = v
		}
	}
	solved, err := inv.Inverse(args, kwargs)
	if err != nil {
		return noSolution(n, val, x)
	}
	return exp.Solve(solved, x)
}

func (n *OpNode) toNumber(val any, x Node) (float64, error) {
	if f, ok := toFloat(val); ok {
		return f, nil
	}
	if s, ok := val.(string); ok {
		if v, err := parseFloatStrict(s); err == nil {
			return v, nil
		}
	}
	return 0, noSolution(n, val, x)
}

func (n *OpNode) Solve(val any, x Node) error {
	switch n.opstr {
	case "-unary":
		if !n.rarg.Equal(x) {
			return noSolution(n, val, x)
		}
		f, err := n.toNumber(val, x)
		if err != nil {
			return err
		}
		return n.rarg.Solve(-f, x)
	case "not":
		if !n.rarg.Equal(x) {
			return noSolution(n, val, x)
		}
		return n.rarg.Solve(!Truth(val), x)
	case "[]":
		if n.Equal(x) {
			return n.Assign(val)
		}
		return noSolution(n, val, x)
	case "()":
		return n.solveFunc(val, x)
	case "*":
		f, err := n.toNumber(val, x)
		if err != nil {
			return err
		}
		if !n.larg.Contains(x) {
			l, ok := toFloat(n.larg.Value())
			if !ok || l == 0 {
				return noSolution(n, val, x)
			}
			return n.rarg.Solve(f/l, x)
		}
		if !n.rarg.Contains(x) {
			r, ok := toFloat(n.rarg.Value())
			if !ok || r == 0 {
				return noSolution(n, val, x)
			}
			return n.larg.Solve(f/r, x)
		}
		return noSolution(n, val, x)
	case "-":
		f, err := n.toNumber(val, x)
		if err != nil {
			return err
		}
		if !n.larg.Contains(x) {
			l, ok := toFloat(n.larg.Value())
			if !ok {
				return noSolution(n, val, x)
			}
			return n.rarg.Solve(l-f, x)
		}
		if !n.rarg.Contains(x) {
			r, ok := toFloat(n.rarg.Value())
			if !ok {
				return noSolution(n, val, x)
			}
			return n.larg.Solve(f+r, x)
		}
		return noSolution(n, val, x)
	case "+":
		// string concatenation inverts too when the known side is a prefix
		// or suffix of the target
		if lv, lok := n.larg.Value().(string); lok && !n.larg.Contains(x) {
			if sv, ok := val.(string); ok && len(sv) >= len(lv) && sv[:len(lv)] == lv {
				return n.rarg.Solve(sv[len(lv):], x)
			}
		}
		if rv, rok := n.rarg.Value().(string); rok && !n.rarg.Contains(x) {
			if sv, ok := val.(string); ok && len(sv) >= len(rv) && sv[len(sv)-len(rv):] == rv {
				return n.larg.Solve(sv[:len(sv)-len(rv)], x)
			}
		}
		f, err := n.toNumber(val, x)
		if err != nil {
			return err
		}
		if !n.larg.Contains(x) {
			l, ok := toFloat(n.larg.Value())
			if !ok {
				return noSolution(n, val, x)
			}
			return n.rarg.Solve(f-l, x)
		}
		if !n.rarg.Contains(x) {
			r, ok := toFloat(n.rarg.Value())
			if !ok {
				return noSolution(n, val, x)
			}
			return n.larg.Solve(f-r, x)
		}
		return noSolution(n, val, x)
	default:
		return noSolution(n, val, x)
	}
}

func (n *OpNode) Assign(val any) error {
	if n.opstr != "[]" {
		return errors.NewExpression("assigning to " + n.String() + " does not make sense")
	}
	if err := setIndex(n.larg.Value(), n.rarg.Value(), val); err != nil {
		return err
	}
	n.cached = val
	n.defined = true
	return nil
}

func (n *OpNode) BindCtx(ctx *binding.Context) {
	n.bindBase(ctx)
	n.dirty = true
	if n.larg != nil {
		n.larg.BindCtx(ctx)
	}
	n.rarg.BindCtx(ctx)
}

func (n *OpNode) Contains(x Node) bool {
	if n.larg != nil && n.larg.Contains(x) {
		return true
	}
	return n.rarg.Contains(x) || n.Equal(x)
}

func (n *OpNode) Equal(other Node) bool {
	o, ok := other.(*OpNode)
	return ok && n.opstr == o.opstr && equalNode(n.larg, o.larg) && n.rarg.Equal(o.rarg)
}

func (n *OpNode) String() string {
	switch n.opstr {
	case "-unary":
		return "-" + n.rarg.String()
	case "not":
		return "(not " + n.rarg.String() + ")"
	case "[]":
		return n.larg.String() + "[" + n.rarg.String() + "]"
	case "()":
		return n.larg.String() + "(" + n.rarg.String() + ")"
	case "**":
		return n.larg.String() + "**" + n.rarg.String()
	}
	lRepr := n.larg.String()
	if lo, ok := n.larg.(*OpNode); ok && opPriority[lo.opstr] < opPriority[n.opstr] {
		lRepr = "(" + lRepr + ")"
	}
	rRepr := n.rarg.String()
	if ro, ok := n.rarg.(*OpNode); ok && opPriority[ro.opstr] <= opPriority[n.opstr] {
		rRepr = "(" + rRepr + ")"
	}
	return lRepr + " " + n.opstr + " " + rRepr
}

// AttrAccessNode is attribute access, e.g. obj.prop. The AST of a chain
// is rooted at the rightmost attribute.
type AttrAccessNode struct {
	base
	obj     Node
	attr    *IdentNode
	valEmit *pubsub.Emitter
	valSub  pubsub.Subscription
}

// NewAttrAccess returns an attribute-access node.
func NewAttrAccess(obj Node, attr *IdentNode) *AttrAccessNode {
	n := &AttrAccessNode{base: newBase(), obj: obj, attr: attr}
	n.self = n
	obj.Events().On("change", n.changeHandler)
	return n
}

func (n *AttrAccessNode) Mutable() bool {
	if n.ctx == nil {
		return true
	}
	return n.obj.Mutable()
}

func (n *AttrAccessNode) IsConst(assume []Node) bool { return n.obj.IsConst(assume) }

func (n *AttrAccessNode) Simplify(assume []Node) Node {
	sObj := n.obj.Simplify(assume)
	if sObj.IsConst(nil) {
		if v, err := NewAttrAccess(sObj, n.attr).Eval(false); err == nil {
			return NewConst(v)
		}
	}
	return NewAttrAccess(sObj, n.attr.Clone().(*IdentNode))
}

func (n *AttrAccessNode) Clone() Node {
	return NewAttrAccess(n.obj.Clone(), n.attr.Clone().(*IdentNode))
}

func (n *AttrAccessNode) Eval(refresh bool) (any, error) {
	if !n.dirty && !refresh {
		return n.cached, nil
	}
	n.defined = false
	if n.valEmit != nil {
		n.valEmit.Off(n.valSub)
		n.valEmit = nil
	}
	objVal, err := n.obj.Eval(refresh)
	if err != nil {
		return nil, err
	}
	val, err := getAttr(objVal, n.attr.Name())
	if err != nil {
		return nil, err
	}
	n.cached = val
	if em := binding.Observe(val); em != nil {
		n.valEmit = em
		n.valSub = em.On("change", n.attrChanged)
	}
	n.dirty = false
	n.defined = true
	return val, nil
}

func (n *AttrAccessNode) EvalCtx(ctx *binding.Context) (any, error) {
	objVal, err := n.obj.EvalCtx(ctx)
	if err != nil {
		return nil, err
	}
	return getAttr(objVal, n.attr.Name())
}

func (n *AttrAccessNode) Solve(val any, x Node) error {
	if n.Equal(x) {
		return n.Assign(val)
	}
	return noSolution(n, val, x)
}

func (n *AttrAccessNode) Assign(val any) error {
	objVal, err := n.obj.Eval(false)
	if err != nil {
		return err
	}
	if err := setAttr(objVal, n.attr.Name(), val); err != nil {
		return err
	}
	if n.valEmit != nil {
		n.valEmit.Off(n.valSub)
		n.valEmit = nil
	}
	n.cached = val
	if em := binding.Observe(val); em != nil {
		n.valEmit = em
		n.valSub = em.On("change", n.attrChanged)
	}
	n.defined = true
	return nil
}

func (n *AttrAccessNode) BindCtx(ctx *binding.Context) {
	n.bindBase(ctx)
	n.dirty = true
	if n.valEmit != nil {
		n.valEmit.Off(n.valSub)
		n.valEmit = nil
	}
	n.obj.BindCtx(ctx)
}

func (n *AttrAccessNode) attrChanged(evt pubsub.Event) {
	if n.dirty && n.defined {
		return
	}
	n.dirty = true
	if evt.Has("value") {
		n.events.Emit("change", map[string]any{"value": n.cached})
	} else {
		n.events.Emit("change", nil)
	}
}

func (n *AttrAccessNode) Contains(x Node) bool { return n.obj.Contains(x) || n.Equal(x) }

func (n *AttrAccessNode) Equal(other Node) bool {
	o, ok := other.(*AttrAccessNode)
	return ok && n.obj.Equal(o.obj) && n.attr.Equal(o.attr)
}

func (n *AttrAccessNode) String() string { return n.obj.String() + "." + n.attr.String() }
