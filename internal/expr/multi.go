package expr

import (
	"sort"
	"strings"

	"github.com/ginja-dev/ginja/internal/binding"
	"github.com/ginja-dev/ginja/internal/errors"
	"github.com/ginja-dev/ginja/internal/pubsub"
)

// multiChild is the shared base for nodes with multiple subexpressions.
// It caches per-child values so a change to one child does not force
// re-evaluating the others.
type multiChild struct {
	base
	children      []Node
	cachedVals    []any
	dirtyChildren bool
}

func newMultiChild(children []Node) multiChild {
	m := multiChild{base: newBase(), children: children, dirtyChildren: true}
	return m
}

// watchChildren subscribes to the children; call after self is set.
func (m *multiChild) watchChildren() {
	for i, ch := range m.children {
		if ch == nil {
			continue
		}
		idx := i
		ch.Events().On("change", func(evt pubsub.Event) { m.childChanged(evt, idx) })
	}
}

func (m *multiChild) childChanged(evt pubsub.Event, idx int) {
	if m.dirtyChildren && m.defined {
		return
	}
	// cachedVals exists only after the first evaluation; until then the
	// whole child set is stale anyway
	if evt.Has("value") && idx < len(m.cachedVals) {
		m.cachedVals[idx] = evt.Get("value")
	} else {
		m.dirtyChildren = true
	}
	if !m.dirty || !m.defined {
		m.dirty = true
		m.events.Emit("change", nil)
	}
}

func (m *multiChild) childrenConst(assume []Node) bool {
	for _, ch := range m.children {
		if ch != nil && !ch.IsConst(assume) {
			return false
		}
	}
	return true
}

// evalChildren refreshes the per-child value cache and returns it.
func (m *multiChild) evalChildren(refresh bool) ([]any, error) {
	if m.dirtyChildren || refresh {
		m.defined = false
		vals := make([]any, len(m.children))
		for i, ch := range m.children {
			if ch == nil {
				continue
			}
			v, err := ch.Eval(refresh)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		m.cachedVals = vals
		m.dirty = false
		m.dirtyChildren = false
		m.defined = true
	}
	return m.cachedVals, nil
}

func (m *multiChild) evalChildrenCtx(ctx *binding.Context) ([]any, error) {
	vals := make([]any, len(m.children))
	for i, ch := range m.children {
		if ch == nil {
			continue
		}
		v, err := ch.EvalCtx(ctx)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func (m *multiChild) bindChildren(ctx *binding.Context) {
	m.bindBase(ctx)
	m.dirty = true
	m.dirtyChildren = true
	for _, ch := range m.children {
		if ch != nil {
			ch.BindCtx(ctx)
		}
	}
}

func (m *multiChild) containsIn(x Node) bool {
	for _, ch := range m.children {
		if ch != nil && ch.Contains(x) {
			return true
		}
	}
	return false
}

func (m *multiChild) equalChildren(o *multiChild) bool {
	if len(m.children) != len(o.children) {
		return false
	}
	for i := range m.children {
		if !equalNode(m.children[i], o.children[i]) {
			return false
		}
	}
	return true
}

// simplifyChildren simplifies each child and reports whether all of them
// folded to constants.
func (m *multiChild) simplifyChildren(assume []Node) ([]Node, bool) {
	out := make([]Node, len(m.children))
	allConst := true
	for i, ch := range m.children {
		if ch == nil {
			continue
		}
		s := ch.Simplify(assume)
		if !s.IsConst(assume) {
			allConst = false
		}
		out[i] = s
	}
	return out, allConst
}

// ListNode is a list literal, e.g. [1, 2, "three", None].
type ListNode struct {
	multiChild
}

// NewList returns a list-literal node.
func NewList(items []Node) *ListNode {
	n := &ListNode{multiChild: newMultiChild(items)}
	n.self = n
	n.watchChildren()
	return n
}

func (n *ListNode) IsConst(assume []Node) bool { return n.childrenConst(assume) }

func (n *ListNode) Eval(refresh bool) (any, error) {
	vals, err := n.evalChildren(refresh)
	if err != nil {
		return nil, err
	}
	n.cached = vals
	return vals, nil
}

func (n *ListNode) EvalCtx(ctx *binding.Context) (any, error) {
	return n.evalChildrenCtx(ctx)
}

func (n *ListNode) BindCtx(ctx *binding.Context) { n.bindChildren(ctx) }

func (n *ListNode) Clone() Node { return NewList(cloneAll(n.children)) }

func (n *ListNode) Simplify(assume []Node) Node {
	simplified, allConst := n.simplifyChildren(assume)
	if allConst {
		vals := make([]any, len(simplified))
		for i, s := range simplified {
			vals[i], _ = s.Eval(false)
		}
		return NewConst(vals)
	}
	return NewList(simplified)
}

// Solve succeeds when exactly one element contains the unknown; the
// corresponding element of val is pushed down into it.
func (n *ListNode) Solve(val any, x Node) error {
	items, ok := asItems(val)
	if !ok || len(items) != len(n.children) {
		return noSolution(n, val, x)
	}
	var solveExp Node
	var solveVal any
	for i, ch := range n.children {
		if ch.Contains(x) {
			if solveExp != nil {
				return noSolution(n, val, x)
			}
			solveExp = ch
			solveVal = items[i]
		}
	}
	if solveExp == nil {
		return noSolution(n, val, x)
	}
	return solveExp.Solve(solveVal, x)
}

func (n *ListNode) Contains(x Node) bool { return n.containsIn(x) || n.Equal(x) }

func (n *ListNode) Equal(other Node) bool {
	o, ok := other.(*ListNode)
	return ok && n.equalChildren(&o.multiChild)
}

func (n *ListNode) String() string {
	parts := make([]string, len(n.children))
	for i, ch := range n.children {
		parts[i] = ch.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// argsValue is what a FuncArgsNode evaluates to.
type argsValue struct {
	args   []any
	kwargs map[string]any
}

// FuncArgsNode holds the positional and keyword arguments of a call.
type FuncArgsNode struct {
	multiChild
	kwargs       map[string]Node
	cachedKwargs map[string]any
	dirtyKwargs  bool
}

// NewFuncArgs returns an argument-pack node.
func NewFuncArgs(args []Node, kwargs map[string]Node) *FuncArgsNode {
	n := &FuncArgsNode{multiChild: newMultiChild(args), kwargs: kwargs, dirtyKwargs: true}
	n.self = n
	n.watchChildren()
	for name, val := range kwargs {
		arg := name
		val.Events().On("change", func(evt pubsub.Event) { n.kwargChanged(evt, arg) })
	}
	return n
}

func (n *FuncArgsNode) kwargChanged(evt pubsub.Event, arg string) {
	if n.dirtyKwargs && n.defined {
		return
	}
	if evt.Has("value") {
		if n.cachedKwargs != nil {
			n.cachedKwargs[arg] = evt.Get("value")
		}
	} else {
		n.dirtyKwargs = true
	}
	if !n.dirty || !n.defined {
		n.dirty = true
		n.events.Emit("change", nil)
	}
}

func (n *FuncArgsNode) IsConst(assume []Node) bool {
	if !n.childrenConst(assume) {
		return false
	}
	for _, v := range n.kwargs {
		if !v.IsConst(assume) {
			return false
		}
	}
	return true
}

func (n *FuncArgsNode) Eval(refresh bool) (any, error) {
	args, err := n.evalChildren(refresh)
	if err != nil {
		return nil, err
	}
	if n.dirtyKwargs || refresh {
		kw := make(map[string]any, len(n.kwargs))
		for name, val := range n.kwargs {
			v, err := val.Eval(refresh)
			if err != nil {
				return nil, err
			}
			kw[name] = v
		}
		n.cachedKwargs = kw
		n.dirtyKwargs = false
	}
	n.cached = argsValue{args: args, kwargs: n.cachedKwargs}
	n.defined = true
	n.dirty = false
	return n.cached, nil
}

func (n *FuncArgsNode) EvalCtx(ctx *binding.Context) (any, error) {
	args, err := n.evalChildrenCtx(ctx)
	if err != nil {
		return nil, err
	}
	kw := make(map[string]any, len(n.kwargs))
	for name, val := range n.kwargs {
		v, err := val.EvalCtx(ctx)
		if err != nil {
			return nil, err
		}
		kw[name] = v
	}
	return argsValue{args: args, kwargs: kw}, nil
}

func (n *FuncArgsNode) BindCtx(ctx *binding.Context) {
	n.bindChildren(ctx)
	for _, v := range n.kwargs {
		v.BindCtx(ctx)
	}
}

func (n *FuncArgsNode) Clone() Node {
	kw := make(map[string]Node, len(n.kwargs))
	for name, val := range n.kwargs {
		kw[name] = val.Clone()
	}
	return NewFuncArgs(cloneAll(n.children), kw)
}

func (n *FuncArgsNode) Simplify(assume []Node) Node {
	args, _ := n.simplifyChildren(assume)
	kw := make(map[string]Node, len(n.kwargs))
	for name, val := range n.kwargs {
		kw[name] = val.Simplify(assume)
	}
	return NewFuncArgs(args, kw)
}

func (n *FuncArgsNode) Contains(x Node) bool {
	if n.containsIn(x) {
		return true
	}
	for _, v := range n.kwargs {
		if v.Contains(x) {
			return true
		}
	}
	return n.Equal(x)
}

func (n *FuncArgsNode) Equal(other Node) bool {
	o, ok := other.(*FuncArgsNode)
	if !ok || !n.equalChildren(&o.multiChild) || len(n.kwargs) != len(o.kwargs) {
		return false
	}
	for name, val := range n.kwargs {
		ov, ok := o.kwargs[name]
		if !ok || !val.Equal(ov) {
			return false
		}
	}
	return true
}

func (n *FuncArgsNode) String() string {
	parts := make([]string, 0, len(n.children)+len(n.kwargs))
	for _, ch := range n.children {
		parts = append(parts, ch.String())
	}
	names := make([]string, 0, len(n.kwargs))
	for name := range n.kwargs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		parts = append(parts, name+"="+n.kwargs[name].String())
	}
	return strings.Join(parts, ",")
}

// SliceNode is an index (a[i]) or slice (a[i:j:k]) subscript.
type SliceNode struct {
	multiChild
	isSlice bool
}

// NewSlice returns a subscript node; start/end/step may be nil.
func NewSlice(isSlice bool, start, end, step Node) *SliceNode {
	n := &SliceNode{multiChild: newMultiChild([]Node{start, end, step}), isSlice: isSlice}
	n.self = n
	n.watchChildren()
	return n
}

func (n *SliceNode) IsConst(assume []Node) bool { return n.childrenConst(assume) }

func (n *SliceNode) specFromVals(vals []any) any {
	if n.isSlice {
		return sliceSpec{start: vals[0], end: vals[1], step: vals[2]}
	}
	return vals[0]
}

func (n *SliceNode) Eval(refresh bool) (any, error) {
	if n.dirty || refresh {
		n.defined = false
		vals, err := n.evalChildren(true)
		if err != nil {
			return nil, err
		}
		n.cached = n.specFromVals(vals)
		n.dirty = false
		n.defined = true
	}
	return n.cached, nil
}

func (n *SliceNode) EvalCtx(ctx *binding.Context) (any, error) {
	vals, err := n.evalChildrenCtx(ctx)
	if err != nil {
		return nil, err
	}
	return n.specFromVals(vals), nil
}

func (n *SliceNode) BindCtx(ctx *binding.Context) { n.bindChildren(ctx) }

func (n *SliceNode) Clone() Node {
	c := cloneAll(n.children)
	return NewSlice(n.isSlice, c[0], c[1], c[2])
}

func (n *SliceNode) Simplify(assume []Node) Node {
	if !n.isSlice {
		return n.children[0].Simplify(assume)
	}
	simplified, allConst := n.simplifyChildren(assume)
	if allConst {
		if v, err := NewSlice(true, simplified[0], simplified[1], simplified[2]).Eval(false); err == nil {
			return NewConst(v)
		}
	}
	return NewSlice(true, simplified[0], simplified[1], simplified[2])
}

func (n *SliceNode) Contains(x Node) bool { return n.containsIn(x) || n.Equal(x) }

func (n *SliceNode) Equal(other Node) bool {
	o, ok := other.(*SliceNode)
	return ok && n.isSlice == o.isSlice && n.equalChildren(&o.multiChild)
}

func (n *SliceNode) String() string {
	start, end, step := n.children[0], n.children[1], n.children[2]
	if !n.isSlice {
		return start.String()
	}
	ret := ":"
	if start != nil {
		ret = start.String() + ":"
	}
	if end != nil {
		ret += end.String()
	}
	if step != nil {
		ret += ":" + step.String()
	}
	return ret
}

// ComprNode is a list comprehension, e.g. [x+10 for x in lst if x%2 == 0].
type ComprNode struct {
	base
	expr Node
	vari *IdentNode
	lst  Node
	cond Node // may be nil
}

// NewCompr returns a list-comprehension node.
func NewCompr(expr Node, vari *IdentNode, lst, cond Node) *ComprNode {
	n := &ComprNode{base: newBase(), expr: expr, vari: vari, lst: lst, cond: cond}
	n.self = n
	expr.Events().On("change", n.changeHandler)
	lst.Events().On("change", n.changeHandler)
	if cond != nil {
		cond.Events().On("change", n.changeHandler)
	}
	return n
}

func (n *ComprNode) IsConst(assume []Node) bool {
	return n.lst.IsConst(assume) && n.expr.IsConst(append(append([]Node{}, assume...), n.vari))
}

func (n *ComprNode) Eval(refresh bool) (any, error) {
	if !n.dirty && !refresh {
		return n.cached, nil
	}
	n.defined = false
	if n.ctx == nil {
		return nil, errors.NewExpression("comprehension is not bound to a context")
	}
	lstVal, err := n.lst.Eval(refresh)
	if err != nil {
		return nil, err
	}
	items, err := iterate(lstVal)
	if err != nil {
		return nil, err
	}
	name := n.vari.Name()
	n.ctx.Save(name)
	defer n.ctx.Restore(name)
	var out []any
	for _, item := range items {
		n.ctx.SetQuiet(name, item)
		if n.cond != nil {
			ok, err := n.cond.Eval(true)
			if err != nil {
				return nil, err
			}
			if !Truth(ok) {
				continue
			}
		}
		v, err := n.expr.Eval(true)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if out == nil {
		out = []any{}
	}
	n.cached = out
	n.defined = true
	n.dirty = false
	return out, nil
}

func (n *ComprNode) EvalCtx(ctx *binding.Context) (any, error) {
	lstVal, err := n.lst.EvalCtx(ctx)
	if err != nil {
		return nil, err
	}
	items, err := iterate(lstVal)
	if err != nil {
		return nil, err
	}
	name := n.vari.Name()
	ctx.Save(name)
	defer ctx.Restore(name)
	var out []any
	for _, item := range items {
		ctx.SetQuiet(name, item)
		if n.cond != nil {
			ok, err := n.cond.EvalCtx(ctx)
			if err != nil {
				return nil, err
			}
			if !Truth(ok) {
				continue
			}
		}
		v, err := n.expr.EvalCtx(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}

func (n *ComprNode) BindCtx(ctx *binding.Context) {
	n.bindBase(ctx)
	n.lst.BindCtx(ctx)
	n.expr.BindCtx(ctx)
	if n.cond != nil {
		n.cond.BindCtx(ctx)
	}
}

func (n *ComprNode) Clone() Node {
	var cond Node
	if n.cond != nil {
		cond = n.cond.Clone()
	}
	return NewCompr(n.expr.Clone(), n.vari.Clone().(*IdentNode), n.lst.Clone(), cond)
}

func (n *ComprNode) Simplify(assume []Node) Node {
	// the loop variable shadows any assumed-const of the same name
	mod := make([]Node, 0, len(assume))
	for _, a := range assume {
		if id, ok := a.(*IdentNode); ok && id.Name() == n.vari.Name() {
			continue
		}
		mod = append(mod, a)
	}
	sLst := n.lst.Simplify(assume)
	var sCond Node
	if n.cond != nil {
		sCond = n.cond.Simplify(mod)
		if sCond.IsConst(mod) {
			if v, err := sCond.Eval(false); err == nil {
				if !Truth(v) {
					return NewConst([]any{})
				}
				sCond = nil
			}
		}
	}
	sExpr := n.expr.Simplify(mod)
	return NewCompr(sExpr, n.vari.Clone().(*IdentNode), sLst, sCond)
}

// Solve inverts the comprehension element-wise: for each item passing
// the condition, the corresponding element of val is solved for the
// loop variable and collected back into the source list.
func (n *ComprNode) Solve(val any, x Node) error {
	items, ok := asItems(val)
	if !ok {
		return noSolution(n, val, x)
	}
	if n.ctx == nil {
		return errors.NewExpression("comprehension is not bound to a context")
	}
	srcVal, err := n.lst.Eval(false)
	if err != nil {
		return noSolution(n, val, x)
	}
	srcItems, err := iterate(srcVal)
	if err != nil {
		return noSolution(n, val, x)
	}
	name := n.vari.Name()
	n.ctx.Save(name)
	defer n.ctx.Restore(name)
	newVal := make([]any, 0, len(srcItems))
	pos := 0
	for _, item := range srcItems {
		n.ctx.SetQuiet(name, item)
		use := true
		if n.cond != nil {
			ok, err := n.cond.Eval(true)
			if err != nil {
				return noSolution(n, val, x)
			}
			use = Truth(ok)
		}
		if use {
			if pos >= len(items) {
				return noSolution(n, val, x)
			}
			if err := n.expr.Solve(items[pos], n.vari); err != nil {
				return err
			}
			solved, err := n.ctx.Get(name)
			if err != nil {
				return err
			}
			newVal = append(newVal, solved)
			pos++
		} else {
			newVal = append(newVal, item)
		}
	}
	return n.lst.Assign(newVal)
}

func (n *ComprNode) Contains(x Node) bool {
	if n.lst.Contains(x) {
		return true
	}
	if n.vari.Equal(x) {
		return false
	}
	if n.expr.Contains(x) {
		return true
	}
	if n.cond != nil && n.cond.Contains(x) {
		return true
	}
	return n.Equal(x)
}

func (n *ComprNode) Equal(other Node) bool {
	o, ok := other.(*ComprNode)
	return ok && n.vari.Equal(o.vari) && equalNode(n.cond, o.cond) &&
		n.expr.Equal(o.expr) && n.lst.Equal(o.lst)
}

func (n *ComprNode) String() string {
	ret := "[" + n.expr.String() + " for " + n.vari.String() + " in " + n.lst.String()
	if n.cond != nil {
		ret += " if " + n.cond.String()
	}
	return ret + "]"
}
