package machine

import (
	"fmt"
	"strings"

	"github.com/roach88/clockwork/internal/ir"
)

// Expr is a predicate or value expression evaluated against an instance.
//
// Symbols resolve through Instance.GetValue; a symbol that resolves to
// nothing evaluates to its own name, which is how state names are written
// in comparisons.
type Expr interface {
	eval(m *Instance) (ir.Value, error)
	String() string
}

// Op is an operator of a Unary or Binary expression.
type Op string

const (
	OpAnd Op = "AND"
	OpOr  Op = "OR"
	OpNot Op = "NOT"
	OpNeg Op = "NEG"
	OpEq  Op = "=="
	OpNe  Op = "!="
	OpLt  Op = "<"
	OpLe  Op = "<="
	OpGt  Op = ">"
	OpGe  Op = ">="
	OpAdd Op = "+"
	OpSub Op = "-"
	OpMul Op = "*"
	OpDiv Op = "/"
	OpMod Op = "%"
)

func (o Op) comparison() bool {
	switch o {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

// Lit is a literal value.
type Lit struct{ Value ir.Value }

// Sym is a symbol: a property, a machine, TIMER, or a bare name.
type Sym struct{ Name string }

// Unary applies NOT or NEG.
type Unary struct {
	Op Op
	X  Expr
}

// Binary applies a logical, comparison or arithmetic operator.
type Binary struct {
	Op   Op
	L, R Expr
}

// Is tests whether a machine is in a state: "pump IS running".
type Is struct {
	Machine string
	State   string
}

// ListOp is the operator of a ListQuery.
type ListOp string

const (
	ListAny      ListOp = "ANY"      // ANY list IN state
	ListAll      ListOp = "ALL"      // ALL list ARE state
	ListCount    ListOp = "COUNT"    // COUNT state FROM list
	ListSize     ListOp = "SIZE"     // SIZE OF list
	ListIncludes ListOp = "INCLUDES" // list INCLUDES value
	ListBitset   ListOp = "BITSET"   // BITSET FROM list state
	ListItem     ListOp = "ITEM"     // ITEM n OF list
	ListFirst    ListOp = "FIRST"    // FIRST OF list
	ListLast     ListOp = "LAST"     // LAST OF list
)

// ListQuery computes a value from the members of a list machine.
type ListQuery struct {
	Op    ListOp
	List  string
	State string
	Arg   Expr
}

// EnabledQuery is ENABLED m, or DISABLED m when Disabled is set.
type EnabledQuery struct {
	Machine  string
	Disabled bool
}

// Cast converts a value to STRING or NUMBER.
type Cast struct {
	X  Expr
	To string
}

// Expression constructors.

// L wraps a Go literal.
func L(v any) Lit { return Lit{Value: ir.MustFromAny(v)} }

// S references a symbol.
func S(name string) Sym { return Sym{Name: name} }

// And joins expressions with AND.
func And(xs ...Expr) Expr { return fold(OpAnd, xs) }

// Or joins expressions with OR.
func Or(xs ...Expr) Expr { return fold(OpOr, xs) }

// Not negates x.
func Not(x Expr) Expr { return Unary{Op: OpNot, X: x} }

// Cmp builds a binary comparison or arithmetic expression.
func Cmp(op Op, l, r Expr) Expr { return Binary{Op: op, L: l, R: r} }

func fold(op Op, xs []Expr) Expr {
	if len(xs) == 0 {
		return Lit{Value: ir.Bool(op == OpAnd)}
	}
	out := xs[0]
	for _, x := range xs[1:] {
		out = Binary{Op: op, L: out, R: x}
	}
	return out
}

func (e Lit) eval(*Instance) (ir.Value, error) {
	if e.Value == nil {
		return ir.Null{}, nil
	}
	return e.Value, nil
}

func (e Lit) String() string {
	if s, ok := e.Value.(ir.String); ok {
		return fmt.Sprintf("%q", string(s))
	}
	if e.Value == nil {
		return "null"
	}
	return e.Value.String()
}

func (e Sym) eval(m *Instance) (ir.Value, error) {
	if v, ok := m.GetValue(e.Name); ok {
		return v, nil
	}
	return ir.String(e.Name), nil
}

func (e Sym) String() string { return e.Name }

func (e Unary) eval(m *Instance) (ir.Value, error) {
	v, err := e.X.eval(m)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case OpNot:
		return ir.Bool(!ir.Truthy(v)), nil
	case OpNeg:
		n, ok := ir.AsInt(v)
		if !ok {
			return nil, newError(ErrCodeNotNumeric, m.fullName, "cannot negate %q", v)
		}
		return ir.Int(-n), nil
	}
	return nil, fmt.Errorf("unknown unary operator %s", e.Op)
}

func (e Unary) String() string { return fmt.Sprintf("%s %s", e.Op, e.X) }

func (e Binary) eval(m *Instance) (ir.Value, error) {
	switch e.Op {
	case OpAnd, OpOr:
		l, err := e.L.eval(m)
		if err != nil {
			return nil, err
		}
		if e.Op == OpAnd && !ir.Truthy(l) {
			return ir.Bool(false), nil
		}
		if e.Op == OpOr && ir.Truthy(l) {
			return ir.Bool(true), nil
		}
		r, err := e.R.eval(m)
		if err != nil {
			return nil, err
		}
		return ir.Bool(ir.Truthy(r)), nil
	}

	l, err := e.L.eval(m)
	if err != nil {
		return nil, err
	}
	r, err := e.R.eval(m)
	if err != nil {
		return nil, err
	}

	switch e.Op {
	case OpEq:
		return ir.Bool(ir.Equal(l, r)), nil
	case OpNe:
		return ir.Bool(!ir.Equal(l, r)), nil
	}

	if e.Op.comparison() {
		c, ok := ir.Compare(l, r)
		if !ok {
			return nil, newError(ErrCodeNotNumeric, m.fullName, "%s: cannot order %q and %q", e, l, r)
		}
		switch e.Op {
		case OpLt:
			return ir.Bool(c < 0), nil
		case OpLe:
			return ir.Bool(c <= 0), nil
		case OpGt:
			return ir.Bool(c > 0), nil
		default:
			return ir.Bool(c >= 0), nil
		}
	}

	x, okx := ir.AsInt(l)
	y, oky := ir.AsInt(r)
	if !okx || !oky {
		if e.Op == OpAdd {
			return ir.String(l.String() + r.String()), nil
		}
		return nil, newError(ErrCodeNotNumeric, m.fullName, "%s: operands %q and %q are not numeric", e, l, r)
	}
	switch e.Op {
	case OpAdd:
		return ir.Int(x + y), nil
	case OpSub:
		return ir.Int(x - y), nil
	case OpMul:
		return ir.Int(x * y), nil
	case OpDiv, OpMod:
		if y == 0 {
			return nil, newError(ErrCodeInvalidValue, m.fullName, "%s: division by zero", e)
		}
		if e.Op == OpDiv {
			return ir.Int(x / y), nil
		}
		return ir.Int(x % y), nil
	}
	return nil, fmt.Errorf("unknown binary operator %s", e.Op)
}

func (e Binary) String() string { return fmt.Sprintf("(%s %s %s)", e.L, e.Op, e.R) }

func (e Is) eval(m *Instance) (ir.Value, error) {
	target := m.lookup(e.Machine)
	if target == nil {
		return nil, newError(ErrCodeUnknownMachine, m.fullName, "%s: no machine %q", e, e.Machine)
	}
	return ir.Bool(target.state == e.State), nil
}

func (e Is) String() string { return fmt.Sprintf("%s IS %s", e.Machine, e.State) }

func (e EnabledQuery) eval(m *Instance) (ir.Value, error) {
	target := m.lookup(e.Machine)
	if target == nil {
		return nil, newError(ErrCodeUnknownMachine, m.fullName, "%s: no machine %q", e, e.Machine)
	}
	return ir.Bool(target.enabled != e.Disabled), nil
}

func (e EnabledQuery) String() string {
	if e.Disabled {
		return "DISABLED " + e.Machine
	}
	return "ENABLED " + e.Machine
}

func (e Cast) eval(m *Instance) (ir.Value, error) {
	v, err := e.X.eval(m)
	if err != nil {
		return nil, err
	}
	switch strings.ToUpper(e.To) {
	case "STRING":
		return ir.String(v.String()), nil
	case "NUMBER":
		n, ok := ir.AsInt(v)
		if !ok {
			return nil, newError(ErrCodeNotNumeric, m.fullName, "cannot cast %q to NUMBER", v)
		}
		return ir.Int(n), nil
	}
	return nil, newError(ErrCodeInvalidValue, m.fullName, "unknown cast type %q", e.To)
}

func (e Cast) String() string { return fmt.Sprintf("CAST(%s, %s)", e.X, e.To) }

func (e ListQuery) eval(m *Instance) (ir.Value, error) {
	list := m.lookup(e.List)
	if list == nil {
		return nil, newError(ErrCodeUnknownMachine, m.fullName, "%s: no list %q", e, e.List)
	}
	members := list.params

	inState := func(p Parameter) bool {
		if t := m.reg.Get(p.Machine); t != nil {
			return t.state == e.State
		}
		return false
	}

	switch e.Op {
	case ListAny:
		for _, p := range members {
			if inState(p) {
				return ir.Bool(true), nil
			}
		}
		return ir.Bool(false), nil
	case ListAll:
		if len(members) == 0 {
			return ir.Bool(false), nil
		}
		for _, p := range members {
			if !inState(p) {
				return ir.Bool(false), nil
			}
		}
		return ir.Bool(true), nil
	case ListCount:
		n := 0
		for _, p := range members {
			if inState(p) {
				n++
			}
		}
		return ir.Int(n), nil
	case ListSize:
		return ir.Int(len(members)), nil
	case ListIncludes:
		want, err := e.Arg.eval(m)
		if err != nil {
			return nil, err
		}
		if s, ok := e.Arg.(Sym); ok {
			want = ir.String(s.Name)
		}
		for _, p := range members {
			if ir.Equal(m.reg.paramValue(p), want) {
				return ir.Bool(true), nil
			}
		}
		return ir.Bool(false), nil
	case ListBitset:
		var bits int64
		for i, p := range members {
			if i >= 63 {
				break
			}
			if inState(p) {
				bits |= 1 << i
			}
		}
		return ir.Int(bits), nil
	case ListItem:
		idx, err := e.Arg.eval(m)
		if err != nil {
			return nil, err
		}
		n, ok := ir.AsInt(idx)
		if !ok {
			return nil, newError(ErrCodeNotNumeric, m.fullName, "%s: index %q is not numeric", e, idx)
		}
		if n < 0 || int(n) >= len(members) {
			return ir.Null{}, nil
		}
		return m.reg.paramValue(members[n]), nil
	case ListFirst:
		if len(members) == 0 {
			return ir.Null{}, nil
		}
		return m.reg.paramValue(members[0]), nil
	case ListLast:
		if len(members) == 0 {
			return ir.Null{}, nil
		}
		return m.reg.paramValue(members[len(members)-1]), nil
	}
	return nil, fmt.Errorf("unknown list operator %s", e.Op)
}

func (e ListQuery) String() string {
	switch e.Op {
	case ListAny:
		return fmt.Sprintf("ANY %s IN %s", e.List, e.State)
	case ListAll:
		return fmt.Sprintf("ALL %s ARE %s", e.List, e.State)
	case ListCount:
		return fmt.Sprintf("COUNT %s FROM %s", e.State, e.List)
	case ListIncludes:
		return fmt.Sprintf("%s INCLUDES %s", e.List, e.Arg)
	case ListBitset:
		return fmt.Sprintf("BITSET FROM %s %s", e.List, e.State)
	case ListItem:
		return fmt.Sprintf("ITEM %s OF %s", e.Arg, e.List)
	default:
		return fmt.Sprintf("%s OF %s", e.Op, e.List)
	}
}

// evalBool evaluates a condition. A nil expression is true.
func (m *Instance) evalBool(e Expr) (bool, error) {
	if e == nil {
		return true, nil
	}
	v, err := e.eval(m)
	if err != nil {
		return false, err
	}
	return ir.Truthy(v), nil
}

// Eval evaluates e against the instance.
func (m *Instance) Eval(e Expr) (ir.Value, error) {
	return e.eval(m)
}
