package machine

import (
	"github.com/roach88/clockwork/internal/ir"
)

// lookup resolves a machine name from this instance's scope: itself, its
// locals, its parameters, its owner's scope, then the registry.
func (m *Instance) lookup(name string) *Instance {
	if name == "" || name == "SELF" || name == m.name || name == m.fullName {
		return m
	}
	return m.lookupScope(name, m.id)
}

func (m *Instance) lookupScope(name string, scope ID) *Instance {
	name = ir.NormalizeName(name)
	for cur := m.reg.Get(scope); cur != nil; cur = m.reg.Get(cur.owner) {
		if cur.name == name {
			return cur
		}
		if id, ok := cur.localNames[name]; ok {
			return m.reg.Get(id)
		}
		if idx, ok := cur.paramNames[name]; ok && idx < len(cur.params) {
			if t := m.reg.Get(cur.params[idx].Machine); t != nil {
				return t
			}
		}
	}
	return m.reg.Lookup(name)
}

// Lookup resolves name from the instance's scope.
func (m *Instance) Lookup(name string) *Instance { return m.lookup(name) }

// GetValue resolves a property. Resolution order:
//
//  1. "m.prop" reads prop of machine m
//  2. TIMER is the elapsed milliseconds in the current state
//  3. STATE is the current state
//  4. the instance's own properties
//  5. a parameter name reads the parameter's value
//  6. a machine name reads that machine's VALUE (variables and
//     constants) or its state
func (m *Instance) GetValue(prop string) (ir.Value, bool) {
	if head, rest, ok := ir.SplitName(prop); ok {
		if target := m.lookup(head); target != nil && target != m {
			return target.GetValue(rest)
		}
		if head == m.name || head == "SELF" {
			return m.GetValue(rest)
		}
	}
	switch prop {
	case TimerSymbol:
		return ir.Int(m.TimerMillis()), true
	case PropState:
		return ir.String(m.state), true
	}
	if v, ok := m.props[prop]; ok {
		return v, true
	}
	if idx, ok := m.paramNames[prop]; ok && idx < len(m.params) {
		p := m.params[idx]
		if target := m.reg.Get(p.Machine); target != nil {
			return target.machineValue(), true
		}
		return m.reg.paramValue(p), true
	}
	if target := m.lookup(prop); target != nil && target != m {
		return target.machineValue(), true
	}
	return nil, false
}

func (m *Instance) machineValue() ir.Value {
	if m.kind.valued() {
		if v, ok := m.props[PropValue]; ok {
			return v
		}
		return ir.Null{}
	}
	return ir.String(m.state)
}

// Properties returns a copy of the property table.
func (m *Instance) Properties() map[string]ir.Value {
	out := make(map[string]ir.Value, len(m.props))
	for k, v := range m.props {
		out[k] = v
	}
	return out
}

// Preset sets a property without notifications. Loaders use it before the
// instance is enabled.
func (m *Instance) Preset(prop string, v ir.Value) {
	m.props[ir.NormalizeName(prop)] = v
}

// SetValue commits a property change. "m.prop" writes another machine's
// property; naming a variable machine writes its VALUE. On a change the
// instance and its dependents are flagged and the persistence and export
// hooks are called.
func (m *Instance) SetValue(prop string, v ir.Value) error {
	if v == nil {
		v = ir.Null{}
	}
	prop = ir.NormalizeName(prop)
	if head, rest, ok := ir.SplitName(prop); ok {
		if target := m.lookup(head); target != nil && target != m {
			return target.SetValue(rest, v)
		}
		if head == m.name || head == "SELF" {
			prop = rest
		}
	}
	if prop == TimerSymbol || prop == PropState {
		return newError(ErrCodeReadOnly, m.fullName, "%s is read-only", prop)
	}
	if _, own := m.props[prop]; !own {
		if target := m.lookup(prop); target != nil && target != m && target.kind.valued() {
			return target.SetValue(PropValue, v)
		}
	}
	if m.kind == KindConstant && prop == PropValue && m.enabled {
		return newError(ErrCodeReadOnly, m.fullName, "constant cannot be changed")
	}

	old, had := m.props[prop]
	if had && ir.Equal(old, v) && sameType(old, v) {
		return nil
	}
	m.props[prop] = v
	m.log.Debug("property changed", "machine", m.fullName, "property", prop, "value", v.String())

	m.needsCheck++
	m.reg.propagate(m)
	m.reg.persist.PropertyChanged(m.fullName, prop, v)
	if addr, ok := m.exports[prop]; ok {
		m.reg.export.ExportedValueChanged(addr, v)
	}
	return nil
}

func sameType(a, b ir.Value) bool {
	switch a.(type) {
	case ir.Int:
		_, ok := b.(ir.Int)
		return ok
	case ir.String:
		_, ok := b.(ir.String)
		return ok
	case ir.Bool:
		_, ok := b.(ir.Bool)
		return ok
	case ir.Null:
		_, ok := b.(ir.Null)
		return ok
	}
	return false
}
