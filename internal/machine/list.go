package machine

import (
	"slices"

	"github.com/roach88/clockwork/internal/ir"
)

// AddParameter appends an item to a list or sets the target of a
// reference. A string naming a machine adds that machine, which the
// container then listens to. The container and its dependents are flagged.
func (m *Instance) AddParameter(v ir.Value) {
	if v == nil {
		v = ir.Null{}
	}
	if m.kind == KindReference {
		m.clearParams()
	}
	p := Parameter{Value: v}
	if s, ok := v.(ir.String); ok {
		if target := m.lookupScope(string(s), m.owner); target != nil && target != m {
			p.Machine = target.id
			p.Value = ir.String(target.name)
			m.reg.Link(m, target)
		}
	}
	m.params = append(m.params, p)
	m.membershipChanged()
}

// AddMachine appends a machine to a list.
func (m *Instance) AddMachine(item *Instance) {
	if item == nil {
		return
	}
	if m.kind == KindReference {
		m.clearParams()
	}
	m.params = append(m.params, Parameter{Value: ir.String(item.name), Machine: item.id})
	m.reg.Link(m, item)
	m.membershipChanged()
}

// RemoveParameter removes the first item equal to v and reports whether
// one was found.
func (m *Instance) RemoveParameter(v ir.Value) bool {
	for i, p := range m.params {
		if !ir.Equal(m.reg.paramValue(p), v) {
			continue
		}
		m.removeAt(i)
		m.membershipChanged()
		return true
	}
	return false
}

// ClearParameters empties a list or unsets a reference.
func (m *Instance) ClearParameters() {
	if len(m.params) == 0 {
		return
	}
	m.clearParams()
	m.membershipChanged()
}

// Take removes the first or last item and returns its value.
func (m *Instance) Take(last bool) (ir.Value, bool) {
	if len(m.params) == 0 {
		return nil, false
	}
	i := 0
	if last {
		i = len(m.params) - 1
	}
	v := m.reg.paramValue(m.params[i])
	m.removeAt(i)
	m.membershipChanged()
	return v, true
}

func (m *Instance) removeAt(i int) {
	p := m.params[i]
	m.params = slices.Delete(m.params, i, i+1)
	if target := m.reg.Get(p.Machine); target != nil && !m.holds(p.Machine) {
		m.reg.Unlink(m, target)
	}
}

func (m *Instance) clearParams() {
	for len(m.params) > 0 {
		m.removeAt(len(m.params) - 1)
	}
}

// holds reports whether a remaining item refers to id.
func (m *Instance) holds(id ID) bool {
	for _, p := range m.params {
		if p.Machine == id {
			return true
		}
	}
	return false
}

func (m *Instance) membershipChanged() {
	m.needsCheck++
	m.reg.propagate(m)
}

// referenced returns the machine a reference points at.
func (m *Instance) referenced() *Instance {
	if len(m.params) == 0 {
		return nil
	}
	return m.reg.Get(m.params[0].Machine)
}

// Contains reports whether a list item has value v.
func (m *Instance) Contains(v ir.Value) bool {
	for _, p := range m.params {
		if ir.Equal(m.reg.paramValue(p), v) {
			return true
		}
	}
	return false
}
