package machine

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/clockwork/internal/ir"
)

// Describe renders the instance for operators: state, timer, parameters,
// properties, relations, stack and mailbox.
func (m *Instance) Describe() string {
	var b strings.Builder
	status := "enabled"
	if !m.enabled {
		status = "disabled"
	}
	fmt.Fprintf(&b, "%s (%s, %s) state=%s %s\n", m.fullName, m.class.Name, m.kind, m.state, status)
	fmt.Fprintf(&b, "  timer: %dms\n", m.TimerMillis())
	if m.errorState != 0 {
		fmt.Fprintf(&b, "  error: %d\n", m.errorState)
	}
	if len(m.params) > 0 {
		vals := make([]string, len(m.params))
		for i, p := range m.params {
			vals[i] = m.reg.paramValue(p).String()
			if i < len(m.class.Parameters) {
				vals[i] = m.class.Parameters[i].Name + "=" + vals[i]
			}
		}
		fmt.Fprintf(&b, "  parameters: %s\n", strings.Join(vals, ", "))
	}
	if m.kind == KindReference {
		if t := m.referenced(); t != nil {
			fmt.Fprintf(&b, "  refers to: %s\n", t.fullName)
		}
	}
	if len(m.props) > 0 {
		keys := ir.SortedKeys(m.props)
		vals := make([]string, len(keys))
		for i, k := range keys {
			vals[i] = k + "=" + m.props[k].String()
		}
		fmt.Fprintf(&b, "  properties: %s\n", strings.Join(vals, ", "))
	}
	if names := instanceNames(m.ListensTo()); names != "" {
		fmt.Fprintf(&b, "  listens to: %s\n", names)
	}
	if names := instanceNames(m.Dependents()); names != "" {
		fmt.Fprintf(&b, "  dependents: %s\n", names)
	}
	if len(m.locals) > 0 {
		fmt.Fprintf(&b, "  locals: %s\n", instanceNames(m.Locals()))
	}
	for _, ss := range m.stable {
		fmt.Fprintf(&b, "  stable %s: %s\n", ss.tmpl.Name, exprString(ss.tmpl.Condition))
	}
	for _, name := range slices.Sorted(maps.Keys(m.class.Commands)) {
		fmt.Fprintf(&b, "  command %s: %s\n", name, describeSteps(m.class.Commands[name].Steps))
	}
	if actions := m.Actions(); len(actions) > 0 {
		b.WriteString("  stack:\n")
		for i := len(actions) - 1; i >= 0; i-- {
			a := actions[i]
			fmt.Fprintf(&b, "    %s (%s)", a.Description, a.Status)
			if a.Waiting != "" {
				fmt.Fprintf(&b, " waiting for %s", a.Waiting)
			}
			b.WriteString("\n")
		}
	}
	fmt.Fprintf(&b, "  mailbox: %d\n", m.mailbox.Len())
	return b.String()
}

func instanceNames(ms []*Instance) string {
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = m.fullName
	}
	return strings.Join(names, ", ")
}

func exprString(e Expr) string {
	if e == nil {
		return "TRUE"
	}
	return e.String()
}
