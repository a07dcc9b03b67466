package machine

import (
	"fmt"
	"strings"
)

// InstanceKind is the closed set of instance behaviours. Kind-specific
// evaluation is an arm of a switch on this value.
type InstanceKind int

const (
	KindMachine InstanceKind = iota
	KindList
	KindReference
	KindVariable
	KindConstant
	KindShadow
	KindChannel
	KindCondition
)

func (k InstanceKind) String() string {
	switch k {
	case KindMachine:
		return "machine"
	case KindList:
		return "list"
	case KindReference:
		return "reference"
	case KindVariable:
		return "variable"
	case KindConstant:
		return "constant"
	case KindShadow:
		return "shadow"
	case KindChannel:
		return "channel"
	case KindCondition:
		return "condition"
	default:
		return fmt.Sprintf("InstanceKind(%d)", int(k))
	}
}

// ParseKind maps a kind name, case-insensitively, to an InstanceKind.
func ParseKind(s string) (InstanceKind, error) {
	switch strings.ToLower(s) {
	case "", "machine":
		return KindMachine, nil
	case "list":
		return KindList, nil
	case "reference":
		return KindReference, nil
	case "variable":
		return KindVariable, nil
	case "constant":
		return KindConstant, nil
	case "shadow", "proxy":
		return KindShadow, nil
	case "channel":
		return KindChannel, nil
	case "condition":
		return KindCondition, nil
	}
	return 0, fmt.Errorf("unknown instance kind %q", s)
}

// container reports whether membership changes must reach one hop further.
func (k InstanceKind) container() bool {
	return k == KindList || k == KindReference
}

// valued reports whether the instance is read as its VALUE property.
func (k InstanceKind) valued() bool {
	return k == KindVariable || k == KindConstant
}

// locallyEvaluated reports whether stable states are evaluated here.
// Shadows and channels mirror state decided elsewhere.
func (k InstanceKind) locallyEvaluated() bool {
	return k != KindShadow && k != KindChannel
}
