package ir

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName returns the NFC form of a machine, state or property name.
// Registry lookups always go through this so that names typed in different
// normalization forms resolve to the same instance.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// SplitName splits a dotted name at its first dot: "valve.open_enter"
// becomes ("valve", "open_enter", true). Names without a dot report false.
func SplitName(name string) (head, rest string, ok bool) {
	return strings.Cut(name, ".")
}

// ShortName returns the unqualified form of a message: everything after
// the first dot, or the name itself when it is not qualified.
func ShortName(name string) string {
	if _, rest, ok := strings.Cut(name, "."); ok {
		return rest
	}
	return name
}

// Qualify joins a machine name and an event or property name.
func Qualify(machine, name string) string {
	if machine == "" {
		return name
	}
	return machine + "." + name
}
