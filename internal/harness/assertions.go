package harness

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/clockwork/internal/ir"
	"github.com/roach88/clockwork/internal/machine"
	"github.com/roach88/clockwork/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
// This prevents SQL injection via identifier interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", event)
		}
	}

	return buf.String()
}

// assertState checks the live state of a machine.
func assertState(reg *machine.Registry, trace []TraceEvent, a Assertion) error {
	m := reg.Lookup(a.Machine)
	if m == nil {
		return &AssertionError{
			Type:     AssertState,
			Expected: fmt.Sprintf("machine %s in state %s", a.Machine, a.State),
			Actual:   "no such machine",
		}
	}
	if m.State() != a.State {
		return &AssertionError{
			Type:     AssertState,
			Expected: fmt.Sprintf("machine %s in state %s", a.Machine, a.State),
			Actual:   fmt.Sprintf("state %s", m.State()),
			Trace:    trace,
		}
	}
	return nil
}

// assertProperty checks the live value of a property. Values compare
// numerically, so 1 and true are not equal but "1" and 1 are.
func assertProperty(reg *machine.Registry, trace []TraceEvent, a Assertion) error {
	want, err := ir.FromAny(a.Value)
	if err != nil {
		return fmt.Errorf("property assertion %s.%s: %w", a.Machine, a.Property, err)
	}
	got, err := reg.GetMachineValue(a.Machine, a.Property)
	if err != nil {
		return &AssertionError{
			Type:     AssertProperty,
			Expected: fmt.Sprintf("%s.%s = %s", a.Machine, a.Property, want),
			Actual:   err.Error(),
		}
	}
	if !ir.Equal(got, want) {
		return &AssertionError{
			Type:     AssertProperty,
			Expected: fmt.Sprintf("%s.%s = %s", a.Machine, a.Property, want),
			Actual:   fmt.Sprintf("%s.%s = %s", a.Machine, a.Property, got),
			Trace:    trace,
		}
	}
	return nil
}

// matchEvent reports whether event matches the non-empty filters of a.
func matchEvent(event TraceEvent, a Assertion) bool {
	if event.Type != a.Event {
		return false
	}
	if a.Machine != "" && event.Machine != a.Machine && event.Target != a.Machine {
		return false
	}
	if a.State != "" && event.State != a.State {
		return false
	}
	if a.Property != "" && event.Property != a.Property {
		return false
	}
	if a.Message != "" && event.Message != a.Message {
		return false
	}
	return true
}

// assertTraceContains checks that an event matching the assertion's
// filters was recorded.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if matchEvent(event, assertion) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("%s event matching %s", assertion.Event, describeFilters(assertion)),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that messages were delivered in the specified
// order. Messages don't need to be consecutive.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	// Step 1: Find first position of each expected message
	positions := make(map[string]int)

	for i, event := range trace {
		if event.Type != EventMessage {
			continue
		}
		for _, expected := range assertion.Messages {
			if event.Message == expected && positions[expected] == 0 {
				positions[expected] = i + 1 // 1-indexed for readability
			}
		}
	}

	// Step 2: Verify all messages found
	for _, msg := range assertion.Messages {
		if positions[msg] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all messages present: %v", assertion.Messages),
				Actual:   fmt.Sprintf("missing message: %s", msg),
				Trace:    trace,
			}
		}
	}

	// Step 3: Verify order
	for i := 1; i < len(assertion.Messages); i++ {
		prev := assertion.Messages[i-1]
		curr := assertion.Messages[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("messages in order: %v", assertion.Messages),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks that matching events appear exactly Count times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if matchEvent(event, assertion) {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d %s events matching %s", assertion.Count, assertion.Event, describeFilters(assertion)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}

	return nil
}

func describeFilters(a Assertion) string {
	var parts []string
	for _, f := range []struct{ k, v string }{
		{"machine", a.Machine},
		{"state", a.State},
		{"property", a.Property},
		{"message", a.Message},
	} {
		if f.v != "" {
			parts = append(parts, f.k+"="+f.v)
		}
	}
	if len(parts) == 0 {
		return "(no filters)"
	}
	return strings.Join(parts, " ")
}

// assertFinalState checks if the final state table contains expected values.
// Queries the state table with parameterized SQL and validates
// expected values using subset semantics.
//
// Security: Table and column names are validated against a whitelist pattern
// to prevent SQL injection via identifier interpolation.
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	if assertion.Table == "" {
		return fmt.Errorf("final_state assertion requires table name")
	}

	// Validate table name to prevent SQL injection (identifiers can't be parameterized)
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	// Build WHERE clause with parameterized SQL
	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return err // Identifier validation failed
	}

	// Build SELECT query (table name validated above)
	query := fmt.Sprintf("SELECT * FROM %s", assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	// Execute query
	rows, err := st.DB().QueryContext(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     "final_state",
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
			Trace:    nil,
		}
	}
	defer rows.Close()

	// Get column names
	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	// Scan the first row
	if !rows.Next() {
		// Row not found
		whereDesc := formatWhereClause(assertion.Where)
		return &AssertionError{
			Type:     "final_state",
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, whereDesc),
			Actual:   "row not found",
			Trace:    nil,
		}
	}

	// Prepare scan destinations
	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	// Check for multiple matching rows (would indicate ambiguous assertion)
	if rows.Next() {
		whereDesc := formatWhereClause(assertion.Where)
		return &AssertionError{
			Type:     "final_state",
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, whereDesc),
			Actual:   "multiple rows matched (assertion is ambiguous)",
			Trace:    nil,
		}
	}

	// Build map of column -> value
	actualRow := make(map[string]any)
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	// Check each expected field (subset semantics - only check fields in Expect)
	for key, expectedValue := range assertion.Expect {
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     "final_state",
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
				Trace:    nil,
			}
		}

		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     "final_state",
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
				Trace:    nil,
			}
		}
	}

	return nil
}

// buildWhereClause constructs parameterized WHERE clause from assertion.Where.
// Returns SQL fragment, arguments slice, and error. Keys are sorted for determinism.
//
// Security: Column names are validated against a whitelist pattern to prevent
// SQL injection via identifier interpolation.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	// Sort keys for deterministic query generation
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))

	for _, key := range keys {
		// Validate column name to prevent SQL injection
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, toSQLValue(where[key]))
	}

	return strings.Join(clauses, " AND "), args, nil
}

// toSQLValue converts a YAML value to a SQL-compatible value.
func toSQLValue(v any) any {
	switch val := v.(type) {
	case ir.String:
		return string(val)
	case ir.Int:
		return int64(val)
	case ir.Bool:
		return bool(val)
	case string, int, int64, bool:
		return val
	default:
		// For other types, convert to string
		return fmt.Sprintf("%v", val)
	}
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	// Sort keys for deterministic output
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares expected and actual values from store tables.
// TEXT columns match either the expected text or its canonical JSON, so
// `value: 1` matches a stored property "1" and `value: on` matches "\"on\"".
func stateValuesEqual(expected, actual any) bool {
	// Handle nil cases
	if expected == nil && actual == nil {
		return true
	}
	if expected == nil || actual == nil {
		return false
	}
	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}

	switch act := actual.(type) {
	case string:
		if exp, ok := expected.(string); ok && exp == act {
			return true
		}
		v, err := ir.FromAny(expected)
		if err != nil {
			return false
		}
		data, err := ir.MarshalValue(v)
		return err == nil && string(data) == act
	case int64:
		// SQLite returns int64 for integers and stores booleans as 0/1
		switch exp := expected.(type) {
		case int:
			return int64(exp) == act
		case int64:
			return exp == act
		case bool:
			return exp == (act != 0)
		}
		return false
	}

	// Fallback to DeepEqual for other types
	return reflect.DeepEqual(expected, actual)
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Registry *machine.Registry
	Store    *store.Store
	Ctx      context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides the registry for state and property
// assertions and database access for final_state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertState, AssertProperty:
			if actx == nil || actx.Registry == nil {
				err = fmt.Errorf("assertion[%d]: %s requires a registry", i, assertion.Type)
			} else if assertion.Type == AssertState {
				err = assertState(actx.Registry, result.Trace, assertion)
			} else {
				err = assertProperty(actx.Registry, result.Trace, assertion)
			}
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
