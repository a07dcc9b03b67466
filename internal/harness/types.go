package harness

import "fmt"

// Trace event types.
const (
	EventState    = "state"
	EventProperty = "property"
	EventMessage  = "message"
	EventCommand  = "command"
	EventExport   = "export"
)

// TraceEvent is one observable effect of a scenario run.
type TraceEvent struct {
	Seq      int64  `json:"seq"`
	Type     string `json:"type"`
	Machine  string `json:"machine,omitempty"`
	State    string `json:"state,omitempty"`
	Property string `json:"property,omitempty"`
	Value    string `json:"value,omitempty"` // canonical JSON
	Message  string `json:"message,omitempty"`
	Target   string `json:"target,omitempty"`
	Output   string `json:"output,omitempty"`
}

// String renders the event as one golden-file line.
func (e TraceEvent) String() string {
	switch e.Type {
	case EventState:
		return fmt.Sprintf("%04d state %s -> %s", e.Seq, e.Machine, e.State)
	case EventProperty:
		return fmt.Sprintf("%04d property %s.%s = %s", e.Seq, e.Machine, e.Property, e.Value)
	case EventMessage:
		from := e.Machine
		if from == "" {
			from = "-"
		}
		return fmt.Sprintf("%04d message %s -> %s %s", e.Seq, from, e.Target, e.Message)
	case EventCommand:
		return fmt.Sprintf("%04d command %s => %s", e.Seq, e.Message, e.Output)
	case EventExport:
		return fmt.Sprintf("%04d export %s = %s", e.Seq, e.Target, e.Value)
	default:
		return fmt.Sprintf("%04d %s", e.Seq, e.Type)
	}
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds every recorded event in order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// States maps each machine to its state at the end of the run.
	States map[string]string `json:"states,omitempty"`

	// Cycles is the number of poll cycles run.
	Cycles int64 `json:"cycles"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		States: make(map[string]string),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// record appends e with the next sequence number.
func (r *Result) record(e TraceEvent) {
	e.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, e)
}
