package machine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// PackageKind distinguishes mailbox entries.
type PackageKind int

const (
	// PackageMessage is a named message from another instance or an
	// external command source.
	PackageMessage PackageKind = iota
	// PackageTimer reports that a scheduled trigger has fired.
	PackageTimer
	// PackageSetState asks the target to move to the state named in
	// Message. It bypasses receive eligibility, like the SET command.
	PackageSetState
)

func (k PackageKind) String() string {
	switch k {
	case PackageMessage:
		return "message"
	case PackageTimer:
		return "timer"
	case PackageSetState:
		return "set-state"
	default:
		return fmt.Sprintf("PackageKind(%d)", int(k))
	}
}

// Package is the unit of delivery between instances.
type Package struct {
	ID         string
	Seq        int64
	Kind       PackageKind
	Sender     ID
	SenderName string
	Target     ID
	TargetName string
	Broadcast  bool
	Message    string
	NeedsReply bool
}

func (p Package) String() string {
	to := p.TargetName
	if p.Broadcast {
		to = "*"
	}
	reply := ""
	if p.NeedsReply {
		reply = " (reply)"
	}
	return fmt.Sprintf("%s -> %s: %s%s", p.SenderName, to, p.Message, reply)
}

// IDGenerator produces package identifiers.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 package IDs.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequentialGenerator returns "<prefix>-1", "<prefix>-2", ... for
// deterministic traces.
type SequentialGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialGenerator creates a generator with the given prefix.
func NewSequentialGenerator(prefix string) *SequentialGenerator {
	return &SequentialGenerator{prefix: prefix}
}

// Generate returns the next identifier.
func (g *SequentialGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Sequence is a monotonic logical clock stamping packages in send order.
type Sequence struct {
	seq atomic.Int64
}

// Next returns the next sequence number.
func (s *Sequence) Next() int64 { return s.seq.Add(1) }

// Current returns the last issued sequence number.
func (s *Sequence) Current() int64 { return s.seq.Load() }
