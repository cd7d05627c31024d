// Package lifecycle owns spawned agent processes: their records, the
// concurrency caps and the Running to terminal state machine.
package lifecycle

import (
	"sync"
	"time"

	"github.com/kandev/agentfleet/internal/agent/agents"
	"github.com/kandev/agentfleet/internal/agent/streams"
)

// Status is the lifecycle state of an agent.
type Status int

const (
	StatusRunning Status = iota
	StatusCompleted
	StatusFailed
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusStopped:
		return "stopped"
	}
	return "unknown"
}

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	return s != StatusRunning
}

// MessageHistory is the number of assistant messages kept per agent.
const MessageHistory = 3

// messageRing keeps the most recent MessageHistory messages.
type messageRing struct {
	buf   [MessageHistory]string
	start int
	n     int
}

func (r *messageRing) push(s string) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = s
		r.n++
		return
	}
	r.buf[r.start] = s
	r.start = (r.start + 1) % len(r.buf)
}

// items returns the messages oldest first.
func (r *messageRing) items() []string {
	out := make([]string, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// pathSet is an insertion-ordered set of paths.
type pathSet struct {
	seen  map[string]struct{}
	order []string
}

func (s *pathSet) add(p string) {
	if p == "" {
		return
	}
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, ok := s.seen[p]; ok {
		return
	}
	s.seen[p] = struct{}{}
	s.order = append(s.order, p)
}

func (s *pathSet) list() []string {
	return append([]string{}, s.order...)
}

// Spec holds the spawn-time inputs of an agent. It never changes.
type Spec struct {
	TaskName  string
	AgentType agents.Type
	Prompt    string
	Cwd       string
	Mode      agents.Mode
	Model     string
	Ralph     bool
}

// AgentRecord is the live state of one spawned agent. The attached parser
// is its only writer while Running; readers take snapshots.
type AgentRecord struct {
	ID        string
	Spec      Spec
	StartedAt time.Time

	mu            sync.Mutex
	status        Status
	completedAt   time.Time
	exitCode      int
	stopRequested bool
	exited        bool // process reaped, output may still be draining
	toolCount     int
	bashCommands  []string
	filesCreated  pathSet
	filesModified pathSet
	filesDeleted  pathSet
	filesRead     pathSet
	messages      messageRing
}

func newAgentRecord(id string, spec Spec, now time.Time) *AgentRecord {
	return &AgentRecord{ID: id, Spec: spec, StartedAt: now, status: StatusRunning, exitCode: -1}
}

// Apply records one parser event. Events are discarded once the record is
// terminal or a stop has been requested.
func (r *AgentRecord) Apply(ev streams.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() || r.stopRequested {
		return false
	}
	if ev.Kind.IsTool() {
		r.toolCount++
	}
	switch ev.Kind {
	case streams.KindBash:
		r.bashCommands = append(r.bashCommands, ev.Value)
	case streams.KindFileCreate:
		r.filesCreated.add(ev.Value)
	case streams.KindFileModify:
		r.filesModified.add(ev.Value)
	case streams.KindFileDelete:
		r.filesDeleted.add(ev.Value)
	case streams.KindFileRead:
		r.filesRead.add(ev.Value)
	case streams.KindMessage:
		r.messages.push(ev.Value)
	case streams.KindOtherTool, streams.KindUnknown:
	}
	return true
}

// markExited notes that the process has been reaped. From then on a stop
// request is refused, so the real exit status is what finish records.
func (r *AgentRecord) markExited() {
	r.mu.Lock()
	r.exited = true
	r.mu.Unlock()
}

func (r *AgentRecord) hasExited() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exited
}

// markStopRequested flips the record into discard mode. It returns false if
// the record was already terminal, already being stopped, or its process has
// already exited.
func (r *AgentRecord) markStopRequested() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() || r.stopRequested || r.exited {
		return false
	}
	r.stopRequested = true
	return true
}

// finish performs the single Running to terminal transition. A stop
// requested before the process exited wins over the exit code.
func (r *AgentRecord) finish(exitCode int, waitErr error, now time.Time) (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		return r.status, false
	}
	switch {
	case r.stopRequested:
		r.status = StatusStopped
	case waitErr == nil && exitCode == 0:
		r.status = StatusCompleted
	default:
		r.status = StatusFailed
	}
	r.exitCode = exitCode
	r.completedAt = now
	return r.status, true
}

// Status returns the current status.
func (r *AgentRecord) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Snapshot is an immutable copy of an AgentRecord.
type Snapshot struct {
	ID            string
	Spec          Spec
	Status        Status
	StartedAt     time.Time
	CompletedAt   *time.Time
	ExitCode      int
	ToolCount     int
	BashCommands  []string
	FilesCreated  []string
	FilesModified []string
	FilesDeleted  []string
	FilesRead     []string
	LastMessages  []string
}

// Duration is the elapsed run time, measured up to now while Running.
func (s Snapshot) Duration(now time.Time) time.Duration {
	if s.CompletedAt != nil {
		return s.CompletedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}

// Snapshot copies the record under its lock.
func (r *AgentRecord) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Snapshot{
		ID:            r.ID,
		Spec:          r.Spec,
		Status:        r.status,
		StartedAt:     r.StartedAt,
		ExitCode:      r.exitCode,
		ToolCount:     r.toolCount,
		BashCommands:  append([]string{}, r.bashCommands...),
		FilesCreated:  r.filesCreated.list(),
		FilesModified: r.filesModified.list(),
		FilesDeleted:  r.filesDeleted.list(),
		FilesRead:     r.filesRead.list(),
		LastMessages:  r.messages.items(),
	}
	if r.status.Terminal() {
		t := r.completedAt
		s.CompletedAt = &t
	}
	return s
}
