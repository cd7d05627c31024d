// Package streams turns the heterogeneous output of vendor agent CLIs into
// normalized events. Each agent type is described by a mapping table; the
// parser itself has no vendor-specific control flow.
package streams

// Kind is the canonical category of one output unit.
type Kind int

const (
	KindUnknown Kind = iota
	KindBash
	KindFileCreate
	KindFileModify
	KindFileDelete
	KindFileRead
	KindMessage
	KindOtherTool
)

var kindNames = map[Kind]string{
	KindUnknown:    "unknown",
	KindBash:       "bash",
	KindFileCreate: "file_create",
	KindFileModify: "file_modify",
	KindFileDelete: "file_delete",
	KindFileRead:   "file_read",
	KindMessage:    "message",
	KindOtherTool:  "other_tool",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// IsTool reports whether events of this kind count as tool calls.
func (k Kind) IsTool() bool {
	switch k {
	case KindBash, KindFileCreate, KindFileModify, KindFileDelete, KindFileRead, KindOtherTool:
		return true
	}
	return false
}

// Event is one normalized action taken by an agent.
type Event struct {
	Kind Kind
	// Value is the command line for KindBash, the path for file kinds and the
	// text for KindMessage. It is empty for KindOtherTool.
	Value string
	// Tool is the vendor tool name when the unit was a tool call.
	Tool string
	// Fragment marks a streamed piece of a longer KindMessage. ParseUnit
	// returns fragments as they come; Feed and Flush join consecutive ones.
	Fragment bool
}
