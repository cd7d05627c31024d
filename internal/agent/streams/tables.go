package streams

import (
	"regexp"

	"github.com/kandev/agentfleet/internal/agent/agents"
)

var (
	pathFields    = []string{"file_path", "filePath", "path", "absolute_path", "notebook_path"}
	commandFields = []string{"command", "cmd"}
)

func shell(fields ...string) Tool {
	if len(fields) == 0 {
		fields = commandFields
	}
	return Tool{Kind: KindBash, Fields: fields}
}

func file(kind Kind) Tool {
	return Tool{Kind: kind, Fields: pathFields}
}

// claude -p --output-format stream-json: assistant messages carry an array of
// text and tool_use content blocks.
var claudeTable = Table{
	Rules: []Rule{{
		Match: map[string]string{"type": "assistant"},
		Each:  "message.content",
		Rules: []Rule{
			{Match: map[string]string{"type": "text"}, Kind: KindMessage, Fields: []string{"text"}},
			{
				Match:    map[string]string{"type": "tool_use"},
				ToolName: "name",
				Args:     "input",
				Tools: map[string]Tool{
					"Bash":         shell(),
					"Write":        file(KindFileCreate),
					"Edit":         file(KindFileModify),
					"MultiEdit":    file(KindFileModify),
					"NotebookEdit": file(KindFileModify),
					"Read":         file(KindFileRead),
				},
			},
		},
	}},
}

// codex exec --json: completed thread items. Older releases printed a human
// transcript instead, which the markers cover.
var codexTable = Table{
	Rules: []Rule{
		{
			Match:  map[string]string{"type": "item.completed", "item.type": "command_execution"},
			Kind:   KindBash,
			Fields: []string{"item.command"},
		},
		{
			Match: map[string]string{"type": "item.completed", "item.type": "file_change"},
			Each:  "item.changes",
			Rules: []Rule{
				{Match: map[string]string{"kind": "add"}, Kind: KindFileCreate, Fields: []string{"path"}},
				{Match: map[string]string{"kind": "update"}, Kind: KindFileModify, Fields: []string{"path"}},
				{Match: map[string]string{"kind": "delete"}, Kind: KindFileDelete, Fields: []string{"path"}},
			},
		},
		{
			Match:  map[string]string{"type": "item.completed", "item.type": "agent_message"},
			Kind:   KindMessage,
			Fields: []string{"item.text"},
		},
		{
			Match: map[string]string{"type": "item.completed", "item.type": "mcp_tool_call"},
			Kind:  KindOtherTool,
		},
		{
			Match: map[string]string{"type": "item.completed", "item.type": "web_search"},
			Kind:  KindOtherTool,
		},
	},
	Markers: []Marker{
		{Pattern: regexp.MustCompile(`^(?:\[[^\]]*\]\s*)?exec\s+(.+?)\s+in\s+\S+\s*$`), Kind: KindBash},
		{Pattern: regexp.MustCompile(`^\s*A\s+(\S+)\s*$`), Kind: KindFileCreate},
		{Pattern: regexp.MustCompile(`^\s*M\s+(\S+)\s*$`), Kind: KindFileModify},
		{Pattern: regexp.MustCompile(`^\s*D\s+(\S+)\s*$`), Kind: KindFileDelete},
	},
}

// gemini --output-format stream-json: flat tool_use events and message deltas.
var geminiTable = Table{
	Rules: []Rule{
		{
			Match:    map[string]string{"type": "tool_use"},
			ToolName: "tool_name",
			Args:     "parameters",
			Tools: map[string]Tool{
				"run_shell_command": shell(),
				"write_file":        file(KindFileCreate),
				"replace":           file(KindFileModify),
				"edit":              file(KindFileModify),
				"read_file":         file(KindFileRead),
			},
		},
		{
			Match:  map[string]string{"type": "message", "role": "assistant"},
			Kind:   KindMessage,
			Fields: []string{"content"},
			Delta:  "delta",
		},
	},
}

// cursor-agent -p --output-format stream-json: tool calls are keyed objects
// such as {"shellToolCall":{"args":{...}}}.
var cursorTable = Table{
	Rules: []Rule{
		{
			Match:   map[string]string{"type": "tool_call", "subtype": "started"},
			ToolKey: "tool_call",
			Args:    "args",
			Tools: map[string]Tool{
				"shellToolCall":  shell(),
				"writeToolCall":  file(KindFileCreate),
				"editToolCall":   file(KindFileModify),
				"deleteToolCall": file(KindFileDelete),
				"readToolCall":   file(KindFileRead),
			},
		},
		{
			Match: map[string]string{"type": "assistant"},
			Each:  "message.content",
			Rules: []Rule{
				{Match: map[string]string{"type": "text"}, Kind: KindMessage, Fields: []string{"text"}},
			},
		},
	},
}

// opencode run --format json: each event wraps a message part.
var opencodeTable = Table{
	Rules: []Rule{
		{
			Match:    map[string]string{"type": "tool_use"},
			ToolName: "part.tool",
			Args:     "part.state.input",
			Tools: map[string]Tool{
				"bash":  shell(),
				"write": file(KindFileCreate),
				"edit":  file(KindFileModify),
				"patch": file(KindFileModify),
				"read":  file(KindFileRead),
			},
		},
		{
			Match:  map[string]string{"type": "text"},
			Kind:   KindMessage,
			Fields: []string{"part.text"},
		},
	},
}

var tables = map[agents.Type]*Table{
	agents.TypeClaude:   &claudeTable,
	agents.TypeCodex:    &codexTable,
	agents.TypeGemini:   &geminiTable,
	agents.TypeCursor:   &cursorTable,
	agents.TypeOpenCode: &opencodeTable,
}

// TableFor returns the mapping table for t.
func TableFor(t agents.Type) (*Table, bool) {
	tbl, ok := tables[t]
	return tbl, ok
}
