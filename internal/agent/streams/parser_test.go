package streams

import (
	"strings"
	"testing"

	"github.com/kandev/agentfleet/internal/agent/agents"
	"github.com/kandev/agentfleet/internal/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logger.Logger {
	log, _ := logger.NewLogger(logger.LoggingConfig{
		Level:  "error",
		Format: "json",
	})
	return log
}

func newTestParser(t *testing.T, typ agents.Type) *Parser {
	t.Helper()
	p, err := NewParser(typ, newTestLogger())
	require.NoError(t, err)
	return p
}

func feedAll(p *Parser, lines ...string) []Event {
	evs := p.Feed([]byte(strings.Join(lines, "\n") + "\n"))
	return append(evs, p.Flush()...)
}

func TestEveryTypeHasATable(t *testing.T) {
	for _, typ := range agents.AllTypes {
		_, ok := TableFor(typ)
		assert.True(t, ok, "no table for %s", typ)
	}
}

func TestParser_Claude(t *testing.T) {
	p := newTestParser(t, agents.TypeClaude)
	evs := feedAll(p,
		`{"type":"system","subtype":"init","session_id":"s1"}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"Looking around"},{"type":"tool_use","id":"t1","name":"Bash","input":{"command":"ls -la"}}]}}`,
		`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Write","input":{"file_path":"/p/new.go","content":"x"}}]}}`,
		`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Edit","input":{"file_path":"/p/old.go"}}]}}`,
		`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Read","input":{"file_path":"/p/README.md"}}]}}`,
		`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Grep","input":{"pattern":"x"}}]}}`,
		`{"type":"user","message":{"content":[{"type":"tool_result","content":"ok"}]}}`,
		`{"type":"result","subtype":"success","result":"done"}`,
	)

	require.Len(t, evs, 6)
	assert.Equal(t, Event{Kind: KindMessage, Value: "Looking around"}, evs[0])
	assert.Equal(t, Event{Kind: KindBash, Value: "ls -la", Tool: "Bash"}, evs[1])
	assert.Equal(t, Event{Kind: KindFileCreate, Value: "/p/new.go", Tool: "Write"}, evs[2])
	assert.Equal(t, Event{Kind: KindFileModify, Value: "/p/old.go", Tool: "Edit"}, evs[3])
	assert.Equal(t, Event{Kind: KindFileRead, Value: "/p/README.md", Tool: "Read"}, evs[4])
	assert.Equal(t, Event{Kind: KindOtherTool, Tool: "Grep"}, evs[5])
}

func TestParser_Codex(t *testing.T) {
	p := newTestParser(t, agents.TypeCodex)
	evs := feedAll(p,
		`{"type":"thread.started","thread_id":"th"}`,
		`{"type":"item.started","item":{"id":"i0","type":"command_execution","command":"bash -lc 'echo hi'","status":"in_progress"}}`,
		`{"type":"item.completed","item":{"id":"i0","type":"command_execution","command":"bash -lc 'echo hi'","aggregated_output":"hi\n","exit_code":0}}`,
		`{"type":"item.completed","item":{"id":"i1","type":"file_change","changes":[{"path":"a.txt","kind":"add"},{"path":"b.txt","kind":"update"},{"path":"c.txt","kind":"delete"}]}}`,
		`{"type":"item.completed","item":{"id":"i2","type":"agent_message","text":"All done"}}`,
		`{"type":"item.completed","item":{"id":"i3","type":"reasoning","text":"thinking"}}`,
		`{"type":"item.completed","item":{"id":"i4","type":"mcp_tool_call","server":"s","tool":"t"}}`,
		`{"type":"turn.completed","usage":{"input_tokens":1}}`,
	)

	require.Len(t, evs, 6)
	assert.Equal(t, Event{Kind: KindBash, Value: "bash -lc 'echo hi'"}, evs[0])
	assert.Equal(t, Event{Kind: KindFileCreate, Value: "a.txt"}, evs[1])
	assert.Equal(t, Event{Kind: KindFileModify, Value: "b.txt"}, evs[2])
	assert.Equal(t, Event{Kind: KindFileDelete, Value: "c.txt"}, evs[3])
	assert.Equal(t, Event{Kind: KindMessage, Value: "All done"}, evs[4])
	assert.Equal(t, KindOtherTool, evs[5].Kind)
}

func TestParser_CodexArgvCommand(t *testing.T) {
	p := newTestParser(t, agents.TypeCodex)
	evs := feedAll(p, `{"type":"item.completed","item":{"type":"command_execution","command":["bash","-lc","echo hi"]}}`)

	require.Len(t, evs, 1)
	assert.Equal(t, "bash -lc echo hi", evs[0].Value)
}

func TestParser_CodexTextMarkers(t *testing.T) {
	p := newTestParser(t, agents.TypeCodex)
	evs := feedAll(p,
		"[2025-01-01T00:00:00] exec bash -lc 'echo hi' in /tmp/work",
		"[2025-01-01T00:00:01] bash -lc 'echo hi' succeeded in 12ms:",
		"hi",
	)

	require.Len(t, evs, 1)
	assert.Equal(t, Event{Kind: KindBash, Value: "bash -lc 'echo hi'"}, evs[0])
}

func TestParser_Gemini(t *testing.T) {
	p := newTestParser(t, agents.TypeGemini)
	evs := feedAll(p,
		`{"type":"init","session_id":"x","model":"gemini-2.5-pro"}`,
		`{"type":"message","role":"user","content":"do it"}`,
		`{"type":"message","role":"assistant","content":"Sure","delta":true}`,
		`{"type":"tool_use","tool_name":"run_shell_command","tool_id":"1","parameters":{"command":"go test ./..."}}`,
		`{"type":"tool_use","tool_name":"write_file","tool_id":"2","parameters":{"file_path":"/w/a.go","content":""}}`,
		`{"type":"tool_use","tool_name":"replace","tool_id":"3","parameters":{"file_path":"/w/b.go"}}`,
		`{"type":"tool_use","tool_name":"read_file","tool_id":"4","parameters":{"absolute_path":"/w/c.go"}}`,
		`{"type":"tool_use","tool_name":"google_web_search","tool_id":"5","parameters":{"query":"x"}}`,
		`{"type":"tool_result","tool_id":"1","status":"success"}`,
	)

	require.Len(t, evs, 6)
	assert.Equal(t, KindMessage, evs[0].Kind)
	assert.Equal(t, Event{Kind: KindBash, Value: "go test ./...", Tool: "run_shell_command"}, evs[1])
	assert.Equal(t, KindFileCreate, evs[2].Kind)
	assert.Equal(t, KindFileModify, evs[3].Kind)
	assert.Equal(t, Event{Kind: KindFileRead, Value: "/w/c.go", Tool: "read_file"}, evs[4])
	assert.Equal(t, KindOtherTool, evs[5].Kind)
}

func TestParser_GeminiJoinsMessageDeltas(t *testing.T) {
	p := newTestParser(t, agents.TypeGemini)
	lines := []string{
		`{"type":"message","role":"assistant","content":"I'll run ","delta":true}`,
		`{"type":"message","role":"assistant","content":"the tests.","delta":true}`,
		`{"type":"tool_use","tool_name":"run_shell_command","tool_id":"1","parameters":{"command":"go test ./..."}}`,
		`{"type":"tool_result","tool_id":"1","status":"success"}`,
		`{"type":"message","role":"assistant","content":"All ","delta":true}`,
		`{"type":"message","role":"assistant","content":"green.","delta":true}`,
	}
	evs := p.Feed([]byte(strings.Join(lines, "\n") + "\n"))
	require.Len(t, evs, 2)
	assert.Equal(t, Event{Kind: KindMessage, Value: "I'll run the tests."}, evs[0])
	assert.Equal(t, KindBash, evs[1].Kind)

	assert.Equal(t, []Event{{Kind: KindMessage, Value: "All green."}}, p.Flush())
	assert.Empty(t, p.Flush())
}

func TestParser_Cursor(t *testing.T) {
	p := newTestParser(t, agents.TypeCursor)
	evs := feedAll(p,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"On it"}]}}`,
		`{"type":"tool_call","subtype":"started","call_id":"c1","tool_call":{"shellToolCall":{"args":{"command":"npm test"}}}}`,
		`{"type":"tool_call","subtype":"completed","call_id":"c1","tool_call":{"shellToolCall":{"args":{"command":"npm test"},"result":{}}}}`,
		`{"type":"tool_call","subtype":"started","call_id":"c2","tool_call":{"writeToolCall":{"args":{"path":"src/x.ts"}}}}`,
		`{"type":"tool_call","subtype":"started","call_id":"c3","tool_call":{"deleteToolCall":{"args":{"path":"src/y.ts"}}}}`,
		`{"type":"tool_call","subtype":"started","call_id":"c4","tool_call":{"grepToolCall":{"args":{"pattern":"z"}}}}`,
	)

	require.Len(t, evs, 5)
	assert.Equal(t, Event{Kind: KindMessage, Value: "On it"}, evs[0])
	assert.Equal(t, Event{Kind: KindBash, Value: "npm test", Tool: "shellToolCall"}, evs[1])
	assert.Equal(t, Event{Kind: KindFileCreate, Value: "src/x.ts", Tool: "writeToolCall"}, evs[2])
	assert.Equal(t, Event{Kind: KindFileDelete, Value: "src/y.ts", Tool: "deleteToolCall"}, evs[3])
	assert.Equal(t, Event{Kind: KindOtherTool, Tool: "grepToolCall"}, evs[4])
}

func TestParser_OpenCode(t *testing.T) {
	p := newTestParser(t, agents.TypeOpenCode)
	evs := feedAll(p,
		`{"type":"step_start","part":{"type":"step-start"}}`,
		`{"type":"tool_use","part":{"type":"tool","tool":"bash","state":{"status":"completed","input":{"command":"make"}}}}`,
		`{"type":"tool_use","part":{"type":"tool","tool":"edit","state":{"status":"completed","input":{"filePath":"/r/main.go"}}}}`,
		`{"type":"text","part":{"type":"text","text":"Finished"}}`,
	)

	require.Len(t, evs, 3)
	assert.Equal(t, Event{Kind: KindBash, Value: "make", Tool: "bash"}, evs[0])
	assert.Equal(t, Event{Kind: KindFileModify, Value: "/r/main.go", Tool: "edit"}, evs[1])
	assert.Equal(t, Event{Kind: KindMessage, Value: "Finished"}, evs[2])
}

func TestParser_PartialChunks(t *testing.T) {
	p := newTestParser(t, agents.TypeCodex)
	line := `{"type":"item.completed","item":{"type":"command_execution","command":"echo hi"}}` + "\n"

	var evs []Event
	for i := 0; i < len(line); i++ {
		evs = append(evs, p.Feed([]byte{line[i]})...)
	}

	require.Len(t, evs, 1)
	assert.Equal(t, "echo hi", evs[0].Value)
}

func TestParser_MultipleUnitsInOneChunk(t *testing.T) {
	p := newTestParser(t, agents.TypeCodex)
	chunk := `{"type":"item.completed","item":{"type":"command_execution","command":"a"}}` + "\n" +
		`{"type":"item.completed","item":{"type":"command_execution","command":"b"}}` + "\n" +
		`{"type":"item.completed","item":{"type":"comm`

	evs := p.Feed([]byte(chunk))
	require.Len(t, evs, 2)

	evs = p.Feed([]byte(`and_execution","command":"c"}}` + "\n"))
	require.Len(t, evs, 1)
	assert.Equal(t, "c", evs[0].Value)
}

func TestParser_MalformedUnitIsSkipped(t *testing.T) {
	p := newTestParser(t, agents.TypeCodex)
	evs := feedAll(p,
		`{"type":"item.completed","item":{"type":"command_execution","command":"first"}}`,
		`{"type":"item.completed","item":{"type":`,
		`not json at all`,
		`{"type":"item.completed","item":{"type":"command_execution","command":"second"}}`,
	)

	require.Len(t, evs, 2)
	assert.Equal(t, "first", evs[0].Value)
	assert.Equal(t, "second", evs[1].Value)
}

func TestParser_ParseUnitReportsErrParse(t *testing.T) {
	p := newTestParser(t, agents.TypeClaude)

	_, err := p.ParseUnit([]byte(`{"broken"`))
	assert.ErrorIs(t, err, ErrParse)

	evs, err := p.ParseUnit([]byte("   "))
	assert.NoError(t, err)
	assert.Empty(t, evs)
}

func TestParser_FlushHandlesUnterminatedUnit(t *testing.T) {
	p := newTestParser(t, agents.TypeGemini)
	assert.Empty(t, p.Feed([]byte(`{"type":"message","role":"assistant","content":"tail"}`)))

	evs := p.Flush()
	require.Len(t, evs, 1)
	assert.Equal(t, "tail", evs[0].Value)
	assert.Empty(t, p.Flush())
}

func TestParser_OversizedUnitIsDropped(t *testing.T) {
	p := newTestParser(t, agents.TypeCodex)
	big := strings.Repeat("x", MaxUnitSize+1)

	evs := p.Feed([]byte(big))
	evs = append(evs, p.Feed([]byte("still the same line\n"))...)
	evs = append(evs, p.Feed([]byte(`{"type":"item.completed","item":{"type":"command_execution","command":"after"}}`+"\n"))...)

	require.Len(t, evs, 1)
	assert.Equal(t, "after", evs[0].Value)
}

func TestKindIsTool(t *testing.T) {
	assert.True(t, KindBash.IsTool())
	assert.True(t, KindOtherTool.IsTool())
	assert.False(t, KindMessage.IsTool())
	assert.False(t, KindUnknown.IsTool())
	assert.Equal(t, "file_delete", KindFileDelete.String())
}
