// Package agents describes the vendor coding CLIs the orchestrator can drive
// and how to invoke each one headlessly.
package agents

import "fmt"

// Type identifies one supported vendor CLI.
type Type string

const (
	TypeClaude   Type = "claude"
	TypeCodex    Type = "codex"
	TypeGemini   Type = "gemini"
	TypeCursor   Type = "cursor"
	TypeOpenCode Type = "opencode"
)

// AllTypes lists every supported agent type in display order.
var AllTypes = []Type{TypeClaude, TypeCodex, TypeGemini, TypeCursor, TypeOpenCode}

// ParseType returns the Type named by s.
func ParseType(s string) (Type, error) {
	for _, t := range AllTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown agent type %q", s)
}

// TypeNames returns the string form of AllTypes.
func TypeNames() []string {
	names := make([]string, len(AllTypes))
	for i, t := range AllTypes {
		names[i] = string(t)
	}
	return names
}

// Mode selects whether the agent may modify the working tree.
type Mode string

const (
	ModeEdit Mode = "edit"
	ModePlan Mode = "plan"
)

// ParseMode returns the Mode named by s.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeEdit, ModePlan:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}
