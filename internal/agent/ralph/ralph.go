// Package ralph gates autonomous ("ralph mode") agent runs. An agent in ralph
// mode works through a checklist file unattended until every item is done.
package ralph

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultTaskFile is the checklist file name used when none is configured.
	DefaultTaskFile = "RALPH.md"

	EnvTaskFile = "AGENTFLEET_RALPH_FILE"
	EnvDisabled = "AGENTFLEET_RALPH_DISABLED"
)

// Config is the environment-driven ralph configuration.
type Config struct {
	TaskFile string
	Disabled bool
}

// GetRalphConfig reads the ralph settings from the process environment.
func GetRalphConfig() Config {
	taskFile := strings.TrimSpace(os.Getenv(EnvTaskFile))
	if taskFile == "" {
		taskFile = DefaultTaskFile
	}
	disabled := os.Getenv(EnvDisabled)
	return Config{
		TaskFile: taskFile,
		Disabled: disabled == "true" || disabled == "1",
	}
}

// TaskFilePath returns the absolute path of the checklist inside cwd.
func (c Config) TaskFilePath(cwd string) (string, error) {
	if filepath.IsAbs(c.TaskFile) {
		return filepath.Clean(c.TaskFile), nil
	}
	return filepath.Abs(filepath.Join(cwd, c.TaskFile))
}

// protectedTrees are denied along with everything beneath them.
var protectedTrees = []string{"/System", "/usr", "/bin", "/etc"}

// IsDangerousPath reports whether path is the home directory, the filesystem
// root, or inside one of the protected system trees. Paths that cannot be
// made absolute are treated as dangerous.
func IsDangerousPath(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return true
	}
	candidates := []string{filepath.Clean(abs)}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil && resolved != candidates[0] {
		candidates = append(candidates, resolved)
	}

	home, _ := os.UserHomeDir()
	for _, p := range candidates {
		if p == string(filepath.Separator) {
			return true
		}
		if home != "" && p == filepath.Clean(home) {
			return true
		}
		for _, tree := range protectedTrees {
			if p == tree || strings.HasPrefix(p, tree+string(filepath.Separator)) {
				return true
			}
		}
	}
	return false
}

const promptTemplate = `# Autonomous Task Loop

You are running unattended in ralph mode. Nobody will answer questions, so make
reasonable decisions yourself and keep going.

## Goal

%s

## Task File

Your task list lives at:

%s

Read it first. If it does not exist yet, create it by breaking the goal above
into concrete tasks.

## Task File Format

Each task is a level-two heading with a checkbox:

    ## [ ] Short task title
    Details of what needs to happen.

    ## [x] Finished task title
    Details of what needs to happen.

    ### Updates
    - What you did, what you found, anything left for later.

- "## [ ]" marks a task that is not done yet.
- "## [x]" marks a task that is complete.
- Add a "### Updates" section under a task to record progress notes.

## How To Work

1. Read the task file and review every unchecked task.
2. Pick the next task in a logical order. Dependencies first; the list order is
   only a suggestion and you do not have to go top to bottom.
3. Complete the task fully, including tests where they exist.
4. Mark it "## [x]" and append what you did under its "### Updates" section.
5. Re-read the task file and continue with the next unchecked task.

Continue autonomously until every task in the file is marked "## [x]". Do not
stop to ask for confirmation between tasks.`

// BuildRalphPrompt produces the instructions for an autonomous run.
func BuildRalphPrompt(userPrompt, ralphFilePath string) string {
	return fmt.Sprintf(promptTemplate, userPrompt, ralphFilePath)
}
