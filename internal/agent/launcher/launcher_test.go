//go:build unix

package launcher

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kandev/agentfleet/internal/agent/agents"
	"github.com/kandev/agentfleet/internal/agent/ralph"
	apperrors "github.com/kandev/agentfleet/internal/common/errors"
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

// newTestLauncher points the codex profile at a shell script with body.
func newTestLauncher(t *testing.T, body string) *Launcher {
	t.Helper()
	reg, err := agents.NewRegistry("")
	require.NoError(t, err)

	bin := filepath.Join(t.TempDir(), "codex")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	p, _ := reg.Get(agents.TypeCodex)
	p.Binary = bin
	p.Env = map[string]string{"FLEET_TEST_VAR": "present"}
	reg.Set(agents.TypeCodex, p)

	return New(reg, newTestLogger())
}

func TestLaunch_PassesArgsEnvAndCwd(t *testing.T) {
	l := newTestLauncher(t, `pwd; echo "$FLEET_TEST_VAR"; for a in "$@"; do echo "arg:$a"; done`)
	cwd := t.TempDir()

	proc, err := l.Launch(Request{Type: agents.TypeCodex, Prompt: "say hi", Cwd: cwd, Mode: agents.ModeEdit, Model: "o3"})
	require.NoError(t, err)

	out, err := io.ReadAll(proc.Stdout())
	require.NoError(t, err)
	code, err := proc.Wait()
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	proc.CloseOutput()

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	resolved, _ := filepath.EvalSymlinks(cwd)
	assert.Contains(t, []string{cwd, resolved}, lines[0])
	assert.Equal(t, "present", lines[1])
	assert.Equal(t, []string{
		"arg:exec", "arg:--json", "arg:--skip-git-repo-check",
		"arg:--full-auto", "arg:-m", "arg:o3", "arg:--", "arg:say hi",
	}, lines[2:])
}

func TestLaunch_ExitCode(t *testing.T) {
	l := newTestLauncher(t, `echo boom >&2; exit 3`)

	proc, err := l.Launch(Request{Type: agents.TypeCodex, Prompt: "x", Cwd: t.TempDir(), Mode: agents.ModePlan})
	require.NoError(t, err)

	errOut, _ := io.ReadAll(proc.Stderr())
	code, err := proc.Wait()
	assert.Error(t, err)
	assert.Equal(t, 3, code)
	assert.Equal(t, "boom\n", string(errOut))
	proc.CloseOutput()
}

func TestLaunch_MissingCwdIsSpawnError(t *testing.T) {
	l := newTestLauncher(t, `exit 0`)

	_, err := l.Launch(Request{Type: agents.TypeCodex, Prompt: "x", Cwd: "/definitely/not/here", Mode: agents.ModeEdit})
	require.Error(t, err)
	assert.True(t, apperrors.IsSpawn(err))
}

func TestLaunch_MissingBinaryIsSpawnError(t *testing.T) {
	reg, err := agents.NewRegistry("")
	require.NoError(t, err)
	p, _ := reg.Get(agents.TypeGemini)
	p.Binary = filepath.Join(t.TempDir(), "missing")
	reg.Set(agents.TypeGemini, p)

	_, err = New(reg, newTestLogger()).Launch(Request{Type: agents.TypeGemini, Prompt: "x", Cwd: t.TempDir(), Mode: agents.ModeEdit})
	require.Error(t, err)
	assert.True(t, apperrors.IsSpawn(err))
}

func TestLaunch_TerminateReachesProcessGroup(t *testing.T) {
	l := newTestLauncher(t, `sleep 30 & wait`)

	proc, err := l.Launch(Request{Type: agents.TypeCodex, Prompt: "x", Cwd: t.TempDir(), Mode: agents.ModeEdit})
	require.NoError(t, err)
	defer proc.CloseOutput()

	require.NoError(t, proc.Terminate())
	done := make(chan int, 1)
	go func() {
		code, _ := proc.Wait()
		done <- code
	}()
	select {
	case code := <-done:
		assert.NotEqual(t, 0, code)
	case <-time.After(5 * time.Second):
		_ = proc.Kill()
		t.Fatal("process did not exit after SIGTERM")
	}
}

func TestLaunch_RalphRefusesDangerousPath(t *testing.T) {
	t.Setenv(ralph.EnvDisabled, "")
	l := newTestLauncher(t, `exit 0`)

	_, err := l.Launch(Request{Type: agents.TypeCodex, Prompt: "x", Cwd: "/usr", Mode: agents.ModeEdit, Ralph: true})
	require.Error(t, err)
	assert.True(t, apperrors.IsDangerousPath(err))
}

func TestLaunch_RalphDisabled(t *testing.T) {
	t.Setenv(ralph.EnvDisabled, "1")
	l := newTestLauncher(t, `exit 0`)

	_, err := l.Launch(Request{Type: agents.TypeCodex, Prompt: "x", Cwd: t.TempDir(), Mode: agents.ModeEdit, Ralph: true})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestLaunch_RalphWrapsPrompt(t *testing.T) {
	t.Setenv(ralph.EnvDisabled, "")
	t.Setenv(ralph.EnvTaskFile, "TASKS.md")
	l := newTestLauncher(t, `for a in "$@"; do last="$a"; done; printf '%s' "$last"`)
	cwd := t.TempDir()

	proc, err := l.Launch(Request{Type: agents.TypeCodex, Prompt: "ship the feature", Cwd: cwd, Mode: agents.ModeEdit, Ralph: true})
	require.NoError(t, err)
	out, _ := io.ReadAll(proc.Stdout())
	_, _ = proc.Wait()
	proc.CloseOutput()

	assert.Contains(t, string(out), "ship the feature")
	assert.Contains(t, string(out), filepath.Join(cwd, "TASKS.md"))
	assert.Contains(t, string(out), "## [x]")
}

func TestAppendStderr_StripsANSIAndBounds(t *testing.T) {
	p := &Process{}
	p.AppendStderr("\x1b[31mred\x1b[0m")
	for i := 0; i < stderrTailLines+5; i++ {
		p.AppendStderr("line")
	}
	tail := p.StderrTail()
	assert.Len(t, tail, stderrTailLines)
	assert.NotContains(t, tail, "red")

	p = &Process{}
	p.AppendStderr("\x1b[31mred\x1b[0m")
	assert.Equal(t, []string{"red"}, p.StderrTail())
}
