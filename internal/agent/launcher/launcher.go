// Package launcher starts vendor agent CLIs as child processes.
package launcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/kandev/agentfleet/internal/agent/agents"
	"github.com/kandev/agentfleet/internal/agent/ralph"
	apperrors "github.com/kandev/agentfleet/internal/common/errors"
	"github.com/kandev/agentfleet/internal/common/logger"
	"go.uber.org/zap"
)

// Request describes one process to start.
type Request struct {
	Type   agents.Type
	Prompt string
	Cwd    string
	Mode   agents.Mode
	Model  string
	// Ralph wraps the prompt in the autonomous checklist loop. It is refused
	// for protected directories or when ralph mode is disabled.
	Ralph bool
}

// Launcher builds command lines from the agent registry and starts them.
type Launcher struct {
	registry *agents.Registry
	logger   *logger.Logger
}

// New creates a Launcher.
func New(registry *agents.Registry, log *logger.Logger) *Launcher {
	return &Launcher{
		registry: registry,
		logger:   log.WithComponent("launcher"),
	}
}

// Registry returns the agent registry the launcher resolves profiles from.
func (l *Launcher) Registry() *agents.Registry {
	return l.registry
}

// CheckCliAvailable resolves the binary for t on the search path.
func (l *Launcher) CheckCliAvailable(ctx context.Context, t agents.Type) (bool, string) {
	return l.registry.CheckCliAvailable(ctx, t)
}

// ResolveCwd returns the absolute working directory for cwd, defaulting to
// the orchestrator's own directory.
func ResolveCwd(cwd string) (string, error) {
	if cwd == "" {
		return os.Getwd()
	}
	return filepath.Abs(cwd)
}

// Launch starts the process. Errors are AppErrors: DangerousPath and
// ValidationError for ralph refusals, SpawnError for everything else.
func (l *Launcher) Launch(req Request) (*Process, error) {
	profile, ok := l.registry.Get(req.Type)
	if !ok {
		return nil, apperrors.ValidationError("agent_type", fmt.Sprintf("unsupported agent type %q", req.Type))
	}

	cwd, err := ResolveCwd(req.Cwd)
	if err != nil {
		return nil, apperrors.SpawnError(string(req.Type), err)
	}
	info, err := os.Stat(cwd)
	if err != nil {
		return nil, apperrors.SpawnError(string(req.Type), fmt.Errorf("working directory: %w", err))
	}
	if !info.IsDir() {
		return nil, apperrors.SpawnError(string(req.Type), fmt.Errorf("working directory %s is not a directory", cwd))
	}

	prompt := req.Prompt
	if req.Ralph {
		prompt, err = l.ralphPrompt(req.Prompt, cwd)
		if err != nil {
			return nil, err
		}
	}

	command := profile.BuildCommand(agents.CommandOptions{Prompt: prompt, Mode: req.Mode, Model: req.Model})
	return l.start(req.Type, command, cwd, profile.Environ())
}

func (l *Launcher) ralphPrompt(prompt, cwd string) (string, error) {
	cfg := ralph.GetRalphConfig()
	if cfg.Disabled {
		return "", apperrors.ValidationError("ralph", "ralph mode is disabled on this host")
	}
	if ralph.IsDangerousPath(cwd) {
		l.logger.Warn("refusing ralph run in protected directory", zap.String("cwd", cwd))
		return "", apperrors.DangerousPath(cwd)
	}
	taskFile, err := cfg.TaskFilePath(cwd)
	if err != nil {
		return "", apperrors.SpawnError("ralph", err)
	}
	return ralph.BuildRalphPrompt(prompt, taskFile), nil
}

func (l *Launcher) start(t agents.Type, command agents.Command, cwd string, extraEnv []string) (*Process, error) {
	if command.IsEmpty() || command.Binary() == "" {
		return nil, apperrors.SpawnError(string(t), fmt.Errorf("no binary configured"))
	}
	args := command.Args()
	cmd := exec.Command(command.Binary(), args[1:]...)
	cmd.Dir = cwd
	cmd.Env = append(os.Environ(), extraEnv...)
	setProcGroup(cmd)

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, apperrors.SpawnError(string(t), err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		_ = stdoutR.Close()
		_ = stdoutW.Close()
		return nil, apperrors.SpawnError(string(t), err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	startErr := cmd.Start()
	// The child holds its own copies of the write ends.
	_ = stdoutW.Close()
	_ = stderrW.Close()
	if startErr != nil {
		_ = stdoutR.Close()
		_ = stderrR.Close()
		return nil, apperrors.SpawnError(string(t), startErr)
	}

	l.logger.Info("agent process started",
		zap.String("agent_type", string(t)),
		zap.Int("pid", cmd.Process.Pid),
		zap.String("cwd", cwd))

	return &Process{
		Pid:    cmd.Process.Pid,
		Args:   args,
		cmd:    cmd,
		stdout: stdoutR,
		stderr: stderrR,
	}, nil
}
