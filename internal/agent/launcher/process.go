package launcher

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"syscall"
)

const stderrTailLines = 20

// Process is a started agent CLI. Its stdout and stderr are raw OS pipes so
// Wait observes the exit without waiting for readers to drain.
type Process struct {
	Pid  int
	Args []string

	cmd    *exec.Cmd
	stdout *os.File
	stderr *os.File

	closeOnce sync.Once

	tailMu sync.Mutex
	tail   []string
}

// Stdout returns the read end of the process's stdout.
func (p *Process) Stdout() io.Reader { return p.stdout }

// Stderr returns the read end of the process's stderr.
func (p *Process) Stderr() io.Reader { return p.stderr }

// Wait blocks until the process exits. It must be called exactly once.
// Signal deaths report 128+signal like a shell would.
func (p *Process) Wait() (int, error) {
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return -1, err
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal()), err
	}
	return exitErr.ExitCode(), err
}

// Terminate asks the whole process group to exit.
func (p *Process) Terminate() error {
	if err := terminateProcessGroup(p.Pid); err != nil {
		return p.cmd.Process.Signal(os.Interrupt)
	}
	return nil
}

// Kill force-kills the whole process group.
func (p *Process) Kill() error {
	if err := killProcessGroup(p.Pid); err != nil {
		return p.cmd.Process.Kill()
	}
	return nil
}

// CloseOutput closes the read ends of both pipes, unblocking any reader.
func (p *Process) CloseOutput() {
	p.closeOnce.Do(func() {
		_ = p.stdout.Close()
		_ = p.stderr.Close()
	})
}

var ansiEscapeRegex = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AppendStderr records one stderr line in the bounded tail.
func (p *Process) AppendStderr(line string) {
	line = strings.TrimSpace(ansiEscapeRegex.ReplaceAllString(line, ""))
	if line == "" {
		return
	}
	p.tailMu.Lock()
	defer p.tailMu.Unlock()
	if len(p.tail) >= stderrTailLines {
		p.tail = p.tail[1:]
	}
	p.tail = append(p.tail, line)
}

// StderrTail returns the most recent stderr lines.
func (p *Process) StderrTail() []string {
	p.tailMu.Lock()
	defer p.tailMu.Unlock()
	return append([]string{}, p.tail...)
}
