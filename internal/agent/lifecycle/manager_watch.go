package lifecycle

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/agentfleet/internal/agent/streams"
	"github.com/kandev/agentfleet/internal/audit"
	"github.com/kandev/agentfleet/internal/common/logger"
	"github.com/kandev/agentfleet/internal/events"
)

const readChunkSize = 32 * 1024

// watch pumps the agent's output into its record and performs the terminal
// transition once the process has exited and its output is drained.
func (m *Manager) watch(la *liveAgent, parser *streams.Parser, log *logger.Logger) {
	defer m.wg.Done()
	defer close(la.done)

	var outLog io.WriteCloser
	if m.cfg.SessionsDir != "" {
		f, err := audit.OpenOutputLog(m.cfg.SessionsDir, la.rec.ID)
		if err != nil {
			log.Warn("failed to open output log", zap.Error(err))
		} else {
			outLog = f
		}
	}

	stdoutDone := make(chan struct{})
	go func() {
		defer close(stdoutDone)
		m.pumpStdout(la, parser, outLog, log)
	}()
	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		m.pumpStderr(la, log)
	}()

	code, waitErr := la.proc.Wait()
	la.rec.markExited()

	// A grandchild can keep the pipes open after the agent itself exits.
	timer := time.NewTimer(m.cfg.DrainTimeout)
	select {
	case <-stdoutDone:
	case <-timer.C:
		log.Debug("output not drained after exit, closing pipes")
	}
	timer.Stop()
	la.proc.CloseOutput()
	<-stdoutDone
	<-stderrDone

	if outLog != nil {
		if err := outLog.Close(); err != nil {
			log.Debug("failed to close output log", zap.Error(err))
		}
	}

	m.finalize(la, code, waitErr, log)
}

func (m *Manager) pumpStdout(la *liveAgent, parser *streams.Parser, outLog io.Writer, log *logger.Logger) {
	buf := make([]byte, readChunkSize)
	r := la.proc.Stdout()
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if outLog != nil {
				if _, werr := outLog.Write(chunk); werr != nil {
					log.Debug("output log write failed", zap.Error(werr))
					outLog = nil
				}
			}
			for _, ev := range parser.Feed(chunk) {
				la.rec.Apply(ev)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				log.Debug("stdout read ended", zap.Error(err))
			}
			break
		}
	}
	for _, ev := range parser.Flush() {
		la.rec.Apply(ev)
	}
}

func (m *Manager) pumpStderr(la *liveAgent, log *logger.Logger) {
	scanner := bufio.NewScanner(la.proc.Stderr())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		la.proc.AppendStderr(line)
		log.Debug("agent stderr", zap.String("line", line))
	}
}

// finalize makes the single terminal transition and frees the agent's slots
// in the same critical section, so a caller that observes the terminal
// status can immediately use the capacity.
func (m *Manager) finalize(la *liveAgent, code int, waitErr error, log *logger.Logger) {
	m.mu.Lock()
	status, changed := la.rec.finish(code, waitErr, m.now())
	if changed {
		m.releaseLocked(la.rec.Spec.TaskName)
	}
	delete(m.live, la.rec.ID)
	m.mu.Unlock()

	if !changed {
		return
	}

	snap := la.rec.Snapshot()
	tail := la.proc.StderrTail()
	fields := []zap.Field{
		zap.String("status", status.String()),
		zap.Int("exit_code", code),
		zap.Int("tool_count", snap.ToolCount),
		zap.Duration("duration", snap.Duration(m.now())),
	}
	if status == StatusFailed {
		if waitErr != nil {
			fields = append(fields, zap.Error(waitErr))
		}
		fields = append(fields, zap.Strings("stderr_tail", tail))
		log.Warn("agent failed", fields...)
	} else {
		log.Info("agent finished", fields...)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.recorder.RecordFinish(ctx, runFromSnapshot(snap, tail)); err != nil {
		log.Warn("failed to record finish", zap.Error(err))
	}

	switch status {
	case StatusCompleted:
		m.publish(events.AgentCompleted, snap)
	case StatusStopped:
		m.publish(events.AgentStopped, snap)
	default:
		m.publish(events.AgentFailed, snap)
	}

	m.prune()
}
