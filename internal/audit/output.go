package audit

import (
	"fmt"
	"os"
	"path/filepath"
)

// OpenOutputLog creates <sessionsDir>/<agentID>.log for the agent's raw stdout.
func OpenOutputLog(sessionsDir, agentID string) (*os.File, error) {
	if err := os.MkdirAll(sessionsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	f, err := os.OpenFile(OutputLogPath(sessionsDir, agentID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output log: %w", err)
	}
	return f, nil
}

// OutputLogPath returns where the raw output of agentID is written.
func OutputLogPath(sessionsDir, agentID string) string {
	return filepath.Join(sessionsDir, agentID+".log")
}
