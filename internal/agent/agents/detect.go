package agents

import (
	"context"
	"os/exec"
)

// DiscoveryResult is the outcome of probing for an agent CLI.
type DiscoveryResult struct {
	Available   bool   `json:"available"`
	MatchedPath string `json:"matched_path,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// DetectOption is a detection strategy. Returns (found, matchedPath, err).
type DetectOption func(ctx context.Context) (bool, string, error)

// WithCommand checks if a command resolves on PATH. Paths containing a
// separator are checked directly.
func WithCommand(name string) DetectOption {
	return func(ctx context.Context) (bool, string, error) {
		path, err := exec.LookPath(name)
		if err != nil {
			return false, "", nil
		}
		return true, path, nil
	}
}

// Detect runs options in order and returns the first match.
func Detect(ctx context.Context, opts ...DetectOption) (*DiscoveryResult, error) {
	for _, opt := range opts {
		found, matched, err := opt(ctx)
		if err != nil {
			return &DiscoveryResult{Available: false, Detail: err.Error()}, err
		}
		if found {
			return &DiscoveryResult{Available: true, MatchedPath: matched}, nil
		}
	}
	return &DiscoveryResult{Available: false}, nil
}

// CheckCliAvailable resolves the binary for t. The string is the resolved
// path when available and a human-readable reason otherwise.
func (r *Registry) CheckCliAvailable(ctx context.Context, t Type) (bool, string) {
	p, ok := r.Get(t)
	if !ok {
		return false, "unknown agent type " + string(t)
	}
	res, err := Detect(ctx, WithCommand(p.Binary))
	if err != nil {
		return false, err.Error()
	}
	if !res.Available {
		return false, p.Binary + " not found in PATH"
	}
	return true, res.MatchedPath
}
