package agents

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed profiles.yaml
var defaultProfiles []byte

// Profile is the invocation table for one agent type.
type Profile struct {
	DisplayName string            `yaml:"displayName"`
	Binary      string            `yaml:"binary"`
	Args        Param             `yaml:"args"`
	Modes       map[Mode]Param    `yaml:"modes"`
	Model       Param             `yaml:"model"`
	Prompt      Param             `yaml:"prompt"`
	Env         map[string]string `yaml:"env"`
}

// CommandOptions are the per-spawn inputs to BuildCommand.
type CommandOptions struct {
	Prompt string
	Mode   Mode
	Model  string
}

type profileFile struct {
	Agents map[Type]Profile `yaml:"agents"`
}

// Registry resolves agent types to their invocation profiles.
type Registry struct {
	mu       sync.RWMutex
	profiles map[Type]Profile
}

// NewRegistry returns a registry loaded from the built-in profiles,
// overlaid with overridePath when it is non-empty.
func NewRegistry(overridePath string) (*Registry, error) {
	r := &Registry{profiles: make(map[Type]Profile, len(AllTypes))}
	if err := r.merge(defaultProfiles, false); err != nil {
		return nil, fmt.Errorf("built-in agent profiles: %w", err)
	}
	for _, t := range AllTypes {
		if _, ok := r.profiles[t]; !ok {
			return nil, fmt.Errorf("built-in agent profiles: missing %s", t)
		}
	}
	if overridePath == "" {
		return r, nil
	}
	data, err := os.ReadFile(overridePath)
	if err != nil {
		return nil, fmt.Errorf("read agent profiles: %w", err)
	}
	if err := r.merge(data, true); err != nil {
		return nil, fmt.Errorf("agent profiles %s: %w", overridePath, err)
	}
	return r, nil
}

// merge overlays profiles from data. In overlay mode, only fields present in
// the file replace the built-in values.
func (r *Registry) merge(data []byte, overlay bool) error {
	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for t, p := range f.Agents {
		if _, err := ParseType(string(t)); err != nil {
			return err
		}
		if !overlay {
			r.profiles[t] = p
			continue
		}
		r.profiles[t] = overlayProfile(r.profiles[t], p)
	}
	return nil
}

func overlayProfile(base, over Profile) Profile {
	if over.DisplayName != "" {
		base.DisplayName = over.DisplayName
	}
	if over.Binary != "" {
		base.Binary = over.Binary
	}
	if !over.Args.IsEmpty() {
		base.Args = over.Args
	}
	if !over.Model.IsEmpty() {
		base.Model = over.Model
	}
	if !over.Prompt.IsEmpty() {
		base.Prompt = over.Prompt
	}
	if over.Modes != nil {
		modes := make(map[Mode]Param, len(base.Modes)+len(over.Modes))
		for m, p := range base.Modes {
			modes[m] = p
		}
		for m, p := range over.Modes {
			modes[m] = p
		}
		base.Modes = modes
	}
	if over.Env != nil {
		env := make(map[string]string, len(base.Env)+len(over.Env))
		for k, v := range base.Env {
			env[k] = v
		}
		for k, v := range over.Env {
			env[k] = v
		}
		base.Env = env
	}
	return base
}

// Get returns the profile for t.
func (r *Registry) Get(t Type) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[t]
	return p, ok
}

// Set replaces the profile for t.
func (r *Registry) Set(t Type, p Profile) {
	r.mu.Lock()
	r.profiles[t] = p
	r.mu.Unlock()
}

// BuildCommand assembles the argument vector for one spawn.
func (p Profile) BuildCommand(opts CommandOptions) Command {
	return assemble(p, opts)
}

// Environ returns the profile's extra variables as KEY=VALUE pairs, sorted.
func (p Profile) Environ() []string {
	if len(p.Env) == 0 {
		return nil
	}
	out := make([]string, 0, len(p.Env))
	for k, v := range p.Env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
