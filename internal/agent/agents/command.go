package agents

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Placeholders substituted inside profile fragments.
const (
	placeholderModel  = "{model}"
	placeholderPrompt = "{prompt}"
)

// endOfOptions keeps a positional prompt such as "--version" from being
// parsed as a flag by the vendor CLI.
const endOfOptions = "--"

// Command is a fully built argument vector; element zero is the binary.
type Command []string

// Args returns the vector as a plain slice.
func (c Command) Args() []string { return []string(c) }

// Binary returns the executable name or path.
func (c Command) Binary() string {
	if len(c) == 0 {
		return ""
	}
	return c[0]
}

func (c Command) IsEmpty() bool { return len(c) == 0 }

// String renders the vector for logs. The prompt is not quoted.
func (c Command) String() string { return strings.Join(c, " ") }

// Param is a profile fragment of pre-split CLI arguments.
type Param []string

func (p Param) Args() []string { return []string(p) }
func (p Param) IsEmpty() bool  { return len(p) == 0 }

// UnmarshalYAML accepts a list of strings or one whitespace-separated string.
func (p *Param) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*p = strings.Fields(node.Value)
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*p = items
	default:
		return fmt.Errorf("line %d: agent flag must be a string or a list of strings", node.Line)
	}
	return nil
}

// substitute copies the fragment, replacing placeholder with value.
func (p Param) substitute(placeholder, value string) []string {
	out := make([]string, len(p))
	for i, arg := range p {
		out[i] = strings.ReplaceAll(arg, placeholder, value)
	}
	return out
}

// assemble builds the argv for one spawn. The model fragment is skipped when
// no model is requested. An empty prompt fragment makes the prompt a trailing
// positional argument after "--".
func assemble(p Profile, opts CommandOptions) Command {
	argv := Command{p.Binary}
	argv = append(argv, p.Args...)
	argv = append(argv, p.Modes[opts.Mode]...)
	if opts.Model != "" && !p.Model.IsEmpty() {
		argv = append(argv, p.Model.substitute(placeholderModel, opts.Model)...)
	}
	switch {
	case opts.Prompt == "":
	case p.Prompt.IsEmpty():
		argv = append(argv, endOfOptions, opts.Prompt)
	default:
		argv = append(argv, p.Prompt.substitute(placeholderPrompt, opts.Prompt)...)
	}
	return argv
}
