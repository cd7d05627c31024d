package streams

import (
	"regexp"
	"strings"
)

// Table maps one agent type's output protocol onto canonical events.
type Table struct {
	// Rules are tried in order against each decoded JSON unit; the first
	// matching rule produces the unit's events.
	Rules []Rule
	// Markers classify units that are not JSON objects.
	Markers []Marker
}

// Rule matches a JSON object and extracts events from it.
//
// A rule does exactly one of the following, checked in this order:
//   - Each: fan out over the array at Each and apply Rules to every element
//   - ToolName/ToolKey: classify a tool call through Tools
//   - Kind: emit a single event of a fixed kind with its value from Fields
type Rule struct {
	// Match holds dotted paths that must equal the given string values.
	Match map[string]string

	Each  string
	Rules []Rule

	// ToolName is the path of the tool name. ToolKey is the path of an
	// object whose single key is the tool name and whose value holds the call.
	ToolName string
	ToolKey  string
	// Args is the path of the arguments, relative to the unit for ToolName
	// and relative to the keyed value for ToolKey.
	Args  string
	Tools map[string]Tool

	Kind   Kind
	Fields []string
	// Delta is the path of a boolean that marks a message unit as a fragment.
	Delta string
}

// Tool classifies one vendor tool name.
type Tool struct {
	Kind Kind
	// Fields are argument paths tried in order for the event value.
	Fields []string
}

// Marker classifies a plain-text unit. The first capture group is the value.
type Marker struct {
	Pattern *regexp.Regexp
	Kind    Kind
}

func (r *Rule) matches(v any) bool {
	for path, want := range r.Match {
		if lookupString(v, path) != want {
			return false
		}
	}
	return true
}

// apply returns the events for v, or nil if no rule in rules matches.
func apply(rules []Rule, v any) ([]Event, bool) {
	for i := range rules {
		r := &rules[i]
		if !r.matches(v) {
			continue
		}
		return r.extract(v), true
	}
	return nil, false
}

func (r *Rule) extract(v any) []Event {
	switch {
	case r.Each != "":
		var out []Event
		for _, elem := range lookupSlice(v, r.Each) {
			evs, _ := apply(r.Rules, elem)
			out = append(out, evs...)
		}
		return out
	case r.ToolName != "" || r.ToolKey != "":
		ev, ok := r.tool(v)
		if !ok {
			return nil
		}
		return []Event{ev}
	case r.Kind != KindUnknown:
		value := firstString(v, r.Fields)
		if r.Kind == KindMessage && r.isDelta(v) {
			if value == "" {
				return nil
			}
			return []Event{{Kind: KindMessage, Value: value, Fragment: true}}
		}
		if r.Kind == KindMessage && strings.TrimSpace(value) == "" {
			return nil
		}
		return []Event{{Kind: r.Kind, Value: value}}
	}
	return nil
}

func (r *Rule) isDelta(v any) bool {
	if r.Delta == "" {
		return false
	}
	flag, _ := lookup(v, r.Delta)
	b, _ := flag.(bool)
	return b
}

func (r *Rule) tool(v any) (Event, bool) {
	var name string
	var args any
	if r.ToolKey != "" {
		obj := lookupMap(v, r.ToolKey)
		if len(obj) != 1 {
			return Event{}, false
		}
		for k, val := range obj {
			name, args = k, val
		}
		if r.Args != "" {
			args, _ = lookup(args, r.Args)
		}
	} else {
		name = lookupString(v, r.ToolName)
		if name == "" {
			return Event{}, false
		}
		args, _ = lookup(v, r.Args)
	}

	spec, ok := r.Tools[name]
	if !ok {
		spec, ok = r.Tools[strings.ToLower(name)]
	}
	if !ok {
		return Event{Kind: KindOtherTool, Tool: name}, true
	}
	return Event{Kind: spec.Kind, Value: firstString(args, spec.Fields), Tool: name}, true
}

func (t *Table) classifyText(line string) []Event {
	for _, m := range t.Markers {
		sub := m.Pattern.FindStringSubmatch(line)
		if sub == nil {
			continue
		}
		value := ""
		if len(sub) > 1 {
			value = strings.TrimSpace(sub[1])
		}
		return []Event{{Kind: m.Kind, Value: value}}
	}
	return nil
}
