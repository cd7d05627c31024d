package streams

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kandev/agentfleet/internal/agent/agents"
	"github.com/kandev/agentfleet/internal/common/logger"
	"go.uber.org/zap"
)

// MaxUnitSize bounds one protocol unit. Longer lines are dropped whole.
const MaxUnitSize = 8 << 20

// ErrParse marks a unit that could not be classified. It never leaves the
// parser; callers only see it through ParseUnit in tests and logs.
var ErrParse = errors.New("unparseable output unit")

// Parser frames one process's stdout into lines and classifies each line.
// A Parser is not safe for concurrent use; each process gets its own.
type Parser struct {
	agentType agents.Type
	table     *Table
	logger    *logger.Logger

	buf      []byte
	skipping bool // inside an oversized line, discarding until newline

	// pending joins consecutive message fragments into one message.
	pending strings.Builder
}

// NewParser creates a parser for agent type t.
func NewParser(t agents.Type, log *logger.Logger) (*Parser, error) {
	tbl, ok := TableFor(t)
	if !ok {
		return nil, fmt.Errorf("no output table for agent type %q", t)
	}
	return &Parser{
		agentType: t,
		table:     tbl,
		logger:    log.WithFields(zap.String("component", "stream-parser"), zap.String("agent_type", string(t))),
	}, nil
}

// Feed consumes a chunk of output and returns events for every unit the chunk
// completed. A trailing partial line is held until a later Feed or Flush.
func (p *Parser) Feed(chunk []byte) []Event {
	var out []Event
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			p.hold(chunk)
			break
		}
		if p.skipping {
			p.skipping = false
		} else {
			p.hold(chunk[:i])
			if !p.skipping {
				out = append(out, p.unit(p.buf)...)
			} else {
				p.skipping = false
			}
		}
		p.buf = p.buf[:0]
		chunk = chunk[i+1:]
	}
	return out
}

// Flush classifies any unterminated final unit and emits a message still
// being assembled from fragments.
func (p *Parser) Flush() []Event {
	var out []Event
	if !p.skipping && len(p.buf) > 0 {
		out = p.unit(p.buf)
	}
	p.buf, p.skipping = p.buf[:0], false
	return append(out, p.joinPending()...)
}

func (p *Parser) hold(b []byte) {
	if p.skipping {
		return
	}
	if len(p.buf)+len(b) > MaxUnitSize {
		p.logger.Warn("dropping oversized output unit", zap.Int("limit", MaxUnitSize))
		p.buf = p.buf[:0]
		p.skipping = true
		return
	}
	p.buf = append(p.buf, b...)
}

func (p *Parser) unit(line []byte) []Event {
	evs, err := p.ParseUnit(line)
	if err != nil {
		p.logger.Debug("skipping output unit", zap.Error(err), zap.Int("bytes", len(line)))
		return nil
	}
	if len(bytes.TrimSpace(line)) == 0 {
		return evs
	}
	if len(evs) == 1 && evs[0].Fragment {
		if p.pending.Len()+len(evs[0].Value) <= MaxUnitSize {
			p.pending.WriteString(evs[0].Value)
		}
		return nil
	}
	// Any other recognized unit ends the message being streamed.
	return append(p.joinPending(), evs...)
}

func (p *Parser) joinPending() []Event {
	if p.pending.Len() == 0 {
		return nil
	}
	text := strings.TrimSpace(p.pending.String())
	p.pending.Reset()
	if text == "" {
		return nil
	}
	return []Event{{Kind: KindMessage, Value: text}}
}

// ParseUnit classifies one complete unit. Blank lines and recognized units
// that carry nothing of interest return no events and no error.
func (p *Parser) ParseUnit(line []byte) ([]Event, error) {
	line = bytes.TrimSpace(bytes.TrimSuffix(line, []byte("\r")))
	if len(line) == 0 {
		return nil, nil
	}
	if line[0] != '{' {
		if evs := p.table.classifyText(string(line)); evs != nil {
			return evs, nil
		}
		return nil, fmt.Errorf("%w: not a JSON object", ErrParse)
	}

	var v map[string]any
	if err := json.Unmarshal(line, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	evs, _ := apply(p.table.Rules, v)
	return evs, nil
}
