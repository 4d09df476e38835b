package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/presenced/internal/activity"
	"github.com/sweeney/presenced/internal/presence"
)

// Threshold is an idle threshold. Bare numbers are milliseconds; strings are
// Go durations ("2s", "1m30s").
type Threshold time.Duration

// Duration returns t as a time.Duration.
func (t Threshold) Duration() time.Duration {
	return time.Duration(t)
}

// UnmarshalYAML accepts a scalar number or duration string.
func (t *Threshold) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: threshold must be a number of milliseconds or a duration", node.Line)
	}
	if node.Tag == "!!null" {
		*t = 0
		return nil
	}
	if err := t.parse(node.Value); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	return nil
}

// UnmarshalTOML accepts an integer, float or duration string.
func (t *Threshold) UnmarshalTOML(v any) error {
	switch x := v.(type) {
	case int64:
		*t = Threshold(time.Duration(x) * time.Millisecond)
	case float64:
		*t = Threshold(time.Duration(x * float64(time.Millisecond)))
	case string:
		return t.parse(x)
	default:
		return fmt.Errorf("threshold: unsupported value %v (%T)", v, v)
	}
	return nil
}

func (t *Threshold) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*t = 0
		return nil
	}
	if ms, err := strconv.ParseFloat(s, 64); err == nil {
		*t = Threshold(time.Duration(ms * float64(time.Millisecond)))
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("threshold %q: %w", s, err)
	}
	*t = Threshold(d)
	return nil
}

// StateDef is one state as written in a config file.
type StateDef struct {
	Name    string    `yaml:"name" toml:"name"`
	Enter   Threshold `yaml:"enter" toml:"enter"`
	Initial bool      `yaml:"initial" toml:"initial"`
	Accept  string    `yaml:"accept" toml:"accept"`
	Text    string    `yaml:"text" toml:"text"`
}

// StateList is the ordered list of states.
//
// In YAML it is either a list of StateDef or a mapping from state name to a
// StateDef (without name) or a bare threshold:
//
//	states:
//	  ACTIVE: 0
//	  INACTIVE: {enter: 1000, text: "Are you there?"}
//
// Mapping order is declaration order. TOML uses [[states]] tables.
type StateList []StateDef

// UnmarshalYAML decodes the list or mapping form.
func (l *StateList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var defs []StateDef
		if err := node.Decode(&defs); err != nil {
			return err
		}
		*l = defs
		return nil

	case yaml.MappingNode:
		defs := make([]StateDef, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i], node.Content[i+1]
			var def StateDef
			switch val.Kind {
			case yaml.ScalarNode:
				if err := val.Decode(&def.Enter); err != nil {
					return fmt.Errorf("state %q: %w", key.Value, err)
				}
			case yaml.MappingNode:
				if err := val.Decode(&def); err != nil {
					return fmt.Errorf("state %q: %w", key.Value, err)
				}
			default:
				return fmt.Errorf("line %d: state %q: expected a threshold or a mapping", val.Line, key.Value)
			}
			def.Name = key.Value
			defs = append(defs, def)
		}
		*l = defs
		return nil

	default:
		return fmt.Errorf("line %d: states must be a mapping or a list", node.Line)
	}
}

// Definitions converts the list into engine definitions.
func (l StateList) Definitions() ([]presence.Definition, error) {
	defs := make([]presence.Definition, 0, len(l))
	for _, s := range l {
		accept, err := activity.ParseList(s.Accept)
		if err != nil {
			return nil, fmt.Errorf("state %q: accept: %w", s.Name, err)
		}
		defs = append(defs, presence.Definition{
			Name:    s.Name,
			Enter:   s.Enter.Duration(),
			Initial: s.Initial,
			Accept:  accept,
			Text:    s.Text,
		})
	}
	return defs, nil
}
