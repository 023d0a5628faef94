// Package mapping flattens the Default / Switch / Switch Group rule tables
// into per-output assignments. Precedence: a Switch rule beats a Switch
// Group rule beats the Default. Conflicts between equally specific rules
// fail the build, so evaluation never faces ambiguity.
package mapping

import (
	"fmt"
	"strings"

	"github.com/tmacey/switchd/internal/config"
)

// Table holds the resolved assignments for every configured output.
type Table struct {
	schedules map[string]string // output -> schedule name
	inputs    map[string]string // output -> override input name
}

// Build resolves both rule tables against the device topology.
func Build(cfg *config.Config) (*Table, error) {
	outputs := cfg.Outputs()
	groups := cfg.Groups()

	schedules, err := resolve("LightingControl", outputs, groups, controlEntries(cfg.LightingControl))
	if err != nil {
		return nil, err
	}
	inputs, err := resolve("InputControls", outputs, groups, inputEntries(cfg.InputControls))
	if err != nil {
		return nil, err
	}

	return &Table{schedules: schedules, inputs: inputs}, nil
}

// ScheduleFor returns the schedule governing the output, if any.
func (t *Table) ScheduleFor(output string) (string, bool) {
	name, ok := t.schedules[output]
	return name, ok
}

// InputFor returns the override input mapped to the output, if any.
func (t *Table) InputFor(output string) (string, bool) {
	name, ok := t.inputs[output]
	return name, ok
}

// entry is one rule from either table, normalized to (kind, target, value).
type entry struct {
	kind   string
	target string
	value  string
}

func controlEntries(rules []config.ControlRule) []entry {
	entries := make([]entry, 0, len(rules))
	for _, r := range rules {
		entries = append(entries, entry{kind: strings.ToLower(r.Type), target: r.Target, value: r.Schedule})
	}
	return entries
}

func inputEntries(rules []config.InputRule) []entry {
	entries := make([]entry, 0, len(rules))
	for _, r := range rules {
		entries = append(entries, entry{kind: strings.ToLower(r.Type), target: r.Target, value: r.Input})
	}
	return entries
}

// resolve applies precedence and reports ambiguity as a load error.
func resolve(table string, outputs []config.Output, groups map[string][]string, entries []entry) (map[string]string, error) {
	bySwitch := make(map[string]string)
	byGroup := make(map[string]string)
	defaultValue := ""
	haveDefault := false

	for _, e := range entries {
		switch e.kind {
		case config.RuleDefault:
			if haveDefault {
				return nil, fmt.Errorf("%w: ambiguous mapping: %s has more than one Default rule", config.ErrConfiguration, table)
			}
			defaultValue = e.value
			haveDefault = true

		case config.RuleSwitch:
			if prev, ok := bySwitch[e.target]; ok {
				return nil, fmt.Errorf("%w: ambiguous mapping: switch %q assigned both %q and %q in %s",
					config.ErrConfiguration, e.target, prev, e.value, table)
			}
			bySwitch[e.target] = e.value

		case config.RuleSwitchGroup:
			if prev, ok := byGroup[e.target]; ok {
				return nil, fmt.Errorf("%w: ambiguous mapping: switch group %q assigned both %q and %q in %s",
					config.ErrConfiguration, e.target, prev, e.value, table)
			}
			byGroup[e.target] = e.value

		default:
			return nil, fmt.Errorf("%w: unknown rule type %q in %s", config.ErrConfiguration, e.kind, table)
		}
	}

	// Group rules must name a group some output belongs to.
	for group := range byGroup {
		if _, ok := groups[group]; !ok {
			return nil, fmt.Errorf("%w: %s rule references unknown switch group %q", config.ErrConfiguration, table, group)
		}
	}

	assigned := make(map[string]string, len(outputs))
	for _, out := range outputs {
		if v, ok := bySwitch[out.Name]; ok {
			assigned[out.Name] = v
			continue
		}
		if out.Group != "" {
			if v, ok := byGroup[out.Group]; ok {
				assigned[out.Name] = v
				continue
			}
		}
		if haveDefault {
			assigned[out.Name] = defaultValue
		}
	}

	return assigned, nil
}
