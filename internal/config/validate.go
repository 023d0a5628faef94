package config

import (
	"fmt"
	"strings"
	"time"
)

// validate enforces semantic rules the structural schema cannot express:
// uniqueness, cross-references, rule shapes, and date ranges. Time
// expressions themselves are parsed by the schedule compiler.
func (cfg *Config) validate() error {
	if _, err := time.LoadLocation(cfg.Location.Timezone); err != nil {
		return fmt.Errorf("%w: unknown timezone %q", ErrConfiguration, cfg.Location.Timezone)
	}
	if _, _, err := cfg.Location.Coordinates(); err != nil {
		return err
	}

	if err := cfg.validateDevices(); err != nil {
		return err
	}
	if err := cfg.validateSchedules(); err != nil {
		return err
	}
	if err := cfg.validateControlRules(); err != nil {
		return err
	}
	return cfg.validateInputRules()
}

func (cfg *Config) validateDevices() error {
	if len(cfg.ShellyDevices.Devices) == 0 {
		return fmt.Errorf("%w: no devices configured", ErrConfiguration)
	}

	deviceNames := make(map[string]bool)
	outputNames := make(map[string]bool)
	inputNames := make(map[string]bool)

	for _, dev := range cfg.ShellyDevices.Devices {
		if dev.Name == "" {
			return fmt.Errorf("%w: device with model %q has no name", ErrConfiguration, dev.Model)
		}
		if deviceNames[dev.Name] {
			return fmt.Errorf("%w: duplicate device name %q", ErrConfiguration, dev.Name)
		}
		deviceNames[dev.Name] = true

		if !dev.Simulate && dev.Hostname == "" {
			return fmt.Errorf("%w: device %q has no hostname and is not simulated", ErrConfiguration, dev.Name)
		}

		for _, out := range dev.Outputs {
			if out.Name == "" {
				return fmt.Errorf("%w: device %q has an unnamed output", ErrConfiguration, dev.Name)
			}
			if outputNames[out.Name] {
				return fmt.Errorf("%w: duplicate output name %q", ErrConfiguration, out.Name)
			}
			outputNames[out.Name] = true
		}
		for _, in := range dev.Inputs {
			if in.Name == "" {
				return fmt.Errorf("%w: device %q has an unnamed input", ErrConfiguration, dev.Name)
			}
			if inputNames[in.Name] {
				return fmt.Errorf("%w: duplicate input name %q", ErrConfiguration, in.Name)
			}
			inputNames[in.Name] = true
		}
	}

	if len(outputNames) == 0 {
		return fmt.Errorf("%w: no switch outputs configured", ErrConfiguration)
	}
	return nil
}

func (cfg *Config) validateSchedules() error {
	seen := make(map[string]bool)
	for _, sched := range cfg.Schedules {
		if sched.Name == "" {
			return fmt.Errorf("%w: schedule with no name", ErrConfiguration)
		}
		if seen[sched.Name] {
			return fmt.Errorf("%w: duplicate schedule name %q", ErrConfiguration, sched.Name)
		}
		seen[sched.Name] = true

		if len(sched.Events) == 0 {
			return fmt.Errorf("%w: schedule %q has no events", ErrConfiguration, sched.Name)
		}
		for i, ev := range sched.Events {
			if ev.RandomOffset < 0 {
				return fmt.Errorf("%w: schedule %q event %d: RandomOffset must be >= 0", ErrConfiguration, sched.Name, i)
			}
			for _, rng := range ev.DatesOff {
				if rng.StartDate.IsZero() || rng.EndDate.IsZero() {
					return fmt.Errorf("%w: schedule %q event %d: DatesOff range missing StartDate or EndDate", ErrConfiguration, sched.Name, i)
				}
				if rng.EndDate.Before(rng.StartDate) {
					return fmt.Errorf("%w: schedule %q event %d: DatesOff range %s..%s is inverted",
						ErrConfiguration, sched.Name, i, rng.StartDate, rng.EndDate)
				}
			}
		}
	}
	return nil
}

func (cfg *Config) validateControlRules() error {
	outputs := make(map[string]bool)
	for _, out := range cfg.Outputs() {
		outputs[out.Name] = true
	}
	groups := cfg.Groups()

	defaults := 0
	for _, rule := range cfg.LightingControl {
		kind := strings.ToLower(rule.Type)
		switch kind {
		case RuleDefault:
			defaults++
			if defaults > 1 {
				return fmt.Errorf("%w: more than one Default rule in LightingControl", ErrConfiguration)
			}
		case RuleSwitch:
			if !outputs[rule.Target] {
				return fmt.Errorf("%w: LightingControl rule references unknown switch %q", ErrConfiguration, rule.Target)
			}
		case RuleSwitchGroup:
			if _, ok := groups[rule.Target]; !ok {
				return fmt.Errorf("%w: LightingControl rule references unknown switch group %q", ErrConfiguration, rule.Target)
			}
		default:
			return fmt.Errorf("%w: unknown LightingControl rule type %q", ErrConfiguration, rule.Type)
		}

		if cfg.ScheduleByName(rule.Schedule) == nil {
			return fmt.Errorf("%w: LightingControl rule references unknown schedule %q", ErrConfiguration, rule.Schedule)
		}
	}
	return nil
}

func (cfg *Config) validateInputRules() error {
	outputs := make(map[string]bool)
	for _, out := range cfg.Outputs() {
		outputs[out.Name] = true
	}
	inputs := make(map[string]bool)
	for _, in := range cfg.Inputs() {
		inputs[in.Name] = true
	}
	groups := cfg.Groups()

	defaults := 0
	for _, rule := range cfg.InputControls {
		kind := strings.ToLower(rule.Type)
		switch kind {
		case RuleDefault:
			defaults++
			if defaults > 1 {
				return fmt.Errorf("%w: more than one Default rule in InputControls", ErrConfiguration)
			}
		case RuleSwitch:
			if !outputs[rule.Target] {
				return fmt.Errorf("%w: InputControls rule references unknown switch %q", ErrConfiguration, rule.Target)
			}
		case RuleSwitchGroup:
			if _, ok := groups[rule.Target]; !ok {
				return fmt.Errorf("%w: InputControls rule references unknown switch group %q", ErrConfiguration, rule.Target)
			}
		default:
			return fmt.Errorf("%w: unknown InputControls rule type %q", ErrConfiguration, rule.Type)
		}

		if !inputs[rule.Input] {
			return fmt.Errorf("%w: InputControls rule references unknown input %q", ErrConfiguration, rule.Input)
		}
	}
	return nil
}
