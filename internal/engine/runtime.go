// Package engine runs the reconciliation loop that keeps physical switch
// outputs aligned with their schedules and input overrides.
package engine

import (
	"fmt"
	"time"

	"github.com/tmacey/switchd/internal/config"
	"github.com/tmacey/switchd/internal/mapping"
	"github.com/tmacey/switchd/internal/schedule"
	"github.com/tmacey/switchd/internal/shelly"
)

// Runtime bundles everything derived from one validated configuration:
// compiled schedules, the output->schedule and output->input mappings, the
// solar evaluator, and the device registry. A reload builds a fresh Runtime
// and swaps it in between passes; a reload that fails leaves the old one
// running.
type Runtime struct {
	Cfg  *config.Config
	Defs map[string]*schedule.Def
	Map  *mapping.Table
	Eval *schedule.Evaluator
	Dev  *shelly.Control
}

// BuildRuntime compiles and cross-checks a configuration into a Runtime.
// Any error it returns is fatal for this configuration.
func BuildRuntime(cfg *config.Config) (*Runtime, error) {
	tz, err := time.LoadLocation(cfg.Location.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", config.ErrConfiguration, cfg.Location.Timezone)
	}

	lat, lon, err := cfg.Location.Coordinates()
	if err != nil {
		return nil, err
	}

	defs, err := schedule.Compile(cfg.Schedules)
	if err != nil {
		return nil, err
	}

	table, err := mapping.Build(cfg)
	if err != nil {
		return nil, err
	}

	return &Runtime{
		Cfg:  cfg,
		Defs: defs,
		Map:  table,
		Eval: schedule.NewEvaluator(lat, lon, tz),
		Dev:  shelly.NewControl(cfg.ShellyDevices),
	}, nil
}
