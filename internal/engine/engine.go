package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tmacey/switchd/internal/input"
	"github.com/tmacey/switchd/internal/state"
)

// Device commands are throttled globally so a burst of schedule edges does
// not flood the local network.
const (
	commandRate  = rate.Limit(5)
	commandBurst = 2
)

// OutputStatus is the reconciled view of one switch output after a pass.
type OutputStatus struct {
	Name     string `json:"name"`
	Device   string `json:"device"`
	Group    string `json:"group,omitempty"`
	Schedule string `json:"schedule,omitempty"`
	Input    string `json:"input,omitempty"`
	Desired  bool   `json:"desired"`
	Actual   bool   `json:"actual"`
	Online   bool   `json:"online"`
	ForcedOn bool   `json:"forced_on"`
}

// Snapshot is the result of one reconciliation pass.
type Snapshot struct {
	At       time.Time      `json:"at"`
	Outputs  []OutputStatus `json:"outputs"`
	Commands int            `json:"commands"`
	Failures int            `json:"failures"`
}

// Engine owns the reconciliation loop. Passes are strictly serialized: both
// the interval tick and external triggers funnel into the one loop goroutine.
// Triggers arriving during a pass coalesce into at most one follow-up pass.
type Engine struct {
	store   *state.Store
	inputs  *input.Store
	rt      atomic.Pointer[Runtime]
	trigger chan struct{}
	limiter *rate.Limiter

	// OnPass, when set before Run, is called after every pass with its
	// snapshot. Used for the status page push and the heartbeat ping.
	OnPass func(Snapshot)

	now func() time.Time

	mu   sync.RWMutex
	last Snapshot
}

// New creates an engine around an initial runtime.
func New(rt *Runtime, store *state.Store, inputs *input.Store) *Engine {
	e := &Engine{
		store:   store,
		inputs:  inputs,
		trigger: make(chan struct{}, 1),
		limiter: rate.NewLimiter(commandRate, commandBurst),
		now:     time.Now,
	}
	e.rt.Store(rt)
	return e
}

// Swap installs a new runtime. The next pass picks it up; a pass already in
// flight finishes against the runtime it started with.
func (e *Engine) Swap(rt *Runtime) {
	e.rt.Store(rt)
	e.Trigger()
}

// Runtime returns the currently installed runtime.
func (e *Engine) Runtime() *Runtime {
	return e.rt.Load()
}

// Trigger requests an immediate reconciliation pass. Safe from any
// goroutine; triggers raised while a pass is running coalesce.
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Status returns the snapshot of the most recent completed pass.
func (e *Engine) Status() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}

// Run executes the reconciliation loop until ctx is cancelled. One pass runs
// immediately on startup to recover from whatever happened while the process
// was down.
func (e *Engine) Run(ctx context.Context) error {
	interval := e.rt.Load().Cfg.General.CheckInterval.Duration()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("Reconciliation loop started")
	e.RunPass(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Reconciliation loop stopped")
			return ctx.Err()
		case <-ticker.C:
		case <-e.trigger:
			log.Debug().Msg("Pass triggered")
		}

		e.RunPass(ctx)

		if cur := e.rt.Load().Cfg.General.CheckInterval.Duration(); cur != interval {
			interval = cur
			ticker.Reset(interval)
			log.Info().Dur("interval", interval).Msg("Check interval changed")
		}
	}
}

// RunPass performs one full reconciliation pass: poll devices, fold input
// levels into the override store, compute the desired state of every output,
// and issue commands for the ones that differ from reality.
func (e *Engine) RunPass(ctx context.Context) Snapshot {
	rt := e.rt.Load()
	now := e.now().In(rt.Eval.Timezone())

	rt.Dev.Refresh(ctx)

	for _, s := range rt.Dev.InputSamples() {
		e.inputs.Update(s.Name, s.Level, s.At)
	}

	recorded, err := e.store.ActualStates()
	if err != nil {
		log.Error().Err(err).Msg("Reading recorded switch states failed")
		recorded = map[string]bool{}
	}

	snap := Snapshot{At: now}
	var commands []command

	for _, out := range rt.Dev.Outputs() {
		st := OutputStatus{Name: out.Name, Device: out.Device, Group: out.Group}
		managed := false

		if in, ok := rt.Map.InputFor(out.Name); ok {
			st.Input = in
			managed = true
			if level, known := e.inputs.Level(in); known && level {
				st.ForcedOn = true
			}
		}

		scheduleOn := false
		if sched, ok := rt.Map.ScheduleFor(out.Name); ok {
			st.Schedule = sched
			managed = true
			if def := rt.Defs[sched]; def != nil {
				scheduleOn = rt.Eval.IsOn(def, now)
			}
		}

		st.Desired = st.ForcedOn || scheduleOn

		actual, online := rt.Dev.OutputState(out.Name)
		st.Actual = actual
		st.Online = online

		if !online {
			log.Warn().Str("switch", out.Name).Str("device", out.Device).Msg("Switch unreachable, skipping")
			snap.Outputs = append(snap.Outputs, st)
			continue
		}

		// An output that changed without us is a manual change worth recording.
		if prev, known := recorded[out.Name]; !known || prev != actual {
			if err := e.store.SetActual(out.Name, actual, now); err != nil {
				log.Error().Err(err).Str("switch", out.Name).Msg("Persisting observed state failed")
			}
			if known {
				e.appendHistory(state.HistoryEntry{
					Timestamp: now,
					Switch:    out.Name,
					OldState:  prev,
					NewState:  actual,
					Cause:     state.CauseManual,
				})
				log.Info().Str("switch", out.Name).Bool("on", actual).Msg("Manual state change detected")
			}
		}

		// An output no rule covers is observed but never commanded.
		if !managed {
			st.Desired = actual
			snap.Outputs = append(snap.Outputs, st)
			continue
		}

		if st.Desired != actual {
			cause := state.CauseSchedule
			inputName := ""
			if st.ForcedOn && !scheduleOn {
				cause = state.CauseOverride
				inputName = st.Input
			}
			commands = append(commands, command{
				output:   out.Name,
				device:   out.Device,
				on:       st.Desired,
				from:     actual,
				cause:    cause,
				schedule: st.Schedule,
				input:    inputName,
			})
			st.Actual = st.Desired // optimistic; reverted below on failure
		}

		snap.Outputs = append(snap.Outputs, st)
	}

	snap.Commands = len(commands)
	snap.Failures = e.dispatch(ctx, rt, now, commands, snap.Outputs)

	e.prune(rt, now)

	e.mu.Lock()
	e.last = snap
	e.mu.Unlock()

	log.Info().
		Int("outputs", len(snap.Outputs)).
		Int("commands", snap.Commands).
		Int("failures", snap.Failures).
		Msg("Reconciliation pass completed")

	if e.OnPass != nil {
		e.OnPass(snap)
	}
	return snap
}

// command is one pending switch change computed by a pass.
type command struct {
	output   string
	device   string
	on       bool
	from     bool
	cause    state.Cause
	schedule string
	input    string
}

// dispatch sends the pending commands: outputs on different devices in
// parallel, outputs on the same device strictly in order. Returns the number
// of failed commands.
func (e *Engine) dispatch(ctx context.Context, rt *Runtime, now time.Time, commands []command, statuses []OutputStatus) int {
	if len(commands) == 0 {
		return 0
	}

	byDevice := make(map[string][]command)
	for _, cmd := range commands {
		byDevice[cmd.device] = append(byDevice[cmd.device], cmd)
	}

	var failed sync.Map
	g, ctx := errgroup.WithContext(ctx)
	for _, cmds := range byDevice {
		cmds := cmds
		g.Go(func() error {
			for _, cmd := range cmds {
				if err := e.limiter.Wait(ctx); err != nil {
					return err
				}
				if err := rt.Dev.SetOutput(ctx, cmd.output, cmd.on); err != nil {
					log.Error().Err(err).Str("switch", cmd.output).Bool("on", cmd.on).Msg("Switch command failed")
					failed.Store(cmd.output, true)
					continue
				}
				log.Info().
					Str("switch", cmd.output).
					Bool("on", cmd.on).
					Str("cause", string(cmd.cause)).
					Msg("Switch changed")
				if err := e.store.SetActual(cmd.output, cmd.on, now); err != nil {
					log.Error().Err(err).Str("switch", cmd.output).Msg("Persisting switch state failed")
				}
				e.appendHistory(state.HistoryEntry{
					Timestamp: now,
					Switch:    cmd.output,
					OldState:  cmd.from,
					NewState:  cmd.on,
					Cause:     cmd.cause,
					Schedule:  cmd.schedule,
					Input:     cmd.input,
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	// Failed commands keep their stale actual state so the next trigger
	// retries them.
	failures := 0
	for i := range statuses {
		if _, ok := failed.Load(statuses[i].Name); ok {
			statuses[i].Actual = !statuses[i].Desired
			failures++
		}
	}
	return failures
}

func (e *Engine) appendHistory(entry state.HistoryEntry) {
	if err := e.store.AppendHistory(entry); err != nil {
		log.Error().Err(err).Str("switch", entry.Switch).Msg("Appending history failed")
	}
}

func (e *Engine) prune(rt *Runtime, now time.Time) {
	maxDays := rt.Cfg.Files.MaxDaysSwitchChangeHistory
	cutoff := now.AddDate(0, 0, -maxDays)
	n, err := e.store.PruneBefore(cutoff)
	if err != nil {
		log.Error().Err(err).Msg("Pruning history failed")
		return
	}
	if n > 0 {
		log.Debug().Int64("removed", n).Time("cutoff", cutoff).Msg("Pruned old history entries")
	}
}
