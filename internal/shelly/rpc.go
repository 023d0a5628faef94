package shelly

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// switchStatus is the relevant subset of a "switch:N" status component.
type switchStatus struct {
	Output bool `json:"output"`
}

// inputStatus is the relevant subset of an "input:N" status component.
type inputStatus struct {
	State bool `json:"state"`
}

// Refresh polls every device's live status concurrently. A device that cannot
// be reached is marked offline and its channels drop out of OutputState and
// InputSamples until the next successful poll; the error is logged, not
// returned, so one dead device never stalls a reconciliation pass.
func (c *Control) Refresh(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	for _, dev := range c.devices {
		dev := dev
		g.Go(func() error {
			dev.refresh(ctx)
			return nil
		})
	}
	_ = g.Wait()
}

func (d *device) refresh(ctx context.Context) {
	if d.simulate {
		d.mu.Lock()
		d.polledAt = time.Now()
		d.mu.Unlock()
		return
	}

	var raw map[string]json.RawMessage
	if err := d.getJSON(ctx, d.baseURL+"/rpc/Shelly.GetStatus", &raw); err != nil {
		d.mu.Lock()
		wasOnline := d.online
		d.online = false
		d.mu.Unlock()
		if wasOnline {
			log.Warn().Str("device", d.name).Err(err).Msg("Device went offline")
		} else {
			log.Debug().Str("device", d.name).Err(err).Msg("Device still offline")
		}
		return
	}

	outputs := make(map[int]bool)
	inputs := make(map[int]bool)
	for key, msg := range raw {
		switch {
		case strings.HasPrefix(key, "switch:"):
			var id int
			if _, err := fmt.Sscanf(key, "switch:%d", &id); err != nil {
				continue
			}
			var st switchStatus
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			outputs[id] = st.Output
		case strings.HasPrefix(key, "input:"):
			var id int
			if _, err := fmt.Sscanf(key, "input:%d", &id); err != nil {
				continue
			}
			var st inputStatus
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			inputs[id] = st.State
		}
	}

	d.mu.Lock()
	wasOnline := d.online
	d.online = true
	d.outputs = outputs
	d.inputs = inputs
	d.polledAt = time.Now()
	d.mu.Unlock()

	if !wasOnline {
		log.Info().Str("device", d.name).Msg("Device online")
	}
}

// OutputState returns the last polled on/off level of the named output and
// whether its device was reachable on that poll.
func (c *Control) OutputState(name string) (on, online bool) {
	ref, ok := c.outRefs[name]
	if !ok {
		return false, false
	}
	ref.dev.mu.RLock()
	defer ref.dev.mu.RUnlock()
	if !ref.dev.online {
		return false, false
	}
	return ref.dev.outputs[ref.id], true
}

// InputSamples returns the last polled level of every input on every online
// device, stamped with the poll time.
func (c *Control) InputSamples() []InputSample {
	var samples []InputSample
	for name, ref := range c.inRefs {
		ref.dev.mu.RLock()
		if ref.dev.online {
			samples = append(samples, InputSample{
				Name:  name,
				Level: ref.dev.inputs[ref.id],
				At:    ref.dev.polledAt,
			})
		}
		ref.dev.mu.RUnlock()
	}
	return samples
}

// SetOutput switches the named output on or off, retrying transient failures.
// On success the cached poll state is updated so a follow-up OutputState
// reflects the command without another round trip.
func (c *Control) SetOutput(ctx context.Context, name string, on bool) error {
	ref, ok := c.outRefs[name]
	if !ok {
		return fmt.Errorf("unknown output %q", name)
	}

	dev := ref.dev
	if dev.simulate {
		dev.mu.Lock()
		dev.outputs[ref.id] = on
		dev.mu.Unlock()
		log.Debug().Str("device", dev.name).Str("output", name).Bool("on", on).Msg("Simulated switch command")
		return nil
	}

	url := fmt.Sprintf("%s/rpc/Switch.Set?id=%d&on=%t", dev.baseURL, ref.id, on)

	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
			log.Debug().Str("output", name).Int("attempt", attempt+1).Msg("Retrying switch command")
		}

		var resp struct {
			WasOn bool `json:"was_on"`
		}
		if lastErr = dev.getJSON(ctx, url, &resp); lastErr == nil {
			dev.mu.Lock()
			dev.online = true
			dev.outputs[ref.id] = on
			dev.mu.Unlock()
			return nil
		}
	}

	return fmt.Errorf("switch command for %q failed: %w", name, lastErr)
}

func (d *device) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
