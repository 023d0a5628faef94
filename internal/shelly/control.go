// Package shelly talks to Shelly Gen2 devices over their local HTTP RPC.
// It owns all device communication; the engine only sees named outputs and
// inputs.
package shelly

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tmacey/switchd/internal/config"
)

// OutputInfo describes one switch output channel
type OutputInfo struct {
	Name   string
	Device string
	Group  string
}

// InputSample is one polled input level
type InputSample struct {
	Name  string
	Level bool
	At    time.Time
}

// channelRef addresses one channel on one device
type channelRef struct {
	dev *device
	id  int
}

// Control manages all configured devices and routes commands by channel name.
type Control struct {
	devices []*device
	outputs []OutputInfo          // declaration order
	outRefs map[string]channelRef // output name -> channel
	inRefs  map[string]channelRef // input name -> channel

	retryCount int
	retryDelay time.Duration
}

// NewControl builds the device registry from configuration.
func NewControl(cfg config.DevicesConfig) *Control {
	timeout := cfg.ResponseTimeout.Duration()
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	httpClient := &http.Client{Timeout: timeout}

	c := &Control{
		outRefs:    make(map[string]channelRef),
		inRefs:     make(map[string]channelRef),
		retryCount: cfg.RetryCount,
		retryDelay: cfg.RetryDelay.Duration(),
	}

	for _, dc := range cfg.Devices {
		dev := newDevice(dc, httpClient)
		c.devices = append(c.devices, dev)

		for _, out := range dc.Outputs {
			c.outRefs[out.Name] = channelRef{dev: dev, id: out.ID}
			c.outputs = append(c.outputs, OutputInfo{Name: out.Name, Device: dc.Name, Group: out.Group})
		}
		for _, in := range dc.Inputs {
			c.inRefs[in.Name] = channelRef{dev: dev, id: in.ID}
		}
	}

	return c
}

// Outputs returns all known outputs in declaration order.
func (c *Control) Outputs() []OutputInfo {
	return c.outputs
}

// DeviceOf returns the device name owning the output. Commands for outputs
// on the same device must be serialized.
func (c *Control) DeviceOf(output string) (string, bool) {
	ref, ok := c.outRefs[output]
	if !ok {
		return "", false
	}
	return ref.dev.name, true
}

// device holds connection details and the last polled channel states.
type device struct {
	name     string
	baseURL  string
	simulate bool
	client   *http.Client

	mu       sync.RWMutex
	online   bool
	outputs  map[int]bool
	inputs   map[int]bool
	polledAt time.Time
}

func newDevice(dc config.Device, client *http.Client) *device {
	port := dc.Port
	if port == 0 {
		port = 80
	}

	d := &device{
		name:     dc.Name,
		baseURL:  fmt.Sprintf("http://%s:%d", dc.Hostname, port),
		simulate: dc.Simulate,
		client:   client,
		outputs:  make(map[int]bool),
		inputs:   make(map[int]bool),
	}

	if d.simulate {
		// Simulated devices are always reachable and remember state in memory.
		d.online = true
		for _, out := range dc.Outputs {
			d.outputs[out.ID] = false
		}
		for _, in := range dc.Inputs {
			d.inputs[in.ID] = false
		}
	}

	return d
}
