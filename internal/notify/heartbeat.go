package notify

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/tmacey/switchd/internal/config"
)

// Heartbeat pings an external dead-man's-switch monitor after each
// reconciliation pass. If a pass had failures it hits the /fail variant so
// the monitor can alert on degraded operation, not just on silence.
type Heartbeat struct {
	url    string
	client *http.Client
}

func NewHeartbeat(cfg config.HeartbeatConfig) *Heartbeat {
	if cfg.WebsiteURL == "" {
		return nil
	}
	return &Heartbeat{
		url:    cfg.WebsiteURL,
		client: &http.Client{Timeout: cfg.HeartbeatTimeout.Duration()},
	}
}

// Ping notifies the monitor. Errors are logged only; a dead monitor must not
// affect switching.
func (h *Heartbeat) Ping(ctx context.Context, healthy bool) {
	if h == nil {
		return
	}

	url := h.url
	if !healthy {
		url += "/fail"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.Error().Err(err).Msg("Building heartbeat request failed")
		return
	}

	resp, err := h.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("Heartbeat ping failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Warn().Str("status", resp.Status).Msg("Heartbeat monitor rejected ping")
		return
	}
	log.Debug().Bool("healthy", healthy).Msg("Heartbeat sent")
}
