package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/tmacey/switchd/internal/config"
)

// Viewer pushes the latest reconciliation snapshot to the status website so
// the household can see switch states without reaching the daemon directly.
type Viewer struct {
	submitURL string
	client    *http.Client
}

func NewViewer(cfg config.GeneralConfig) *Viewer {
	if cfg.WebsiteBaseURL == "" {
		return nil
	}
	u, err := url.Parse(cfg.WebsiteBaseURL)
	if err != nil {
		log.Error().Err(err).Str("url", cfg.WebsiteBaseURL).Msg("Invalid website base URL, status push disabled")
		return nil
	}
	u.Path = "/api/submit"
	u.RawQuery = url.Values{"key": {cfg.WebsiteAccessKey}}.Encode()

	return &Viewer{
		submitURL: u.String(),
		client:    &http.Client{Timeout: cfg.WebsiteTimeout.Duration()},
	}
}

// Push uploads one snapshot. A 403 means the access key is wrong and gets a
// louder log than a transient network error; neither stops the scheduler.
func (v *Viewer) Push(ctx context.Context, snapshot any) {
	if v == nil {
		return
	}

	body, err := json.Marshal(snapshot)
	if err != nil {
		log.Error().Err(err).Msg("Encoding status snapshot failed")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.submitURL, bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Msg("Building status push request failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("Status push failed")
		return
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		log.Error().Msg("Status website rejected the access key")
	case resp.StatusCode >= 300:
		log.Warn().Str("status", resp.Status).Msg("Status website rejected the push")
	default:
		log.Debug().Msg("Status snapshot pushed")
	}
}
