package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Poster delivers payloads to webhook targets. Delivery is a single attempt;
// callers decide whether a failure is fatal (it never is for relays).
type Poster struct {
	client *http.Client
	logger *logrus.Logger
}

func NewPoster(timeout time.Duration, logger *logrus.Logger) *Poster {
	return &Poster{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Post sends payload as JSON to url. Non-2xx responses are errors.
func (p *Poster) Post(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(snippet))
	}

	return nil
}

// PostBestEffort sends payload and logs any failure instead of returning it.
func (p *Poster) PostBestEffort(ctx context.Context, url string, payload any) {
	if err := p.Post(ctx, url, payload); err != nil {
		p.logger.WithError(err).WithField("url", url).Warn("Webhook delivery failed")
	}
}
