package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// AuditClient delivers events to the external audit sink over HTTP.
// The sink is a collaborator with no delivery guarantee; callers treat every
// send as best-effort.
type AuditClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAuditClient creates a new audit sink client. An empty baseURL disables
// the sink; Send becomes a no-op.
func NewAuditClient(baseURL string) *AuditClient {
	return &AuditClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Send posts a single event to the sink.
func (c *AuditClient) Send(ctx context.Context, event string, payload map[string]interface{}) error {
	if c.baseURL == "" {
		return nil
	}

	body, err := json.Marshal(struct {
		Event     string                 `json:"event"`
		Payload   map[string]interface{} `json:"payload"`
		EmittedAt time.Time              `json:"emitted_at"`
	}{
		Event:     event,
		Payload:   payload,
		EmittedAt: time.Now(),
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/events", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("audit sink returned status %d", resp.StatusCode)
	}

	return nil
}
