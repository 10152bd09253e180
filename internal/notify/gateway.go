// Package notify is the client for the external notification gateway.
// Deliveries are best effort; callers are expected to log failures and
// carry on.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Gateway posts push notifications to the configured gateway endpoint.
// With an empty URL every call is a logged no-op, which keeps local
// development working without a gateway instance.
type Gateway struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

func NewGateway(url string, timeout time.Duration, log zerolog.Logger) *Gateway {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Gateway{
		url:    url,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

type notifyRequest struct {
	Tokens []string          `json:"tokens"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

// Notify sends one message to all destination tokens.
func (g *Gateway) Notify(ctx context.Context, tokens []string, title, body string, data map[string]string) error {
	if g.url == "" {
		g.log.Debug().Int("destinations", len(tokens)).Msg("gateway URL not set, skipping notification")
		return nil
	}
	if len(tokens) == 0 {
		return nil
	}

	payload, err := json.Marshal(notifyRequest{Tokens: tokens, Title: title, Body: body, Data: data})
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url+"/notify", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivering notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	return nil
}
