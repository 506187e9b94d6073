// Package ntfy pushes batch completion summaries to an ntfy topic.
package ntfy

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultServer  = "https://ntfy.sh"
	requestTimeout = 15 * time.Second
)

// Client posts plain-text notifications to one ntfy topic. A client with no
// topic is valid and silently disabled.
type Client struct {
	server string
	topic  string
	token  string
	http   *http.Client
}

// NewClient creates a Client for the given server and topic. An empty
// server means ntfy.sh.
func NewClient(server, topic, token string) *Client {
	if server == "" {
		server = defaultServer
	}
	return &Client{
		server: server,
		topic:  topic,
		token:  token,
		http:   &http.Client{Timeout: requestTimeout},
	}
}

// IsConfigured reports whether the client has a topic to publish to
func (c *Client) IsConfigured() bool {
	return c.topic != ""
}

// Send publishes one notification. Calling Send on an unconfigured client
// is an error so misconfiguration surfaces in logs instead of vanishing.
func (c *Client) Send(ctx context.Context, title, message string) error {
	if !c.IsConfigured() {
		return fmt.Errorf("ntfy topic not configured")
	}

	url := strings.TrimRight(c.server, "/") + "/" + strings.TrimLeft(c.topic, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}

	req.Header.Set("Content-Type", "text/plain")
	if title != "" {
		req.Header.Set("Title", title)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned status %d", resp.StatusCode)
	}

	return nil
}

// Test sends a throwaway notification to verify server, topic and token
func (c *Client) Test(ctx context.Context) error {
	return c.Send(ctx, "hevcbatch", "Test notification, configuration works.")
}
