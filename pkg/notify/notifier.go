// Package notify delivers workflow notifications (invitation created, join
// request decided) to an external transport. Delivery is best-effort: callers
// dispatch asynchronously and a failed delivery never rolls back the state
// transition that triggered it.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Template names understood by the downstream mailer.
const (
	TemplateInvitation          = "org-invitation"
	TemplateJoinRequestAccepted = "org-join-request-accepted"
	TemplateJoinRequestRejected = "org-join-request-rejected"
)

// Notifier sends one notification, identified by a template name and a flat
// set of properties the template renders.
type Notifier interface {
	Notify(ctx context.Context, template string, properties map[string]string) error
}

// Noop discards all notifications. Used in tests and when no notifier
// endpoint is configured.
type Noop struct{}

// Notify implements Notifier.
func (Noop) Notify(ctx context.Context, template string, properties map[string]string) error {
	return nil
}

// HTTPNotifier posts notifications as JSON to a webhook endpoint, retrying
// transient failures a bounded number of times.
type HTTPNotifier struct {
	endpoint string
	client   *http.Client
	retries  int
	backoff  time.Duration
}

// NewHTTPNotifier creates a webhook notifier.
func NewHTTPNotifier(endpoint string, timeout time.Duration, retries int) *HTTPNotifier {
	if retries < 0 {
		retries = 0
	}
	return &HTTPNotifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		retries:  retries,
		backoff:  500 * time.Millisecond,
	}
}

type payload struct {
	Template   string            `json:"template"`
	Properties map[string]string `json:"properties"`
}

// Notify implements Notifier.
func (n *HTTPNotifier) Notify(ctx context.Context, template string, properties map[string]string) error {
	body, err := json.Marshal(payload{Template: template, Properties: properties})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= n.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(n.backoff * time.Duration(attempt)):
			}
		}

		lastErr = n.post(ctx, body)
		if lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("failed to deliver %s notification: %w", template, lastErr)
}

func (n *HTTPNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notifier endpoint returned %d", resp.StatusCode)
	}
	return nil
}
