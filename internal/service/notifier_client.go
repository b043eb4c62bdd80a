package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Notification is a transactional email to a customer
type Notification struct {
	To       string `json:"to"`
	Name     string `json:"name"`
	Subject  string `json:"subject"`
	Template string `json:"template"`
	OrderID  string `json:"order_id"`
	Body     string `json:"body,omitempty"`
}

// Notifier sends customer notifications. All sends are best-effort: failures
// are logged by callers, never propagated into the order path.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// HTTPNotifier posts notifications to the email-sending action
type HTTPNotifier struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// NewHTTPNotifier creates a notifier client
func NewHTTPNotifier(baseURL, apiKey string) *HTTPNotifier {
	return &HTTPNotifier{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Send delivers one notification
func (n *HTTPNotifier) Send(ctx context.Context, msg Notification) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.BaseURL+"/v1/send", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.APIKey)

	resp, err := n.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("notifier request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notifier returned %d", resp.StatusCode)
	}
	return nil
}
