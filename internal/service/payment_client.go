package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PaymentLinkRequest describes the hosted checkout page to create
type PaymentLinkRequest struct {
	OrderID       string `json:"reference"`
	Amount        int64  `json:"amount"`
	Description   string `json:"description"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
}

// PaymentLink is the gateway's hosted checkout page
type PaymentLink struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// PaymentGateway creates hosted payment links. Payment results arrive later
// through the gateway webhook, never synchronously.
type PaymentGateway interface {
	CreatePaymentLink(ctx context.Context, req PaymentLinkRequest) (*PaymentLink, error)
}

// HTTPPaymentGateway talks to the payment provider's REST API
type HTTPPaymentGateway struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// NewHTTPPaymentGateway creates a gateway client
func NewHTTPPaymentGateway(baseURL, apiKey string) *HTTPPaymentGateway {
	return &HTTPPaymentGateway{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// CreatePaymentLink requests a hosted checkout URL for an order amount
func (g *HTTPPaymentGateway) CreatePaymentLink(ctx context.Context, req PaymentLinkRequest) (*PaymentLink, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.BaseURL+"/v1/payment_links", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.APIKey)

	resp, err := g.HTTP.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("payment gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("payment gateway returned %d: %s", resp.StatusCode, string(data))
	}

	var link PaymentLink
	if err := json.NewDecoder(resp.Body).Decode(&link); err != nil {
		return nil, fmt.Errorf("failed to decode payment link: %w", err)
	}
	if link.ID == "" || link.URL == "" {
		return nil, fmt.Errorf("payment gateway returned an incomplete link")
	}
	return &link, nil
}
