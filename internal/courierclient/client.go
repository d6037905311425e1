// Package courierclient talks to the courier service on behalf of a courier.
package courierclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nazeru/escrow-fulfillment-go/internal/httpapi"
	"github.com/nazeru/escrow-fulfillment-go/internal/order/domain"
	"github.com/nazeru/escrow-fulfillment-go/internal/order/view"
)

type Client struct {
	BaseURL string
	Email   string
	HTTP    *http.Client
}

func New(baseURL, email string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Email:   email,
		HTTP:    &http.Client{Timeout: 3 * time.Minute},
	}
}

// StatusError is a non-2xx answer; Message is the service's message field
// when it sent one.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Message)
}

func (c *Client) Undelivered(ctx context.Context) ([]view.Undelivered, error) {
	var out view.UndeliveredList
	if err := c.do(ctx, http.MethodGet, "/orders_to_deliver", nil, &out); err != nil {
		return nil, err
	}
	return out.Orders, nil
}

// PickUp blocks until the pick-up transaction is confirmed.
func (c *Client) PickUp(ctx context.Context, orderID int64, address string) error {
	return c.do(ctx, http.MethodPost, "/pick_up_order", map[string]any{"id": orderID, "address": address}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(httpapi.HeaderPrincipalEmail, c.Email)
	req.Header.Set(httpapi.HeaderPrincipalRole, string(domain.RoleCourier))
	req.Header.Set(httpapi.HeaderRequestID, uuid.NewString())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var msg struct {
			Message string `json:"message"`
			Msg     string `json:"msg"`
		}
		_ = json.Unmarshal(data, &msg)
		if msg.Message == "" {
			msg.Message = msg.Msg
		}
		return &StatusError{Code: resp.StatusCode, Message: msg.Message}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
