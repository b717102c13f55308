// Package twilio sends WhatsApp messages through Twilio's REST API.
package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vidioagent/backend/internal/phone"
	"github.com/vidioagent/backend/internal/provider"
)

type Client struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	From       string // tenant-facing WhatsApp number, without transport prefix
	HTTPClient *http.Client
}

func NewClient(accountSID, authToken, from string) *Client {
	return &Client{
		BaseURL:    "https://api.twilio.com",
		AccountSID: accountSID,
		AuthToken:  authToken,
		From:       from,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

var _ provider.Notifier = (*Client)(nil)

type messageResp struct {
	SID          string `json:"sid"`
	ErrorMessage string `json:"error_message"`
}

func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	form := url.Values{}
	form.Set("Body", body)
	return c.send(ctx, to, form)
}

func (c *Client) SendMedia(ctx context.Context, to, mediaURL, caption string) (string, error) {
	form := url.Values{}
	form.Set("Body", caption)
	form.Set("MediaUrl", mediaURL)
	return c.send(ctx, to, form)
}

func (c *Client) send(ctx context.Context, to string, form url.Values) (string, error) {
	if c.HTTPClient == nil {
		return "", errors.New("twilio: http client is nil")
	}
	if strings.TrimSpace(c.AccountSID) == "" || strings.TrimSpace(c.AuthToken) == "" {
		return "", provider.ErrUnavailable
	}

	form.Set("From", phone.WithTransport(c.From))
	form.Set("To", phone.WithTransport(to))

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(c.BaseURL, "/"), c.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.AccountSID, c.AuthToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", &provider.UpstreamError{Provider: "twilio", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return "", &provider.DeliveryError{To: to, Err: errors.New(strings.TrimSpace(string(body)))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &provider.UpstreamError{Provider: "twilio", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var decoded messageResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", &provider.UpstreamError{Provider: "twilio", Err: err}
	}
	if decoded.ErrorMessage != "" {
		return "", &provider.DeliveryError{To: to, Err: errors.New(decoded.ErrorMessage)}
	}
	return decoded.SID, nil
}
