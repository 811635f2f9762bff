package appserver

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

const (
	subscribersPath = "/api/subscribers"
	settingsPath    = "/api/settings/"
	pushPath        = "/api/push/"

	// Text shown to the user before subscribing.
	EnrollmentPromptKey = "enrollment_prompt"
)

// NewHTTPClient returns an HTTP client that negotiates HTTP/2 over TLS and
// falls back to HTTP/1.1.
func NewHTTPClient(timeout time.Duration) (*http.Client, error) {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("appserver: configure http2: %w", err)
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

// Client registers push subscriptions with the application server that
// sends the notifications.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	logger     *zap.Logger
}

func NewClient(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  "webpush-worker-go",
		logger:     logger,
	}
}

// NewSubscription builds the subscription for a push endpoint from the
// user agent's keys.
func NewSubscription(endpoint string, authSecret []byte, publicKey *ecdh.PublicKey) PushSubscription {
	return PushSubscription{
		Endpoint: endpoint,
		Keys: PushSubscriptionKeys{
			P256DH: base64.RawURLEncoding.EncodeToString(publicKey.Bytes()),
			Auth:   base64.RawURLEncoding.EncodeToString(authSecret),
		},
	}
}

// Subscribe registers the push endpoint and returns the subscriber record.
func (c *Client) Subscribe(ctx context.Context, subscription PushSubscription, label string) (*SubscriberResponse, error) {
	payload, err := json.Marshal(SubscriberCreate{
		Subscription: subscription,
		Label:        label,
		UserAgent:    c.userAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("appserver: marshal subscriber: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+subscribersPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("appserver: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	var subscriber SubscriberResponse
	if err := c.do(req, &subscriber); err != nil {
		return nil, err
	}

	c.logger.Info("subscription registered",
		zap.Int64("subscriber_id", subscriber.ID),
		zap.String("device_token", subscriber.DeviceToken),
	)
	return &subscriber, nil
}

// Setting reads a text setting published by the application server.
func (c *Client) Setting(ctx context.Context, key string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+settingsPath+url.PathEscape(key), nil)
	if err != nil {
		return "", fmt.Errorf("appserver: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	var setting Setting
	if err := c.do(req, &setting); err != nil {
		return "", err
	}
	return setting.Value, nil
}

// Deliveries lists the notifications sent to a subscriber, newest first.
func (c *Client) Deliveries(ctx context.Context, deviceToken string) ([]Delivery, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pushPath+url.PathEscape(deviceToken), nil)
	if err != nil {
		return nil, fmt.Errorf("appserver: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	var list deliveryList
	if err := c.do(req, &list); err != nil {
		return nil, err
	}
	return list.Notifications, nil
}

func (c *Client) MarkDelivered(ctx context.Context, deliveryID int64) error {
	return c.mark(ctx, deliveryID, DeliveryDelivered)
}

func (c *Client) MarkOpened(ctx context.Context, deliveryID int64) error {
	return c.mark(ctx, deliveryID, DeliveryOpened)
}

func (c *Client) mark(ctx context.Context, deliveryID int64, status DeliveryStatus) error {
	endpoint := c.baseURL + pushPath + strconv.FormatInt(deliveryID, 10) + "/" + string(status)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("appserver: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	var res statusResponse
	if err := c.do(req, &res); err != nil {
		return err
	}
	c.logger.Debug("delivery updated", zap.Int64("delivery_id", deliveryID), zap.String("status", string(status)))
	return nil
}

func (c *Client) do(req *http.Request, v any) error {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("appserver: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("appserver: read response: %w", err)
	}

	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		var detail errorResponse
		_ = json.Unmarshal(body, &detail)
		return fmt.Errorf("appserver: invalid http status %d: %v", res.StatusCode, detail.Detail)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("appserver: unmarshal response: %w", err)
	}
	return nil
}
