package autopush

import (
	"context"
	"crypto/ecdh"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shinosaki/webpush-worker-go/rfc8291"
	"github.com/shinosaki/websocket-client-go/websocket"
	"go.uber.org/zap"
)

const MozillaPushService = "wss://push.services.mozilla.com"

const requestTimeout = 5 * time.Second

var (
	ErrTimeout             = errors.New("autopush: request timeout")
	ErrClosed              = errors.New("autopush: connection closed")
	ErrUnsupportedEncoding = errors.New("autopush: unsupported content encoding")
)

// StatusError is a non-200 status answered by the push service.
type StatusError struct {
	Type   MessageType
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("autopush: %s failed with status %d", e.Type, e.Status)
}

type jsonSender interface {
	SendJSON(v any) error
}

type AutoPushClient struct {
	*websocket.WebSocketClient
	logger *zap.Logger
	ece    *rfc8291.RFC8291

	helloChan        chan HelloResponse
	notificationChan chan PushNotification
	registerChan     chan RegisterResponse
	unregisterChan   chan UnregisterResponse

	// mu guards the channels against close while handleMessage sends on them.
	mu        sync.RWMutex
	done      chan struct{}
	closeOnce sync.Once
}

// NewAutoPushClient returns a client and the channel receiving push
// notifications. Notifications are acknowledged before they are delivered.
func NewAutoPushClient(logger *zap.Logger) (ap *AutoPushClient, ch <-chan PushNotification) {
	ap = newClient(logger)
	ap.WebSocketClient = websocket.NewWebSocketClient(
		nil,
		func(ws *websocket.WebSocketClient, isReconnecting bool) {
			if !isReconnecting {
				ap.close()
			}
		},
		func(ws *websocket.WebSocketClient, payload []byte) {
			ap.handleMessage(ws, payload)
		},
	)
	return ap, ap.notificationChan
}

func newClient(logger *zap.Logger) *AutoPushClient {
	return &AutoPushClient{
		logger:           logger,
		ece:              rfc8291.NewRFC8291(sha256.New),
		helloChan:        make(chan HelloResponse, 1),
		notificationChan: make(chan PushNotification),
		registerChan:     make(chan RegisterResponse, 1),
		unregisterChan:   make(chan UnregisterResponse, 1),
		done:             make(chan struct{}),
	}
}

// close unblocks a pending notification delivery, then closes every channel.
func (c *AutoPushClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		defer c.mu.Unlock()
		close(c.helloChan)
		close(c.notificationChan)
		close(c.registerChan)
		close(c.unregisterChan)
	})
}

// StopDelivery closes the notification channel. Messages arriving afterwards
// are still acknowledged but dropped.
func (c *AutoPushClient) StopDelivery() {
	c.close()
}

// reply hands a response to the request waiting for it. A reply that arrives
// after its request gave up is dropped.
func reply[T any](c *AutoPushClient, ch chan T, v T, label MessageType) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	select {
	case <-c.done:
		return
	default:
	}

	select {
	case ch <- v:
	default:
		c.logger.Warn("dropping unexpected response", zap.String("type", string(label)))
	}
}

// deliver blocks until the notification is received or the client is closed.
func (c *AutoPushClient) deliver(n PushNotification) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	select {
	case <-c.done:
		c.logger.Warn("dropping notification after close", zap.String("channel_id", n.ChannelID))
	default:
		select {
		case c.notificationChan <- n:
		case <-c.done:
			c.logger.Warn("dropping notification after close", zap.String("channel_id", n.ChannelID))
		}
	}
}

func request[T any](ctx context.Context, ws jsonSender, ch <-chan T, payload any) (res T, err error) {
	// Discard a reply left over from a request that timed out.
	select {
	case _, ok := <-ch:
		if !ok {
			return res, ErrClosed
		}
	default:
	}

	if err := ws.SendJSON(payload); err != nil {
		return res, fmt.Errorf("autopush: send request: %w", err)
	}

	timer := time.NewTimer(requestTimeout)
	defer timer.Stop()

	select {
	case res, ok := <-ch:
		if !ok {
			return res, ErrClosed
		}
		return res, nil
	case <-timer.C:
		return res, ErrTimeout
	case <-ctx.Done():
		return res, ctx.Err()
	}
}

func unmarshal[T any](logger *zap.Logger, payload []byte, label MessageType) *T {
	var data T
	if err := json.Unmarshal(payload, &data); err != nil {
		logger.Warn("failed to unmarshal message", zap.String("type", string(label)), zap.Error(err))
		return nil
	}
	return &data
}

// Hello performs the handshake. Pass the saved uaid and channel ids to
// resume a previous session; the returned uaid should be saved.
func (c *AutoPushClient) Hello(ctx context.Context, uaid string, channelIDs []string) (HelloResponse, error) {
	res, err := request(ctx, c.WebSocketClient, c.helloChan, HelloRequest{
		Type:       Hello,
		UAID:       uaid,
		ChannelIDs: channelIDs,
		UseWebPush: true,
	})
	if err == nil && res.Status != StatusOK {
		err = &StatusError{Type: Hello, Status: res.Status}
	}
	return res, err
}

// Register creates a push subscription for channelID. vapidKey is the
// application server key, base64 encoded; it may be empty.
func (c *AutoPushClient) Register(ctx context.Context, channelID string, vapidKey string) (RegisterResponse, error) {
	res, err := request(ctx, c.WebSocketClient, c.registerChan, RegisterRequest{
		Type:      Register,
		ChannelID: channelID,
		Key:       vapidKey,
	})
	if err == nil && res.Status != StatusOK {
		err = &StatusError{Type: Register, Status: res.Status}
	}
	return res, err
}

func (c *AutoPushClient) Unregister(ctx context.Context, channelID string) (UnregisterResponse, error) {
	res, err := request(ctx, c.WebSocketClient, c.unregisterChan, UnregisterRequest{
		Type:      Unregister,
		ChannelID: channelID,
	})
	if err == nil && res.Status != StatusOK {
		err = &StatusError{Type: Unregister, Status: res.Status}
	}
	return res, err
}

// Decrypt returns the plaintext body of a notification, or nil when the
// push carried no payload.
func (c *AutoPushClient) Decrypt(
	curve ecdh.Curve,
	authSecret []byte,
	useragentPrivateKey *ecdh.PrivateKey,
	notification PushNotification,
) ([]byte, error) {
	if notification.Data == "" {
		return nil, nil
	}
	if enc := notification.Headers.Encoding; enc != "" && enc != EncodingAES128GCM {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, enc)
	}

	data, err := base64.RawURLEncoding.DecodeString(notification.Data)
	if err != nil {
		return nil, fmt.Errorf("autopush: base64 decode: %w", err)
	}

	plaintext, err := c.ece.DecryptPayload(data, curve, authSecret, useragentPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("autopush: decrypt %s: %w", notification.ChannelID, err)
	}
	return plaintext, nil
}

func (c *AutoPushClient) handleMessage(ws jsonSender, payload []byte) {
	var message Message
	if err := json.Unmarshal(payload, &message); err != nil {
		c.logger.Warn("failed to unmarshal payload", zap.Error(err))
		return
	}

	switch message.Type {
	case Ping:
		if err := ws.SendJSON(struct{}{}); err != nil {
			c.logger.Warn("failed to answer ping", zap.Error(err))
		}

	case Hello:
		if data := unmarshal[HelloResponse](c.logger, payload, Hello); data != nil {
			c.helloChan <- *data
		}

	case Register:
		if data := unmarshal[RegisterResponse](c.logger, payload, Register); data != nil {
			c.registerChan <- *data
		}

	case Unregister:
		if data := unmarshal[UnregisterResponse](c.logger, payload, Unregister); data != nil {
			c.unregisterChan <- *data
		}

	case Notification:
		if data := unmarshal[PushNotification](c.logger, payload, Notification); data != nil {
			err := ws.SendJSON(Ack{
				Type: AckType,
				Updates: []AckUpdate{
					{
						ChannelID: data.ChannelID,
						Version:   data.Version,
					},
				},
			})
			if err != nil {
				c.logger.Warn("failed to ack notification", zap.String("channel_id", data.ChannelID), zap.Error(err))
			}
			c.notificationChan <- *data
		}

	default:
		c.logger.Debug("unknown message type", zap.String("type", string(message.Type)))
	}
}
