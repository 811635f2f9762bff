package appserver

import (
	"strings"
	"time"
)

type PushSubscriptionKeys struct {
	P256DH string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// https://developer.mozilla.org/docs/Web/API/PushSubscription/toJSON
type PushSubscription struct {
	Endpoint       string               `json:"endpoint"`
	ExpirationTime *int64               `json:"expirationTime"`
	Keys           PushSubscriptionKeys `json:"keys"`
}

type SubscriberCreate struct {
	Subscription PushSubscription `json:"subscription"`
	Label        string           `json:"label,omitempty"`
	UserAgent    string           `json:"user_agent,omitempty"`
}

type SubscriberResponse struct {
	ID          int64     `json:"id"`
	DeviceToken string    `json:"device_token"`
	Label       *string   `json:"label"`
	Endpoint    string    `json:"endpoint"`
	CreatedAt   Timestamp `json:"created_at"`
}

// Timestamp accepts RFC 3339 times as well as the zone-less ISO 8601 form
// some servers emit, which is read as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		return nil
	}

	var err error
	for _, layout := range timestampLayouts {
		var parsed time.Time
		if parsed, err = time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return err
}

type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryOpened    DeliveryStatus = "opened"
)

// SentNotification is the notification an application server fanned out
// to its subscribers.
type SentNotification struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Body      *string   `json:"body"`
	ImageURL  *string   `json:"image_url"`
	ClickURL  *string   `json:"click_url"`
	CreatedAt Timestamp `json:"created_at"`
}

// Delivery tracks one notification sent to one subscriber.
type Delivery struct {
	ID           int64            `json:"id"`
	Status       DeliveryStatus   `json:"status"`
	DeliveredAt  *Timestamp       `json:"delivered_at"`
	OpenedAt     *Timestamp       `json:"opened_at"`
	Notification SentNotification `json:"notification"`
}

type deliveryList struct {
	Notifications []Delivery `json:"notifications"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Detail any `json:"detail"`
}
