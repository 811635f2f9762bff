package webpush

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultTitle = "Notification"
	DefaultURL   = "/"
)

// Push message body sent by the application server.
// Every field is optional; see Resolve for the fallbacks.
type NotificationPayload struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	Image string `json:"image,omitempty"` // image url
	URL   string `json:"url,omitempty"`   // opened on click
	Tag   string `json:"tag,omitempty"`
}

var ErrNullPayload = errors.New("webpush: payload is null")

// ParsePayload reads a push body. Any JSON value other than null is accepted;
// fields are looked up by name and only string values count, so an array or a
// number resolves to an empty payload. Invalid JSON and null are errors.
func ParsePayload(raw []byte) (NotificationPayload, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return NotificationPayload{}, err
	}
	if v == nil {
		return NotificationPayload{}, ErrNullPayload
	}

	fields, _ := v.(map[string]any)
	field := func(name string) string {
		s, _ := fields[name].(string)
		return s
	}
	return NotificationPayload{
		Title: field("title"),
		Body:  field("body"),
		Image: field("image"),
		URL:   field("url"),
		Tag:   field("tag"),
	}, nil
}

// "data" property of a displayed notification
type NotificationData struct {
	URL string `json:"url"`
}

// TargetURL returns the stored url, or DefaultURL when none was attached.
func (d *NotificationData) TargetURL() string {
	if d == nil || d.URL == "" {
		return DefaultURL
	}
	return d.URL
}

// https://developer.mozilla.org/docs/Web/API/ServiceWorkerRegistration/showNotification
type NotificationOptions struct {
	Body     string           `json:"body"`
	Image    string           `json:"image,omitempty"`
	Tag      string           `json:"tag,omitempty"`
	Data     NotificationData `json:"data"`
	Renotify bool             `json:"renotify"`
}

// Resolve applies the field defaults and returns the arguments for ShowNotification.
func (p NotificationPayload) Resolve() (title string, options NotificationOptions) {
	title = p.Title
	if title == "" {
		title = DefaultTitle
	}

	url := p.URL
	if url == "" {
		url = DefaultURL
	}

	return title, NotificationOptions{
		Body:     p.Body,
		Image:    p.Image,
		Tag:      p.Tag,
		Data:     NotificationData{URL: url},
		Renotify: true,
	}
}

// Notification is a displayed notification. It is owned by the host that
// created it; handlers only read it and close it.
type Notification struct {
	ID        string
	Title     string
	Body      string
	Image     string
	Tag       string
	Renotify  bool
	Data      *NotificationData
	Timestamp time.Time

	closeOnce sync.Once
	closed    atomic.Bool
	onClose   func(*Notification)
}

// NewNotification builds a displayed notification. onClose is run by the
// first call to Close and may be nil.
func NewNotification(id, title string, options NotificationOptions, onClose func(*Notification)) *Notification {
	data := options.Data
	return &Notification{
		ID:        id,
		Title:     title,
		Body:      options.Body,
		Image:     options.Image,
		Tag:       options.Tag,
		Renotify:  options.Renotify,
		Data:      &data,
		Timestamp: time.Now(),
		onClose:   onClose,
	}
}

func (n *Notification) Close() {
	n.closeOnce.Do(func() {
		n.closed.Store(true)
		if n.onClose != nil {
			n.onClose(n)
		}
	})
}

func (n *Notification) Closed() bool {
	return n.closed.Load()
}
