package host

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/shinosaki/webpush-worker-go/webpush"
	"go.uber.org/zap"
)

var ErrNotificationNotFound = errors.New("host: notification not found")

// NotificationCenter keeps the notifications currently visible to the user.
// A notification shown with the tag of a visible one replaces it.
type NotificationCenter struct {
	mu      sync.Mutex
	logger  *zap.Logger
	visible []*webpush.Notification // display order
	alerts  int
}

func NewNotificationCenter(logger *zap.Logger) *NotificationCenter {
	return &NotificationCenter{logger: logger}
}

func (c *NotificationCenter) ShowNotification(ctx context.Context, title string, options webpush.NotificationOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n := webpush.NewNotification(uuid.NewString(), title, options, c.remove)

	c.mu.Lock()
	replaced := false
	if options.Tag != "" {
		for i, old := range c.visible {
			if old.Tag == options.Tag {
				c.visible = append(c.visible[:i], c.visible[i+1:]...)
				replaced = true
				break
			}
		}
	}
	c.visible = append(c.visible, n)

	// A silent replacement keeps the existing alert.
	alert := !replaced || options.Renotify
	if alert {
		c.alerts++
	}
	c.mu.Unlock()

	c.logger.Info("notification shown",
		zap.String("id", n.ID),
		zap.String("title", n.Title),
		zap.String("tag", n.Tag),
		zap.String("url", n.Data.TargetURL()),
		zap.Bool("replaced", replaced),
		zap.Bool("alert", alert),
	)
	return nil
}

// GetNotifications lists visible notifications in display order. An empty
// tag matches every notification.
func (c *NotificationCenter) GetNotifications(tag string) []*webpush.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	var list []*webpush.Notification
	for _, n := range c.visible {
		if tag == "" || n.Tag == tag {
			list = append(list, n)
		}
	}
	return list
}

func (c *NotificationCenter) Get(id string) (*webpush.Notification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range c.visible {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, ErrNotificationNotFound
}

// Alerts counts how many times the user was alerted.
func (c *NotificationCenter) Alerts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alerts
}

func (c *NotificationCenter) remove(n *webpush.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, v := range c.visible {
		if v == n {
			c.visible = append(c.visible[:i], c.visible[i+1:]...)
			c.logger.Debug("notification closed", zap.String("id", n.ID))
			return
		}
	}
}
