package serviceworker

import (
	"context"
	"errors"
	"fmt"

	"github.com/shinosaki/webpush-worker-go/webpush"
)

var ErrNotificationClosed = errors.New("serviceworker: notification already closed")

// HandlePush displays the notification carried by a push event.
// A push without payload is ignored.
func HandlePush(scope *Scope, event *PushEvent) error {
	if event.Data == nil {
		return nil
	}

	payload, err := webpush.ParsePayload(event.Data.Bytes())
	if err != nil {
		return &PayloadError{Err: err}
	}

	title, options := payload.Resolve()
	return event.WaitUntil(func(ctx context.Context) error {
		return scope.Registration.ShowNotification(ctx, title, options)
	})
}

// HandleNotificationClick closes the clicked notification and brings the
// user to its url, focusing a matching window or opening a new one.
func HandleNotificationClick(scope *Scope, event *NotificationClickEvent) error {
	if event.Notification == nil {
		return errors.New("serviceworker: click event without notification")
	}
	if event.Notification.Closed() {
		return ErrNotificationClosed
	}

	event.Notification.Close()
	targetURL := event.Notification.Data.TargetURL()

	return event.WaitUntil(func(ctx context.Context) error {
		outcome, err := routeClick(ctx, scope, targetURL)
		event.setOutcome(outcome)
		return err
	})
}

func routeClick(ctx context.Context, scope *Scope, targetURL string) (ClickOutcome, error) {
	clients, err := scope.Clients.MatchAll(ctx, MatchAllOptions{
		Type:                ClientTypeWindow,
		IncludeUncontrolled: true,
	})
	if err != nil {
		return ClickFailed, fmt.Errorf("match clients: %w", err)
	}

	for _, client := range clients {
		if client.URL == targetURL && client.Focusable {
			if err := scope.Clients.Focus(ctx, client); err != nil {
				return ClickFailed, fmt.Errorf("focus client %s: %w", client.ID, err)
			}
			return ClickFocused, nil
		}
	}

	if scope.Windows == nil {
		return ClickIgnored, nil
	}

	if _, err := scope.Windows.OpenWindow(ctx, targetURL); err != nil {
		return ClickFailed, fmt.Errorf("open window %s: %w", targetURL, err)
	}
	return ClickOpened, nil
}
