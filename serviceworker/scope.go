package serviceworker

import (
	"context"

	"github.com/shinosaki/webpush-worker-go/webpush"
)

// Registration displays notifications on behalf of the worker.
type Registration interface {
	ShowNotification(ctx context.Context, title string, options webpush.NotificationOptions) error
}

type ClientType string

const (
	ClientTypeWindow ClientType = "window"
	ClientTypeAll    ClientType = "all"
)

type MatchAllOptions struct {
	Type                ClientType
	IncludeUncontrolled bool
}

// WindowClient is a snapshot of an open browser window.
type WindowClient struct {
	ID         string
	URL        string
	Focusable  bool
	Focused    bool
	Controlled bool
}

// Clients enumerates and focuses windows. MatchAll must return clients in a
// stable order documented by the implementation; the first match wins.
type Clients interface {
	MatchAll(ctx context.Context, options MatchAllOptions) ([]WindowClient, error)
	Focus(ctx context.Context, client WindowClient) error
}

type WindowOpener interface {
	OpenWindow(ctx context.Context, url string) (*WindowClient, error)
}

// Scope is the worker's global context, passed explicitly to each handler.
type Scope struct {
	Registration Registration
	Clients      Clients
	// Windows is nil when the host cannot open new windows.
	Windows WindowOpener
}
