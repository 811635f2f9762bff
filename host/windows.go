package host

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shinosaki/webpush-worker-go/serviceworker"
	"go.uber.org/zap"
)

var (
	ErrClientNotFound = errors.New("host: client not found")
	ErrNotFocusable   = errors.New("host: client cannot be focused")
)

type window struct {
	client    serviceworker.WindowClient
	created   uint64
	lastFocus uint64
}

// Windows tracks open browser windows.
//
// MatchAll returns the most recently focused window first; windows never
// focused follow in the order they were opened.
type Windows struct {
	mu      sync.Mutex
	logger  *zap.Logger
	windows []*window
	clock   uint64
}

func NewWindows(logger *zap.Logger) *Windows {
	return &Windows{logger: logger}
}

// Add registers an already open window. An empty ID is generated.
func (w *Windows) Add(client serviceworker.WindowClient) serviceworker.WindowClient {
	w.mu.Lock()
	defer w.mu.Unlock()

	if client.ID == "" {
		client.ID = uuid.NewString()
	}
	w.clock++
	win := &window{client: client, created: w.clock}
	if client.Focused {
		w.focusLocked(win)
	}
	w.windows = append(w.windows, win)
	return win.client
}

// Remove closes a window.
func (w *Windows) Remove(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, win := range w.windows {
		if win.client.ID == id {
			w.windows = append(w.windows[:i], w.windows[i+1:]...)
			return nil
		}
	}
	return ErrClientNotFound
}

func (w *Windows) MatchAll(ctx context.Context, options serviceworker.MatchAllOptions) ([]serviceworker.WindowClient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w.mu.Lock()
	ordered := make([]*window, 0, len(w.windows))
	for _, win := range w.windows {
		if !win.client.Controlled && !options.IncludeUncontrolled {
			continue
		}
		ordered = append(ordered, win)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].lastFocus != ordered[j].lastFocus {
			return ordered[i].lastFocus > ordered[j].lastFocus
		}
		return ordered[i].created < ordered[j].created
	})

	// Every client here is a window, so both client types match.
	clients := make([]serviceworker.WindowClient, len(ordered))
	for i, win := range ordered {
		clients[i] = win.client
	}
	w.mu.Unlock()

	return clients, nil
}

func (w *Windows) Focus(ctx context.Context, client serviceworker.WindowClient) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, win := range w.windows {
		if win.client.ID != client.ID {
			continue
		}
		if !win.client.Focusable {
			return ErrNotFocusable
		}
		w.focusLocked(win)
		w.logger.Info("window focused", zap.String("id", win.client.ID), zap.String("url", win.client.URL))
		return nil
	}
	return ErrClientNotFound
}

// OpenWindow opens a focused window controlled by the worker.
func (w *Windows) OpenWindow(ctx context.Context, url string) (*serviceworker.WindowClient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := w.Add(serviceworker.WindowClient{
		URL:        url,
		Focusable:  true,
		Focused:    true,
		Controlled: true,
	})
	w.logger.Info("window opened", zap.String("id", client.ID), zap.String("url", url))
	return &client, nil
}

func (w *Windows) focusLocked(target *window) {
	w.clock++
	for _, win := range w.windows {
		win.client.Focused = false
	}
	target.client.Focused = true
	target.lastFocus = w.clock
}
