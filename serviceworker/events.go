package serviceworker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/shinosaki/webpush-worker-go/webpush"
	"golang.org/x/sync/errgroup"
)

var ErrEventInactive = errors.New("serviceworker: event is no longer active")

// ExtendableEvent keeps an event alive while work passed to WaitUntil is
// pending. The host calls Settle once the handler has returned.
type ExtendableEvent struct {
	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	group       *errgroup.Group
	dispatching bool
	pending     int
	extended    bool
}

// newExtendableEvent returns an event in the dispatching state. Work passed
// to WaitUntil runs with a context derived from ctx, cancelled when the first
// extension fails, the event settles or timeout elapses. Zero timeout means
// no limit.
func newExtendableEvent(ctx context.Context, timeout time.Duration) *ExtendableEvent {
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	group, gctx := errgroup.WithContext(ctx)
	return &ExtendableEvent{
		ctx:         gctx,
		cancel:      cancel,
		group:       group,
		dispatching: true,
	}
}

// WaitUntil extends the lifetime of the event until fn returns. It may be
// called while the handler runs, or from inside another pending extension.
func (e *ExtendableEvent) WaitUntil(fn func(ctx context.Context) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.dispatching && e.pending == 0 {
		return ErrEventInactive
	}

	e.pending++
	e.extended = true
	e.group.Go(func() error {
		defer func() {
			e.mu.Lock()
			e.pending--
			e.mu.Unlock()
		}()
		return fn(e.ctx)
	})
	return nil
}

// Extended reports whether WaitUntil was ever accepted.
func (e *ExtendableEvent) Extended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.extended
}

// Settle ends the dispatch phase and blocks until every extension has
// returned. The error is the first extension failure.
func (e *ExtendableEvent) Settle() error {
	e.mu.Lock()
	e.dispatching = false
	e.mu.Unlock()

	err := e.group.Wait()
	e.cancel()
	return err
}

// PushMessageData is the decrypted body of a push message.
type PushMessageData struct {
	raw []byte
}

// NewPushMessageData returns nil for an empty body, matching a push without payload.
func NewPushMessageData(data []byte) *PushMessageData {
	if len(data) == 0 {
		return nil
	}
	return &PushMessageData{raw: data}
}

func (d *PushMessageData) Bytes() []byte { return d.raw }

func (d *PushMessageData) Text() string { return string(d.raw) }

func (d *PushMessageData) JSON(v any) error {
	return json.Unmarshal(d.raw, v)
}

type PushEvent struct {
	*ExtendableEvent
	Data *PushMessageData
}

func newPushEvent(ctx context.Context, timeout time.Duration, data []byte) *PushEvent {
	return &PushEvent{
		ExtendableEvent: newExtendableEvent(ctx, timeout),
		Data:            NewPushMessageData(data),
	}
}

type ClickOutcome string

const (
	ClickFocused ClickOutcome = "focused"
	ClickOpened  ClickOutcome = "opened"
	ClickIgnored ClickOutcome = "ignored"
	ClickFailed  ClickOutcome = "failed"
)

type NotificationClickEvent struct {
	*ExtendableEvent
	Notification *webpush.Notification
	Action       string

	outcomeMu sync.Mutex
	outcome   ClickOutcome
}

func newNotificationClickEvent(ctx context.Context, timeout time.Duration, notification *webpush.Notification, action string) *NotificationClickEvent {
	return &NotificationClickEvent{
		ExtendableEvent: newExtendableEvent(ctx, timeout),
		Notification:    notification,
		Action:          action,
	}
}

// Outcome is the routing decision, available once the event has settled.
// It is empty if routing never ran.
func (e *NotificationClickEvent) Outcome() ClickOutcome {
	e.outcomeMu.Lock()
	defer e.outcomeMu.Unlock()
	return e.outcome
}

func (e *NotificationClickEvent) setOutcome(o ClickOutcome) {
	e.outcomeMu.Lock()
	e.outcome = o
	e.outcomeMu.Unlock()
}

// PayloadError is returned by HandlePush when the push body is not a
// notification payload.
type PayloadError struct {
	Err error
}

func (e *PayloadError) Error() string {
	return "serviceworker: malformed push payload: " + e.Err.Error()
}

func (e *PayloadError) Unwrap() error { return e.Err }
