package serviceworker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shinosaki/webpush-worker-go/webpush"
	"go.uber.org/zap"
)

var ErrWorkerStopped = errors.New("serviceworker: worker stopped")

type PushResult string

const (
	PushShown     PushResult = "shown"
	PushEmpty     PushResult = "empty"
	PushMalformed PushResult = "malformed"
	PushFailed    PushResult = "failed"
)

// Hooks observe settled events. Nil hooks are no-ops.
type Hooks struct {
	OnPush  func(result PushResult, elapsed time.Duration)
	OnClick func(outcome ClickOutcome, elapsed time.Duration)
}

type Option func(*Worker)

func WithHooks(h Hooks) Option {
	return func(w *Worker) {
		if h.OnPush != nil {
			w.hooks.OnPush = h.OnPush
		}
		if h.OnClick != nil {
			w.hooks.OnClick = h.OnClick
		}
	}
}

// WithExtendTimeout bounds how long an event may be kept alive. Zero means no limit.
func WithExtendTimeout(d time.Duration) Option {
	return func(w *Worker) { w.extendTimeout = d }
}

// Worker runs event handlers one at a time on a single goroutine, like a
// service worker's event loop. Extended lifetimes settle concurrently.
type Worker struct {
	scope         *Scope
	logger        *zap.Logger
	hooks         Hooks
	extendTimeout time.Duration

	tasks   chan func(base context.Context)
	stopped chan struct{}
	pending sync.WaitGroup
}

func NewWorker(scope *Scope, logger *zap.Logger, opts ...Option) (*Worker, error) {
	if scope == nil || scope.Registration == nil || scope.Clients == nil {
		return nil, errors.New("serviceworker: scope needs a registration and clients")
	}

	w := &Worker{
		scope:  scope,
		logger: logger,
		hooks: Hooks{
			OnPush:  func(PushResult, time.Duration) {},
			OnClick: func(ClickOutcome, time.Duration) {},
		},
		tasks:   make(chan func(context.Context)),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run processes events until ctx is cancelled, then waits for every
// extended event to settle before returning.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("service worker started")
	defer func() {
		close(w.stopped)
		w.pending.Wait()
		w.logger.Info("service worker stopped")
	}()

	// Extensions outlive ctx so a shutdown does not drop a display mid-flight.
	base := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-w.tasks:
			task(base)
		}
	}
}

// DispatchPush delivers a push message and waits for its event to settle.
// data is the decrypted body; nil means the push carried no payload.
func (w *Worker) DispatchPush(ctx context.Context, data []byte) error {
	done := make(chan error, 1)
	if err := w.submit(ctx, w.pushTask(data, done)); err != nil {
		return err
	}
	return wait(ctx, done)
}

// EnqueuePush delivers a push message without waiting for it to settle.
func (w *Worker) EnqueuePush(ctx context.Context, data []byte) error {
	return w.submit(ctx, w.pushTask(data, make(chan error, 1)))
}

// DispatchClick delivers a click on a displayed notification and waits for
// its event to settle.
func (w *Worker) DispatchClick(ctx context.Context, notification *webpush.Notification, action string) (ClickOutcome, error) {
	done := make(chan error, 1)
	var event *NotificationClickEvent

	task := func(base context.Context) {
		start := time.Now()
		event = &NotificationClickEvent{
			ExtendableEvent: newExtendableEvent(base, w.extendTimeout),
			Notification:    notification,
			Action:          action,
		}
		err := HandleNotificationClick(w.scope, event)

		w.settle(event.ExtendableEvent, err, func(err error) {
			outcome := event.Outcome()
			if err != nil {
				outcome = ClickFailed
			}
			log := w.logger.With(zap.String("outcome", string(outcome)))
			if notification != nil {
				log = log.With(zap.String("notification_id", notification.ID))
			}
			if err != nil {
				log.Warn("notification click failed", zap.Error(err))
			} else {
				log.Debug("notification click handled")
			}
			w.hooks.OnClick(outcome, time.Since(start))
			done <- err
		})
	}

	if err := w.submit(ctx, task); err != nil {
		return "", err
	}
	if err := wait(ctx, done); err != nil {
		return ClickFailed, err
	}
	return event.Outcome(), nil
}

func (w *Worker) pushTask(data []byte, done chan<- error) func(context.Context) {
	return func(base context.Context) {
		start := time.Now()
		event := &PushEvent{
			ExtendableEvent: newExtendableEvent(base, w.extendTimeout),
			Data:            NewPushMessageData(data),
		}
		err := HandlePush(w.scope, event)

		w.settle(event.ExtendableEvent, err, func(err error) {
			result := PushShown
			var payloadErr *PayloadError
			switch {
			case errors.As(err, &payloadErr):
				result = PushMalformed
			case err != nil:
				result = PushFailed
			case !event.Extended():
				result = PushEmpty
			}

			log := w.logger.With(zap.String("result", string(result)), zap.Int("size", len(data)))
			if err != nil {
				log.Warn("push event failed", zap.Error(err))
			} else {
				log.Debug("push event handled")
			}
			w.hooks.OnPush(result, time.Since(start))
			done <- err
		})
	}
}

// settle runs on the loop goroutine, so pending.Add never races Run's Wait.
func (w *Worker) settle(event *ExtendableEvent, handlerErr error, report func(error)) {
	w.pending.Add(1)
	go func() {
		defer w.pending.Done()
		err := event.Settle()
		if handlerErr != nil {
			err = handlerErr
		}
		report(err)
	}()
}

func (w *Worker) submit(ctx context.Context, task func(context.Context)) error {
	select {
	case w.tasks <- task:
		return nil
	case <-w.stopped:
		return ErrWorkerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func wait(ctx context.Context, done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
