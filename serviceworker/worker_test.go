package serviceworker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shinosaki/webpush-worker-go/host"
	"github.com/shinosaki/webpush-worker-go/serviceworker"
	"github.com/shinosaki/webpush-worker-go/webpush"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

type recorder struct {
	mu     sync.Mutex
	pushes []serviceworker.PushResult
	clicks []serviceworker.ClickOutcome
}

func (r *recorder) hooks() serviceworker.Hooks {
	return serviceworker.Hooks{
		OnPush: func(result serviceworker.PushResult, _ time.Duration) {
			r.mu.Lock()
			r.pushes = append(r.pushes, result)
			r.mu.Unlock()
		},
		OnClick: func(outcome serviceworker.ClickOutcome, _ time.Duration) {
			r.mu.Lock()
			r.clicks = append(r.clicks, outcome)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) pushResults() []serviceworker.PushResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]serviceworker.PushResult(nil), r.pushes...)
}

type env struct {
	center  *host.NotificationCenter
	windows *host.Windows
	worker  *serviceworker.Worker
	rec     *recorder
	stop    func()
}

func start(t *testing.T, scope *serviceworker.Scope, opts ...serviceworker.Option) *env {
	t.Helper()
	logger := zap.NewNop()

	e := &env{rec: &recorder{}}
	if scope == nil {
		e.center = host.NewNotificationCenter(logger)
		e.windows = host.NewWindows(logger)
		scope = &serviceworker.Scope{Registration: e.center, Clients: e.windows, Windows: e.windows}
	}

	w, err := serviceworker.NewWorker(scope, logger, append(opts, serviceworker.WithHooks(e.rec.hooks()))...)
	require.NoError(t, err)
	e.worker = w

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	e.stop = func() {
		cancel()
		<-done
	}
	return e
}

func TestWorkerPushThenClick(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := start(t, nil)
	defer e.stop()
	ctx := context.Background()

	inbox := e.windows.Add(serviceworker.WindowClient{URL: "/inbox", Focusable: true, Controlled: true})
	e.windows.Add(serviceworker.WindowClient{URL: "/", Focusable: true, Focused: true, Controlled: true})

	require.NoError(t, e.worker.DispatchPush(ctx, []byte(`{"title":"Hi","body":"There","url":"/inbox"}`)))

	shown := e.center.GetNotifications("")
	require.Len(t, shown, 1)
	assert.Equal(t, "Hi", shown[0].Title)
	assert.Equal(t, "There", shown[0].Body)
	assert.Equal(t, "/inbox", shown[0].Data.TargetURL())

	outcome, err := e.worker.DispatchClick(ctx, shown[0], "")
	require.NoError(t, err)
	assert.Equal(t, serviceworker.ClickFocused, outcome)
	assert.Empty(t, e.center.GetNotifications(""))

	clients, err := e.windows.MatchAll(ctx, serviceworker.MatchAllOptions{IncludeUncontrolled: true})
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, inbox.ID, clients[0].ID)
	assert.True(t, clients[0].Focused)
}

func TestWorkerClickOpensWindow(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := start(t, nil)
	defer e.stop()
	ctx := context.Background()

	require.NoError(t, e.worker.DispatchPush(ctx, []byte(`{"url":"/inbox"}`)))
	shown := e.center.GetNotifications("")
	require.Len(t, shown, 1)

	outcome, err := e.worker.DispatchClick(ctx, shown[0], "")
	require.NoError(t, err)
	assert.Equal(t, serviceworker.ClickOpened, outcome)

	clients, err := e.windows.MatchAll(ctx, serviceworker.MatchAllOptions{})
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, "/inbox", clients[0].URL)
}

func TestWorkerClickWithoutOpener(t *testing.T) {
	defer goleak.VerifyNone(t)
	logger := zap.NewNop()
	center := host.NewNotificationCenter(logger)
	windows := host.NewWindows(logger)
	e := start(t, &serviceworker.Scope{Registration: center, Clients: windows})
	defer e.stop()
	ctx := context.Background()

	require.NoError(t, e.worker.DispatchPush(ctx, []byte(`{}`)))
	shown := center.GetNotifications("")
	require.Len(t, shown, 1)

	outcome, err := e.worker.DispatchClick(ctx, shown[0], "")
	require.NoError(t, err)
	assert.Equal(t, serviceworker.ClickIgnored, outcome)
	assert.Empty(t, center.GetNotifications(""))
}

func TestWorkerSameTagReplaces(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := start(t, nil)
	defer e.stop()
	ctx := context.Background()

	payload := []byte(`{"title":"New message","tag":"chat"}`)
	require.NoError(t, e.worker.DispatchPush(ctx, payload))
	require.NoError(t, e.worker.DispatchPush(ctx, payload))

	assert.Len(t, e.center.GetNotifications("chat"), 1)
	assert.Equal(t, 2, e.center.Alerts())
}

func TestWorkerPushResults(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := start(t, nil)
	ctx := context.Background()

	require.NoError(t, e.worker.DispatchPush(ctx, nil))
	var payloadErr *serviceworker.PayloadError
	require.ErrorAs(t, e.worker.DispatchPush(ctx, []byte("not json")), &payloadErr)
	require.NoError(t, e.worker.DispatchPush(ctx, []byte(`{}`)))
	e.stop()

	assert.Equal(t, []serviceworker.PushResult{
		serviceworker.PushEmpty,
		serviceworker.PushMalformed,
		serviceworker.PushShown,
	}, e.rec.pushResults())
	assert.Len(t, e.center.GetNotifications(""), 1)
}

type blockingRegistration struct {
	started chan struct{}
	release chan struct{}
}

func (r *blockingRegistration) ShowNotification(ctx context.Context, _ string, _ webpush.NotificationOptions) error {
	close(r.started)
	select {
	case <-r.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestWorkerRunWaitsForPendingEvents(t *testing.T) {
	defer goleak.VerifyNone(t)
	reg := &blockingRegistration{started: make(chan struct{}), release: make(chan struct{})}
	e := start(t, &serviceworker.Scope{Registration: reg, Clients: host.NewWindows(zap.NewNop())})

	require.NoError(t, e.worker.EnqueuePush(context.Background(), []byte(`{}`)))
	<-reg.started

	stopped := make(chan struct{})
	go func() {
		e.stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("worker stopped before the pending notification settled")
	case <-time.After(50 * time.Millisecond):
	}

	close(reg.release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after the pending notification settled")
	}
	assert.Equal(t, []serviceworker.PushResult{serviceworker.PushShown}, e.rec.pushResults())
}

func TestWorkerExtendTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)
	reg := &blockingRegistration{started: make(chan struct{}), release: make(chan struct{})}
	e := start(t,
		&serviceworker.Scope{Registration: reg, Clients: host.NewWindows(zap.NewNop())},
		serviceworker.WithExtendTimeout(20*time.Millisecond),
	)
	defer e.stop()

	err := e.worker.DispatchPush(context.Background(), []byte(`{}`))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWorkerStopped(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := start(t, nil)
	e.stop()

	require.ErrorIs(t, e.worker.DispatchPush(context.Background(), []byte(`{}`)), serviceworker.ErrWorkerStopped)
}

func TestNewWorkerRequiresScope(t *testing.T) {
	_, err := serviceworker.NewWorker(&serviceworker.Scope{}, zap.NewNop())
	require.Error(t, err)
}
