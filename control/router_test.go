package control_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shinosaki/webpush-worker-go/control"
	"github.com/shinosaki/webpush-worker-go/host"
	"github.com/shinosaki/webpush-worker-go/metrics"
	"github.com/shinosaki/webpush-worker-go/serviceworker"
)

type fixture struct {
	center  *host.NotificationCenter
	windows *host.Windows
	worker  *serviceworker.Worker
	router  http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	f := &fixture{
		center:  host.NewNotificationCenter(logger),
		windows: host.NewWindows(logger),
	}
	w, err := serviceworker.NewWorker(
		&serviceworker.Scope{Registration: f.center, Clients: f.windows, Windows: f.windows},
		logger,
		serviceworker.WithHooks(m.WorkerHooks()),
	)
	require.NoError(t, err)
	f.worker = w

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	f.router = control.NewRouter(f.center, f.windows, w, reg, logger)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestClickFocusesOpenClient(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.worker.DispatchPush(context.Background(), []byte(`{"title":"Hi","url":"/inbox"}`)))

	rec := f.do(t, http.MethodPost, "/clients", `{"url":"/inbox","focusable":true}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/notifications", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Hi", list[0].Title)
	assert.Equal(t, "/inbox", list[0].URL)

	rec = f.do(t, http.MethodPost, "/notifications/"+list[0].ID+"/click", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"outcome":"focused"}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/notifications/"+list[0].ID+"/click", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `webpush_notification_clicks_total{outcome="focused"} 1`)
	assert.Contains(t, rec.Body.String(), `webpush_push_events_total{result="shown"} 1`)
}

func TestConcurrentClicksRouteOnce(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.worker.DispatchPush(context.Background(), []byte(`{"url":"/inbox"}`)))
	shown := f.center.GetNotifications("")
	require.Len(t, shown, 1)
	path := "/notifications/" + shown[0].ID + "/click"

	const clicks = 8
	codes := make([]int, clicks)
	var wg sync.WaitGroup
	for i := range codes {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes[i] = f.do(t, http.MethodPost, path, "").Code
		}()
	}
	wg.Wait()

	ok := 0
	for _, code := range codes {
		switch code {
		case http.StatusOK:
			ok++
		case http.StatusNotFound, http.StatusConflict:
		default:
			t.Errorf("unexpected status %d", code)
		}
	}
	assert.Equal(t, 1, ok)

	clients, err := f.windows.MatchAll(context.Background(), serviceworker.MatchAllOptions{})
	require.NoError(t, err)
	assert.Len(t, clients, 1)
}

func TestClientsEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/clients", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, http.MethodPost, "/clients", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/clients", `{"id":"tab1","url":"/"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/clients", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":"tab1","url":"/","focusable":false,"focused":false,"controlled":false}]`, rec.Body.String())

	rec = f.do(t, http.MethodDelete, "/clients/tab1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodDelete, "/clients/tab1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/health", "")
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
