package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shinosaki/webpush-worker-go/host"
	"github.com/shinosaki/webpush-worker-go/serviceworker"
	"github.com/shinosaki/webpush-worker-go/webpush"
)

// Clicker delivers notification clicks to the worker.
type Clicker interface {
	DispatchClick(ctx context.Context, notification *webpush.Notification, action string) (serviceworker.ClickOutcome, error)
}

type notificationView struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Image     string    `json:"image,omitempty"`
	Tag       string    `json:"tag,omitempty"`
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
}

type clientView struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Focusable  bool   `json:"focusable"`
	Focused    bool   `json:"focused"`
	Controlled bool   `json:"controlled"`
}

type handler struct {
	center  *host.NotificationCenter
	windows *host.Windows
	worker  Clicker
	logger  *zap.Logger
}

// NewRouter exposes the in-memory host: visible notifications, open
// windows, and a click endpoint standing in for the user.
func NewRouter(
	center *host.NotificationCenter,
	windows *host.Windows,
	worker Clicker,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	h := &handler{center: center, windows: windows, worker: worker, logger: logger}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestSize(1 << 16))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Get("/notifications", h.listNotifications)
	r.Post("/notifications/{id}/click", h.click)
	r.Get("/clients", h.listClients)
	r.Post("/clients", h.addClient)
	r.Delete("/clients/{id}", h.removeClient)

	return r
}

func (h *handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	list := h.center.GetNotifications(r.URL.Query().Get("tag"))
	views := make([]notificationView, len(list))
	for i, n := range list {
		views[i] = notificationView{
			ID:        n.ID,
			Title:     n.Title,
			Body:      n.Body,
			Image:     n.Image,
			Tag:       n.Tag,
			URL:       n.Data.TargetURL(),
			Timestamp: n.Timestamp,
		}
	}
	respondJSON(w, http.StatusOK, views)
}

func (h *handler) click(w http.ResponseWriter, r *http.Request) {
	n, err := h.center.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	outcome, err := h.worker.DispatchClick(r.Context(), n, r.URL.Query().Get("action"))
	if errors.Is(err, serviceworker.ErrNotificationClosed) {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.logger.Warn("click dispatch failed", zap.String("notification_id", n.ID), zap.Error(err))
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
}

func (h *handler) listClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.windows.MatchAll(r.Context(), serviceworker.MatchAllOptions{
		Type:                serviceworker.ClientTypeWindow,
		IncludeUncontrolled: true,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]clientView, len(clients))
	for i, c := range clients {
		views[i] = clientView(c)
	}
	respondJSON(w, http.StatusOK, views)
}

func (h *handler) addClient(w http.ResponseWriter, r *http.Request) {
	var req clientView
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.URL == "" {
		respondError(w, http.StatusUnprocessableEntity, "url is required")
		return
	}

	client := h.windows.Add(serviceworker.WindowClient(req))
	respondJSON(w, http.StatusCreated, clientView(client))
}

func (h *handler) removeClient(w http.ResponseWriter, r *http.Request) {
	err := h.windows.Remove(chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, host.ErrClientNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case err != nil:
		respondError(w, http.StatusInternalServerError, err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
