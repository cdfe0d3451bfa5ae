package api

import (
	"net/http"

	"github.com/danielmmetz/hn-tools/session"
	"github.com/danielmmetz/hn-tools/sse"
)

type HealthHandler struct {
	session *session.Manager
	events  *sse.Broker
}

func NewHealthHandler(sess *session.Manager, events *sse.Broker) *HealthHandler {
	return &HealthHandler{session: sess, events: events}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	subscribers := 0
	if h.events != nil {
		subscribers = h.events.SubscriberCount()
	}
	writeJSON(w, r, map[string]any{
		"status":      "ok",
		"logged_in":   h.session.LoggedIn(),
		"subscribers": subscribers,
	})
}
