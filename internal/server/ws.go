package server

import (
	"encoding/json"
	"net/http"

	"github.com/ayusman/neuropose/internal/app"
	"github.com/ayusman/neuropose/internal/hub"
	"github.com/ayusman/neuropose/internal/log"
)

// StateSocket upgrades /api/ws connections onto the state hub. A new client
// gets the current state first so it never waits for the next snapshot.
type StateSocket struct {
	hub *hub.Hub
	app *app.App
}

// NewStateSocket creates a StateSocket. app may be nil.
func NewStateSocket(h *hub.Hub, a *app.App) *StateSocket {
	return &StateSocket{hub: h, app: a}
}

// ServeHTTP handles WebSocket upgrade requests.
func (s *StateSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var greet func() []hub.Message
	if s.app != nil {
		greet = s.current
	}
	hub.ServeWS(s.hub, w, r, greet)
}

// current encodes the latest state. The hub calls it as the client joins.
func (s *StateSocket) current() []hub.Message {
	data, err := json.Marshal(s.app.Aggregator().Current())
	if err != nil {
		log.Warn("failed to encode initial state", "error", err)
		return nil
	}
	return []hub.Message{hub.NewJSONMessage(data)}
}
