// Package events streams the decision, shadow and override events of the
// service to websocket clients.
package events

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	coreevents "github.com/kilianp07/consolidation/core/events"
	"github.com/kilianp07/consolidation/infra/notify"
	"github.com/kilianp07/consolidation/internal/eventbus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 20 * time.Second
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// Register mounts GET /api/events/ws. The optional topic query parameter
// keeps only the listed topics, comma separated.
func Register(mux *http.ServeMux, bus eventbus.EventBus) {
	mux.HandleFunc("GET /api/events/ws", func(w http.ResponseWriter, r *http.Request) {
		stream(bus, w, r)
	})
}

func stream(bus eventbus.EventBus, w http.ResponseWriter, r *http.Request) {
	topics := map[string]bool{}
	for _, t := range strings.Split(r.URL.Query().Get("topic"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics[t] = true
		}
	}

	// Subscribe before the upgrade so that no event published after the
	// handshake is missed.
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(1 << 10)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case ev, ok := <-ch:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
				return
			}
			if len(topics) > 0 && !topics[coreevents.Topic(ev)] {
				continue
			}
			payload, err := notify.Encode(ev)
			if err != nil {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}
