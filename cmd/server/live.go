package server

import (
	"context"
	"net/http"
	"time"

	"example.com/socialwall/internal/models"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// liveHandler upgrades to a websocket and pushes the full wall, newest first,
// on connect and after every change. Client messages are ignored.
func (s *Server) liveHandler(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logg.Info("http/live", "Websocket upgrade failed for "+user+": "+err.Error())
		return
	}
	defer conn.Close()
	logg.Debug("http/live", "Live feed opened by "+user)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader: keeps pongs flowing and notices the client going away.
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	err = s.wall.Watch(ctx, func(posts []models.Post) error {
		if posts == nil {
			posts = []models.Post{}
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(posts)
	})
	if err != nil {
		logg.Warn("http/live", "Live feed ended for "+user, err)
	}

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	logg.Debug("http/live", "Live feed closed by "+user)
}
