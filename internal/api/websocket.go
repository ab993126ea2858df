package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"grimm.is/ngxweb/internal/traffic"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsSendBuffer   = 256
)

// TopicTraffic tags realtime access log entries.
const TopicTraffic = "traffic"

// WSMessage is a topic-based message sent to clients
type WSMessage struct {
	Topic string `json:"topic"`
	Data  any    `json:"data"`
}

func (s *Server) upgrader() *websocket.Upgrader {
	var origins []string
	if s.Config.API != nil {
		origins = s.Config.API.CORSOrigins
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(origins, r)
		},
	}
}

// handleTrafficRealtime streams newly appended access log entries matching
// the query filters until either side closes the connection.
func (s *Server) handleTrafficRealtime(w http.ResponseWriter, r *http.Request) {
	q, ok := s.parseTrafficQuery(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.metrics.TrafficFollowers.Inc()
	defer s.metrics.TrafficFollowers.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reads only serve to notice the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := make(chan traffic.Entry, wsSendBuffer)
	followErr := make(chan error, 1)
	go func() {
		followErr <- s.traffic.Follow(ctx, q, func(e traffic.Entry) {
			select {
			case send <- e:
			default:
				s.logger.Warn("realtime client too slow, dropping entry", "id", e.ID)
			}
		})
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return
		case err := <-followErr:
			if err != nil && ctx.Err() == nil {
				s.logger.Error("access log follow failed", "error", err)
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()),
					time.Now().Add(wsWriteWait))
			}
			return
		case e := <-send:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(WSMessage{Topic: TopicTraffic, Data: e}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
