package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	wsWriteWait  = 2 * time.Second
	wsPongWait   = 30 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsBuffer     = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// local daemon; allow all
		return true
	},
}

// wsMessage is the envelope sent to stream clients.
type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// handleStream upgrades to a websocket and forwards every measurement the
// hub publishes until the client goes away. Incoming messages are ignored;
// the read loop only notices the disconnect.
func handleStream(hub *Hub, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).Debug("ws upgrade")
			return
		}
		id, ch := hub.Subscribe(wsBuffer)
		log.WithField("remote", r.RemoteAddr).Debug("ws client connected")

		closed := make(chan struct{})
		go func() {
			defer close(closed)
			conn.SetReadLimit(512)
			_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(wsPongWait))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(wsPingPeriod)
		defer func() {
			ping.Stop()
			hub.Unsubscribe(id)
			_ = conn.Close()
			<-closed
			log.WithField("remote", r.RemoteAddr).Debug("ws client gone")
		}()

		for {
			select {
			case <-closed:
				return
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			case m, ok := <-ch:
				if !ok {
					return
				}
				data, err := json.Marshal(m)
				if err != nil {
					log.WithError(err).Debug("ws marshal")
					continue
				}
				b, _ := json.Marshal(wsMessage{Type: "measurement", Data: data})
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					return
				}
			}
		}
	}
}
