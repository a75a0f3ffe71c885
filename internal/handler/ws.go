package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/okonek/trip-dispatch/backend/internal/domain"
)

const (
	// pongWait is how long a silent client is kept before the read loop
	// gives up; pings go out at a comfortable margin inside that window.
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin policy is enforced by the CORS middleware and the
	// out-of-scope auth gateway, not per-connection here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsFrame is the wire format on a driver channel. Type is "join", "leave",
// or "location"; Location is set only on location frames.
type wsFrame struct {
	Type     string                 `json:"type"`
	DriverID uuid.UUID              `json:"driver_id"`
	Location *domain.DriverLocation `json:"location,omitempty"`
}

// ServeDriverWS handles GET /ws/drivers/{driverID}.
//
// The connection is an observer's membership in the driver's topic: it is
// joined on upgrade and leaves when either side closes. No history is
// replayed — observers needing initial state query the last-known-location
// endpoint first. Delivery is best-effort; a frame the observer cannot keep
// up with is dropped by the hub, never queued.
func (s *Server) ServeDriverWS(w http.ResponseWriter, r *http.Request) {
	driverID, ok := s.pathUUID(w, r, "driverID")
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "driver_id", driverID, "error", err)
		return
	}
	defer conn.Close()

	frames, leave := s.hub.Subscribe(driverID)
	defer leave()

	if err := conn.WriteJSON(wsFrame{Type: "join", DriverID: driverID}); err != nil {
		return
	}

	// Read loop: we expect no data frames from observers, but reading is
	// what surfaces closes and keeps the pong handler running.
	readClosed := make(chan struct{})
	go func() {
		defer close(readClosed)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
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
		case loc, open := <-frames:
			if !open {
				// Hub shut down: tell the observer and end the session.
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(wsFrame{Type: "location", DriverID: driverID, Location: &loc}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-readClosed:
			return
		}
	}
}
