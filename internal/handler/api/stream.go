package api

import (
	"net/http"
	"strings"
	"time"

	"MicroPulse/internal/bus"
	"MicroPulse/internal/domain/models"
	xlogger "MicroPulse/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// StreamHandler pushes live events to WebSocket clients. Each client gets
// its own bounded bus subscription, so a slow reader only loses its own
// events.
type StreamHandler struct {
	logger   *xlogger.Logger
	bus      *bus.Bus
	upgrader websocket.Upgrader
}

func NewStreamHandler(logger *xlogger.Logger, b *bus.Bus) *StreamHandler {
	return &StreamHandler{
		logger: logger,
		bus:    b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Serve upgrades the connection and streams events until the client goes
// away. ?types=signal,sweep filters by event type.
func (h *StreamHandler) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	types := parseTypeFilter(c.QueryParam("types"))
	events := h.bus.Subscribe("ws:"+conn.RemoteAddr().String(), 256)
	defer h.bus.Unsubscribe(events)
	defer conn.Close()

	// Reader goroutine: only to detect the client closing.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return nil
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if types != nil {
				if _, want := types[ev.Type]; !want {
					continue
				}
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("ws client write failed", xlogger.Error(err))
				return nil
			}
		}
	}
}

func parseTypeFilter(raw string) map[models.EventType]struct{} {
	if raw == "" {
		return nil
	}
	out := make(map[models.EventType]struct{})
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			out[models.EventType(t)] = struct{}{}
		}
	}
	return out
}
