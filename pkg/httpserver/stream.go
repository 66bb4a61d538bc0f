package httpserver

import (
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/quantfold/perpsim/internal/events"
	"go.uber.org/zap"
)

const (
	// clientBuffer is the per-connection event queue. Slow consumers drop
	// events rather than back-pressuring the core.
	clientBuffer = 64

	writeTimeout = 10 * time.Second
)

// StreamHandler bridges the event bus onto websocket connections.
type StreamHandler struct {
	bus      *events.Bus
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewStreamHandler creates the websocket event-stream handler.
func NewStreamHandler(bus *events.Bus, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{
		bus:    bus,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleWS handles GET /ws?account=<id>. The connection receives every book
// event plus the trade/account events for the requested account (all
// accounts when the parameter is omitted).
func (s *StreamHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws-upgrade-failed", zap.Error(err))
		return
	}

	account := r.URL.Query().Get("account")
	queue := make(chan events.Event, clientBuffer)

	listener := func(evt events.Event) {
		select {
		case queue <- evt:
		default:
			StreamDroppedTotal.Inc()
		}
	}
	if account != "" {
		listener = events.FilterAccount(account, listener)
	}

	subs := make(map[events.Kind]int, 3)
	for _, kind := range []events.Kind{events.KindBook, events.KindTrade, events.KindAccount} {
		subs[kind] = s.bus.Subscribe(kind, listener)
	}
	StreamClients.Inc()

	s.logger.Info("ws-client-connected",
		zap.String("remote", r.RemoteAddr),
		zap.String("account", account))

	done := make(chan struct{})

	// Read pump: the client sends nothing we act on; reading surfaces
	// closes and errors.
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		for kind, id := range subs {
			s.bus.Unsubscribe(kind, id)
		}
		StreamClients.Dec()
		_ = conn.Close()
		s.logger.Info("ws-client-disconnected", zap.String("remote", r.RemoteAddr))
	}()

	for {
		select {
		case <-done:
			return
		case evt := <-queue:
			data, err := json.Marshal(evt)
			if err != nil {
				s.logger.Error("ws-marshal-failed", zap.Error(err))
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}
