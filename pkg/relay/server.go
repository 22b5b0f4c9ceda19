package relay

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/tandem-rtc/tandem/pkg/common"
	"github.com/tandem-rtc/tandem/pkg/room"
	"github.com/tandem-rtc/tandem/pkg/signaling"
	"golang.org/x/exp/slices"
)

var ErrSlowConsumer = errors.New("endpoint does not keep up with its messages")

// The signaling relay: accepts WebSocket connections on `/ws` and routes their messages
// through the hub. Also serves `/health`.
type Server struct {
	config   Config
	hub      *Hub
	upgrader websocket.Upgrader
	mux      *http.ServeMux
	logger   *logrus.Entry

	connections sync.WaitGroup
}

func NewServer(config Config, logger *logrus.Entry) *Server {
	server := &Server{
		config: config,
		hub:    NewHub(logger),
		mux:    http.NewServeMux(),
		logger: logger,
	}

	server.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     server.checkOrigin,
	}

	server.mux.HandleFunc("/ws", server.handleWebSocket)
	server.mux.HandleFunc("/health", server.handleHealth)

	return server
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) Hub() *Hub {
	return s.hub
}

// Blocks until all connection handlers returned.
func (s *Server) Wait() {
	s.connections.Wait()
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.config.AllowedOrigins) == 0 {
		return true
	}

	return slices.Contains(s.config.AllowedOrigins, r.Header.Get("Origin"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"rooms":  len(s.hub.Registry().Rooms()),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("failed to upgrade the connection")
		return
	}

	s.connections.Add(1)
	defer s.connections.Done()

	id := room.EndpointID(uuid.NewString())
	conn := newConnection(ws, s.config, s.logger.WithFields(logrus.Fields{
		"endpoint": id,
		"remote":   r.RemoteAddr,
	}))

	if err := s.hub.Attach(id, conn); err != nil {
		conn.logger.WithError(err).Error("failed to attach the endpoint")
		conn.close()
		return
	}

	conn.logger.Info("endpoint connected")

	defer func() {
		s.hub.Detach(id)
		conn.close()
		conn.logger.Info("endpoint disconnected")
	}()

	conn.readLoop(func(env signaling.Envelope) {
		s.hub.Handle(id, env)
	})
}

// A single WebSocket connection of an endpoint. Reading happens on the handler's
// goroutine, writing on the goroutine of the outgoing worker.
type connection struct {
	ws       *websocket.Conn
	config   Config
	outgoing *common.Worker[signaling.Envelope]
	logger   *logrus.Entry

	closeOnce sync.Once
}

func newConnection(ws *websocket.Conn, config Config, logger *logrus.Entry) *connection {
	conn := &connection{
		ws:     ws,
		config: config,
		logger: logger,
	}

	conn.outgoing = common.StartWorker(common.WorkerConfig[signaling.Envelope]{
		ChannelSize: config.QueueSize,
		Timeout:     config.pingPeriod(),
		OnTimeout:   conn.ping,
		OnTask:      conn.write,
	})

	return conn
}

// Implements `Outbound`.
func (c *connection) Deliver(env signaling.Envelope) error {
	err := c.outgoing.Send(env)
	if errors.Is(err, common.ErrWorkerTooBusy) {
		c.logger.WithField("event", env.Event).Error("slow consumer, closing the connection")
		// The reader notices it and detaches the endpoint.
		_ = c.ws.Close()
		return ErrSlowConsumer
	}

	return err
}

func (c *connection) readLoop(handle func(signaling.Envelope)) {
	c.ws.SetReadLimit(c.config.MaxMessageSize)
	c.extendDeadline()

	c.ws.SetPongHandler(func(string) error {
		c.extendDeadline()
		return nil
	})

	c.ws.SetPingHandler(func(data string) error {
		c.extendDeadline()
		err := c.ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.config.writeWait()))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.WithError(err).Warn("connection lost")
			}
			return
		}

		c.extendDeadline()

		if messageType != websocket.TextMessage {
			c.logger.WithField("type", messageType).Warn("non-text message, ignoring")
			continue
		}

		var env signaling.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			c.logger.WithError(err).Warn("malformed message, ignoring")
			continue
		}

		// Endpoints can't impersonate each other, the sender is stamped by the registry.
		env.From = ""
		handle(env)
	}
}

func (c *connection) extendDeadline() {
	_ = c.ws.SetReadDeadline(time.Now().Add(c.config.pongWait()))
}

func (c *connection) write(env signaling.Envelope) {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.config.writeWait()))
	if err := c.ws.WriteJSON(env); err != nil {
		c.logger.WithError(err).WithField("event", env.Event).Warn("failed to write a message")
		_ = c.ws.Close()
	}
}

func (c *connection) ping() {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.config.writeWait()))
	if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.WithError(err).Debug("failed to ping")
		_ = c.ws.Close()
	}
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		c.outgoing.Stop()

		select {
		case <-c.outgoing.Done():
		case <-time.After(c.config.writeWait()):
		}

		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, message, time.Now().Add(c.config.writeWait()))
		_ = c.ws.Close()
	})
}
