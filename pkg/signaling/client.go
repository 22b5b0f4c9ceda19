package signaling

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/tandem-rtc/tandem/pkg/common"
)

const (
	// Time allowed to write a message to the relay.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the relay.
	pongWait = 60 * time.Second

	// Send pings to the relay with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from the relay. Enough for SDP blobs.
	maxMessageSize = 64 * 1024

	// How many outgoing messages we buffer before considering the channel stalled.
	outgoingQueueSize = 256
)

// Signaling channel over a WebSocket connection to the relay.
type Client struct {
	*dispatcher

	conn     *websocket.Conn
	outgoing *common.Worker[Envelope]
	logger   *logrus.Entry

	startOnce sync.Once
	closeOnce sync.Once
	// Set once the connection can't be written to anymore.
	broken atomic.Bool
}

// Dials the relay. Reading starts once `Start` is called, so that handlers can be bound first.
func Dial(ctx context.Context, url string, header http.Header, logger *logrus.Entry) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to %s: %v", ErrSignalingUnavailable, url, err)
	}

	return newClient(conn, logger), nil
}

func newClient(conn *websocket.Conn, logger *logrus.Entry) *Client {
	client := &Client{
		dispatcher: newDispatcher(),
		conn:       conn,
		logger:     logger,
	}

	client.outgoing = common.StartWorker(common.WorkerConfig[Envelope]{
		ChannelSize: outgoingQueueSize,
		Timeout:     pingPeriod,
		OnTimeout:   client.ping,
		OnTask:      client.write,
	})

	return client
}

// Starts reading from the connection.
func (c *Client) Start() {
	c.startOnce.Do(func() {
		c.conn.SetReadLimit(maxMessageSize)
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(pongWait))
		})

		go c.readPump()
	})
}

func (c *Client) Send(event string, payload any) error {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		return err
	}

	switch err := c.outgoing.Send(env); {
	case errors.Is(err, common.ErrWorkerClosed):
		return ErrChannelClosed
	case errors.Is(err, common.ErrWorkerTooBusy):
		c.logger.WithField("event", event).Error("outgoing signaling queue is full, closing the channel")
		c.abort()
		return ErrSignalingUnavailable
	default:
		return err
	}
}

// Closes the connection. Disconnect handlers are called once the reader notices it.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.outgoing.Stop()
		<-c.outgoing.Done()

		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeWait))
		_ = c.conn.Close()
	})
}

// Drops the connection without flushing the queued messages. Doesn't wait for the writer.
func (c *Client) abort() {
	c.closeOnce.Do(func() {
		c.broken.Store(true)
		_ = c.conn.Close()
		c.outgoing.Stop()
	})
}

func (c *Client) readPump() {
	var readErr error
	defer func() {
		c.Close()
		c.disconnect(fmt.Errorf("%w: %v", ErrSignalingUnavailable, readErr))
	}()

	for {
		var env Envelope
		if readErr = c.conn.ReadJSON(&env); readErr != nil {
			if websocket.IsUnexpectedCloseError(readErr, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.WithError(readErr).Warn("signaling connection lost")
			}
			return
		}

		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if !c.dispatch(env) {
			c.logger.WithField("event", env.Event).Debug("no handler for signaling event, ignoring")
		}
	}
}

func (c *Client) write(env Envelope) {
	if c.broken.Load() {
		return
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(env); err != nil {
		c.logger.WithError(err).WithField("event", env.Event).Error("failed to write signaling message")
		c.broken.Store(true)
		_ = c.conn.Close()
	}
}

func (c *Client) ping() {
	if c.broken.Load() {
		return
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.WithError(err).Warn("failed to ping the relay")
		_ = c.conn.Close()
	}
}
