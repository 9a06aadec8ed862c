package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocket bağlantı sabitleri
const (
	// writeWait: Bir mesajı yazmak için maksimum bekleme süresi.
	writeWait = 10 * time.Second

	// pongWait: Client'ın heartbeat göndermesi için beklenen maksimum süre.
	// 3 heartbeat kaçırma = 30s × 3 = 90s.
	pongWait = 90 * time.Second

	// maxMessageSize: Client'tan gelen mesajlar sadece kontrol mesajlarıdır
	// (heartbeat, subscribe). Veri HTTP ile gönderilir.
	maxMessageSize = 4096

	// sendBufferSize: Buffer dolarsa client yavaş sayılır ve düşürülür.
	sendBufferSize = 256
)

var (
	errForbiddenChannel = errors.New("not allowed to subscribe to this channel")
	errClientGone       = errors.New("connection closed")
)

// Client, tek bir WebSocket bağlantısını temsil eder.
//
// Her bağlantı için iki goroutine çalışır:
//   - ReadPump: client'tan gelen kontrol mesajlarını okur
//   - WritePump: send channel'ındaki mesajları bağlantıya yazar
//
// gorilla/websocket aynı anda tek okuyucu ve tek yazıcı destekler.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	connID string
	userID int64

	send chan []byte
	// channels, hub.mu altında okunur/yazılır.
	channels map[string]struct{}

	mu sync.Mutex // conn yazımlarını korur
}

func newClient(hub *Hub, conn *websocket.Conn, connID string, userID int64) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		connID:   connID,
		userID:   userID,
		send:     make(chan []byte, sendBufferSize),
		channels: make(map[string]struct{}),
	}
}

// ConnID, bağlantının kimliği.
func (c *Client) ConnID() string { return c.connID }

// UserID, bağlantının sahibi.
func (c *Client) UserID() int64 { return c.userID }

// ReadPump, bağlantı kapanana kadar client mesajlarını okur.
// Çıkışta client Hub'dan çıkarılır.
func (c *Client) ReadPump() {
	log := c.hub.logger.With(zap.Int64("user_id", c.userID), zap.String("conn_id", c.connID))

	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Warn("failed to set read deadline", zap.Error(err))
		return
	}

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Info("unexpected close", zap.Error(err))
			}
			return
		}

		var event struct {
			Op   string          `json:"op"`
			Data json.RawMessage `json:"d"`
		}
		if err := json.Unmarshal(raw, &event); err != nil {
			log.Debug("invalid message", zap.Error(err))
			continue
		}

		if !c.handleEvent(log, event.Op, event.Data) {
			return
		}
	}
}

// handleEvent, false dönerse bağlantı kapatılır.
func (c *Client) handleEvent(log *zap.Logger, op string, data json.RawMessage) bool {
	switch op {
	case OpHeartbeat:
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Warn("failed to set read deadline", zap.Error(err))
			return false
		}
		c.hub.sendTo(c, Event{Op: OpHeartbeatAck})

	case OpSubscribe:
		channel, ok := c.parseChannel(data)
		if !ok {
			return true
		}
		if err := c.hub.Subscribe(context.Background(), c, channel); err != nil {
			if !errors.Is(err, errForbiddenChannel) {
				log.Warn("subscribe failed", zap.String("channel", channel), zap.Error(err))
			}
			c.hub.sendTo(c, Event{Op: OpError, Data: ErrorData{Channel: channel, Message: err.Error()}})
			return true
		}
		c.hub.sendTo(c, Event{Op: OpSubscribed, Data: ChannelData{Channel: channel}})

	case OpUnsubscribe:
		channel, ok := c.parseChannel(data)
		if !ok {
			return true
		}
		c.hub.Unsubscribe(c, channel)
		c.hub.sendTo(c, Event{Op: OpUnsubscribed, Data: ChannelData{Channel: channel}})

	default:
		log.Debug("unknown op", zap.String("op", op))
	}
	return true
}

func (c *Client) parseChannel(data json.RawMessage) (string, bool) {
	var d ChannelData
	if err := json.Unmarshal(data, &d); err != nil || d.Channel == "" {
		c.hub.sendTo(c, Event{Op: OpError, Data: ErrorData{Message: "channel is required"}})
		return "", false
	}
	return d.Channel, true
}

// WritePump, send channel'ındaki mesajları bağlantıya yazar.
// Channel kapanınca (Hub client'ı çıkardı) close frame gönderip döner.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for {
		message, ok := <-c.send
		if !ok {
			_ = c.writeMessage(websocket.CloseMessage, nil)
			return
		}

		if err := c.writeMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

func (c *Client) writeMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
