package ws

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// authorizeTimeout, subscribe sırasında Authorizer'a verilen süre.
const authorizeTimeout = 5 * time.Second

// Publisher, service katmanının event yayınlamak için kullandığı interface.
//
// excludeConnID boş değilse o bağlantıya gönderilmez ("publish to others"):
// işlemi yapan client zaten kendi state'ini güncellemiştir.
// Publish bloklamaz; teslimat garantisi yoktur.
type Publisher interface {
	Publish(channel, event string, payload any, excludeConnID string)
}

// ChannelRevoker, kanal aboneliklerini sunucu tarafında düşürür.
// Silinen sohbetlerin chat.{id} kanalı için ChatService kullanır.
type ChannelRevoker interface {
	RevokeChannel(userID int64, channel string)
}

// Authorizer, userID'nin channel'a abone olup olamayacağına karar verir.
// main.go'da membership repository ile bağlanır.
type Authorizer func(ctx context.Context, userID int64, channel string) (bool, error)

// Delivery, bir kanal mesajının instance'lar ve sink'ler arasında taşınan hali.
type Delivery struct {
	Origin        string          `json:"origin"`
	Channel       string          `json:"channel"`
	Event         string          `json:"event"`
	Payload       json.RawMessage `json:"payload"`
	ExcludeConnID string          `json:"exclude_conn_id,omitempty"`
}

// Forwarder, lokal teslimattan sonra Delivery'yi dışarı iletir
// (Redis bridge, Kafka sink). Forward bloklamamalıdır.
type Forwarder interface {
	Forward(d Delivery)
}

// Hub, tüm WebSocket bağlantılarını ve kanal aboneliklerini yönetir.
//
// register/unregister channel'ları Run() goroutine'inde işlenir;
// abonelik ve publish işlemleri RWMutex ile korunur.
type Hub struct {
	instanceID string

	// conns: connID → client
	conns map[string]*Client
	// subs: kanal adı → o kanala abone client'lar
	subs map[string]map[*Client]struct{}
	mu   sync.RWMutex

	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	stopOnce   sync.Once
	closed     bool

	seq atomic.Int64

	authorize  Authorizer
	forwarders []Forwarder
	logger     *zap.Logger

	// Presence callback'leri; ayrı goroutine'de çağrılır.
	onFirstConnect      func(userID int64)
	onFullyDisconnected func(userID int64)
}

// NewHub, yeni bir Hub oluşturur. authorize nil ise sadece kullanıcının
// kendi user.{id} kanalına izin verilir.
func NewHub(authorize Authorizer, logger *zap.Logger) *Hub {
	return &Hub{
		instanceID: uuid.NewString(),
		conns:      make(map[string]*Client),
		subs:       make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		authorize:  authorize,
		logger:     logger.Named("ws"),
	}
}

// InstanceID, bu process'in hub kimliği. Bridge kendi yayınlarını bununla ayıklar.
func (h *Hub) InstanceID() string { return h.instanceID }

// AddForwarder, Run() başlamadan önce çağrılmalıdır.
func (h *Hub) AddForwarder(f Forwarder) {
	h.forwarders = append(h.forwarders, f)
}

// OnUserFirstConnect, kullanıcının bu instance'taki ilk bağlantısında çağrılır.
// Run() başlamadan önce ayarlanmalıdır.
func (h *Hub) OnUserFirstConnect(fn func(userID int64)) {
	h.onFirstConnect = fn
}

// OnUserFullyDisconnected, kullanıcının bu instance'taki son bağlantısı kapanınca çağrılır.
func (h *Hub) OnUserFullyDisconnected(fn func(userID int64)) {
	h.onFullyDisconnected = fn
}

// Run, Hub'ın ana döngüsü. Shutdown çağrılınca döner.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case <-h.stop:
			return
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(c.send)
		return
	}
	h.conns[c.connID] = c
	h.subscribeLocked(c, UserChannel(c.userID))
	first := len(h.subs[UserChannel(c.userID)]) == 1
	h.mu.Unlock()

	if first && h.onFirstConnect != nil {
		go h.onFirstConnect(c.userID)
	}

	h.logger.Debug("client connected",
		zap.Int64("user_id", c.userID),
		zap.String("conn_id", c.connID),
	)

	h.sendTo(c, Event{Op: OpReady, Data: ReadyData{ConnectionID: c.connID, UserID: c.userID}})
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c.connID]; !ok {
		return
	}
	delete(h.conns, c.connID)
	for channel := range c.channels {
		h.unsubscribeLocked(c, channel)
	}
	close(c.send)

	if len(h.subs[UserChannel(c.userID)]) == 0 && h.onFullyDisconnected != nil {
		go h.onFullyDisconnected(c.userID)
	}

	h.logger.Debug("client disconnected",
		zap.Int64("user_id", c.userID),
		zap.String("conn_id", c.connID),
	)
}

// ─── Abonelik ───

// Subscribe, Authorizer'dan geçen client'ı kanala ekler.
func (h *Hub) Subscribe(ctx context.Context, c *Client, channel string) error {
	kind, id, err := ParseChannel(channel)
	if err != nil {
		return err
	}

	allowed := kind == ChannelUser && id == c.userID
	if !allowed && h.authorize != nil {
		actx, cancel := context.WithTimeout(ctx, authorizeTimeout)
		defer cancel()
		allowed, err = h.authorize(actx, c.userID, channel)
		if err != nil {
			return err
		}
	}
	if !allowed {
		return errForbiddenChannel
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c.connID]; !ok {
		return errClientGone
	}
	h.subscribeLocked(c, channel)
	return nil
}

// Unsubscribe, client'ı kanaldan çıkarır. Kullanıcının kendi user.{id}
// kanalı bağlantı boyunca kalır; presence sayımı buna dayanır.
func (h *Hub) Unsubscribe(c *Client, channel string) {
	if channel == UserChannel(c.userID) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(c, channel)
}

// RevokeChannel, kullanıcının tüm bağlantılarını kanaldan çıkarır.
// userID 0 ise kanalın tüm aboneleri çıkarılır (silinen sohbet).
func (h *Hub) RevokeChannel(userID int64, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.subs[channel] {
		if userID == 0 || c.userID == userID {
			h.unsubscribeLocked(c, channel)
		}
	}
}

func (h *Hub) subscribeLocked(c *Client, channel string) {
	set, ok := h.subs[channel]
	if !ok {
		set = make(map[*Client]struct{})
		h.subs[channel] = set
	}
	set[c] = struct{}{}
	c.channels[channel] = struct{}{}
}

func (h *Hub) unsubscribeLocked(c *Client, channel string) {
	delete(c.channels, channel)
	set, ok := h.subs[channel]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.subs, channel)
	}
}

// ─── Publish ───

// Publish, event'i kanala abone lokal bağlantılara teslim eder ve
// kayıtlı forwarder'lara (diğer instance'lar, Kafka) iletir.
func (h *Hub) Publish(channel, event string, payload any, excludeConnID string) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal event payload",
			zap.String("channel", channel),
			zap.String("event", event),
			zap.Error(err),
		)
		return
	}

	d := Delivery{
		Origin:        h.instanceID,
		Channel:       channel,
		Event:         event,
		Payload:       raw,
		ExcludeConnID: excludeConnID,
	}

	h.DeliverLocal(d)
	for _, f := range h.forwarders {
		f.Forward(d)
	}
}

// DeliverLocal, Delivery'yi sadece bu instance'taki abonelere gönderir.
// Redis bridge diğer instance'lardan gelen mesajlar için bunu çağırır.
func (h *Hub) DeliverLocal(d Delivery) {
	data, err := json.Marshal(Event{
		Op: OpEvent,
		Data: ChannelMessage{
			Channel: d.Channel,
			Event:   d.Event,
			Payload: d.Payload,
		},
		Seq: h.seq.Add(1),
	})
	if err != nil {
		h.logger.Error("failed to marshal event", zap.String("event", d.Event), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.subs[d.Channel] {
		if d.ExcludeConnID != "" && c.connID == d.ExcludeConnID {
			continue
		}
		h.trySend(c, data)
	}
}

// sendTo, tek bir client'a event gönderir (ready, ack, hata).
func (h *Hub) sendTo(c *Client, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal event", zap.String("op", event.Op), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.conns[c.connID]; !ok {
		return
	}
	h.trySend(c, data)
}

// trySend, mu en az RLock ile tutulurken çağrılır. Buffer doluysa
// client yavaş demektir; bağlantı ayrı goroutine'de düşürülür.
func (h *Hub) trySend(c *Client, data []byte) {
	select {
	case c.send <- data:
	default:
		h.logger.Warn("send buffer full, dropping connection",
			zap.Int64("user_id", c.userID),
			zap.String("conn_id", c.connID),
		)
		go h.Unregister(c)
	}
}

// Register, client'ı Run() döngüsüne ekler.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.stop:
		close(c.send)
	}
}

// Unregister, client'ı Run() döngüsünden çıkarır. Birden fazla çağrı güvenlidir.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stop:
	}
}

// ─── Sorgular ───

// ConnectionCount, aktif bağlantı sayısı.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// SubscriberCount, kanala abone lokal bağlantı sayısı.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}

// Shutdown, tüm bağlantıları kapatır ve Run() döngüsünü sonlandırır.
// WritePump'lar kapanan send channel'ı görünce close frame gönderip çıkar.
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() {
		close(h.stop)

		h.mu.Lock()
		defer h.mu.Unlock()

		h.closed = true
		for id, c := range h.conns {
			close(c.send)
			delete(h.conns, id)
		}
		h.subs = make(map[string]map[*Client]struct{})
	})
}
