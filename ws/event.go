// Package ws, WebSocket bağlantılarını ve kanal bazlı event fan-out'unu yönetir.
//
// Protokol:
//
//	Server → Client:  {"op":"ready","d":{"connection_id":"..."}}
//	Client → Server:  {"op":"subscribe","d":{"channel":"chat.5"}}
//	Server → Client:  {"op":"subscribed","d":{"channel":"chat.5"}}
//	Server → Client:  {"op":"event","d":{"channel":"chat.5","event":"message.sent","payload":{...}},"seq":12}
//	Client → Server:  {"op":"heartbeat"}
//
// Kanallar:
//   - chat.{id}: sohbetin güncel üyeleri abone olabilir
//   - user.{id}: sadece o kullanıcı abone olabilir (bağlantıda otomatik)
package ws

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/akinalp/relay/models"
)

// Operation tipleri.
const (
	OpHeartbeat    = "heartbeat"
	OpHeartbeatAck = "heartbeat_ack"
	OpReady        = "ready"
	OpSubscribe    = "subscribe"
	OpUnsubscribe  = "unsubscribe"
	OpSubscribed   = "subscribed"
	OpUnsubscribed = "unsubscribed"
	OpError        = "error"
	OpEvent        = "event"
)

// Event isimleri. Client'lar bu string'lerle eşleşir; değiştirilmemeli.
const (
	EventMessageSent    = "message.sent"
	EventMessageRead    = "message.read"
	EventMessageDeleted = "message.deleted"
	EventUserTyping     = "user.typing"
	EventUserPresence   = "user.presence"
	EventChatUpdated    = "chat.updated"
)

// DeleteScopeAll, message.deleted event'inde "herkes için silindi" anlamına gelir.
const DeleteScopeAll = "all"

// Event, WebSocket üzerinden giden/gelen tüm mesajların zarfı.
// Seq sadece sunucu → client yönünde, kayıp tespiti için kullanılır.
type Event struct {
	Op   string `json:"op"`
	Data any    `json:"d,omitempty"`
	Seq  int64  `json:"seq,omitempty"`
}

// ReadyData, bağlantı kurulunca gönderilir. ConnectionID HTTP isteklerinde
// X-Socket-ID header'ı olarak geri gönderilir.
type ReadyData struct {
	ConnectionID string `json:"connection_id"`
	UserID       int64  `json:"user_id"`
}

// ChannelData, subscribe/unsubscribe isteği ve cevabı.
type ChannelData struct {
	Channel string `json:"channel"`
}

// ErrorData, client'a dönen protokol hatası.
type ErrorData struct {
	Channel string `json:"channel,omitempty"`
	Message string `json:"message"`
}

// ChannelMessage, OpEvent'in data alanı.
type ChannelMessage struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// ─── Kanal isimleri ───

const (
	chatChannelPrefix = "chat."
	userChannelPrefix = "user."
)

// ChannelKind, kanalın türü.
type ChannelKind int

const (
	ChannelUnknown ChannelKind = iota
	ChannelChat
	ChannelUser
)

// ChatChannel, sohbet kanalının adını döner: "chat.{id}".
func ChatChannel(chatID int64) string {
	return chatChannelPrefix + strconv.FormatInt(chatID, 10)
}

// UserChannel, kullanıcı kanalının adını döner: "user.{id}".
func UserChannel(userID int64) string {
	return userChannelPrefix + strconv.FormatInt(userID, 10)
}

// ParseChannel, kanal adını türüne ve id'sine ayırır.
func ParseChannel(channel string) (ChannelKind, int64, error) {
	var kind ChannelKind
	var rest string
	switch {
	case strings.HasPrefix(channel, chatChannelPrefix):
		kind, rest = ChannelChat, strings.TrimPrefix(channel, chatChannelPrefix)
	case strings.HasPrefix(channel, userChannelPrefix):
		kind, rest = ChannelUser, strings.TrimPrefix(channel, userChannelPrefix)
	default:
		return ChannelUnknown, 0, fmt.Errorf("unknown channel %q", channel)
	}

	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return ChannelUnknown, 0, fmt.Errorf("invalid channel id in %q", channel)
	}
	return kind, id, nil
}

// ─── Event payload'ları ───

// EventUser, event payload'larında kullanılan kısa kullanıcı bilgisi.
// Her event sadece ihtiyaç duyduğu alanları doldurur.
type EventUser struct {
	ID    int64   `json:"id"`
	Name  *string `json:"name,omitempty"`
	Email string  `json:"email,omitempty"`
}

// MessageSentPayload → message.sent (chat.{id})
type MessageSentPayload struct {
	Message *models.Message `json:"message"`
}

// MessageReadPayload → message.read (chat.{id})
type MessageReadPayload struct {
	ChatID            int64     `json:"chat_id"`
	User              EventUser `json:"user"`
	LastReadMessageID int64     `json:"last_read_message_id"`
}

// MessageDeletedPayload → message.deleted (chat.{id})
type MessageDeletedPayload struct {
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id"`
	Scope     string `json:"scope"`
}

// TypingPayload → user.typing (chat.{id})
type TypingPayload struct {
	User EventUser `json:"user"`
}

// PresencePayload → user.presence (chat.{id})
type PresencePayload struct {
	ChatID     int64     `json:"chat_id"`
	User       EventUser `json:"user"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// ChatUpdatedPayload → chat.updated (user.{id})
type ChatUpdatedPayload struct {
	Chat        ChatRef         `json:"chat"`
	LastMessage *models.Message `json:"last_message"`
}

// ChatRef, chat.updated içindeki sohbet özeti.
type ChatRef struct {
	ID    int64               `json:"id"`
	Type  models.ChatType     `json:"type"`
	Title *string             `json:"title,omitempty"`
	Users []models.ChatMember `json:"users"`
}
