// Package wstest, service testleri için ws.Publisher ve ws.ChannelRevoker fake'i sağlar.
package wstest

import (
	"encoding/json"
	"sync"
)

// Published, kaydedilmiş tek bir Publish çağrısı.
type Published struct {
	Channel       string
	Event         string
	Payload       any
	ExcludeConnID string
}

// Decode, payload'ı JSON üzerinden hedef tipe çevirir (client'ın göreceği hal).
func (p Published) Decode(v any) error {
	raw, err := json.Marshal(p.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// Revoked, kaydedilmiş tek bir RevokeChannel çağrısı.
type Revoked struct {
	UserID  int64
	Channel string
}

// Recorder, ws.Publisher ve ws.ChannelRevoker'ı karşılar, çağrıları sırayla saklar.
type Recorder struct {
	mu      sync.Mutex
	events  []Published
	revoked []Revoked
}

// Publish implements ws.Publisher.
func (r *Recorder) Publish(channel, event string, payload any, excludeConnID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Published{
		Channel:       channel,
		Event:         event,
		Payload:       payload,
		ExcludeConnID: excludeConnID,
	})
}

// RevokeChannel implements ws.ChannelRevoker.
func (r *Recorder) RevokeChannel(userID int64, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked = append(r.revoked, Revoked{UserID: userID, Channel: channel})
}

// Revocations, RevokeChannel kayıtlarının kopyasını döner.
func (r *Recorder) Revocations() []Revoked {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Revoked, len(r.revoked))
	copy(out, r.revoked)
	return out
}

// Events, kayıtların kopyasını döner.
func (r *Recorder) Events() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Published, len(r.events))
	copy(out, r.events)
	return out
}

// ByEvent, belirli isimdeki event'leri döner.
func (r *Recorder) ByEvent(event string) []Published {
	var out []Published
	for _, p := range r.Events() {
		if p.Event == event {
			out = append(out, p)
		}
	}
	return out
}

// Reset, kayıtları temizler.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.revoked = nil
}
