package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// BridgeChannel, instance'lar arası event'lerin taşındığı Redis pub/sub kanalı.
	BridgeChannel = "relay:ws:events"

	bridgeQueueSize      = 1024
	bridgePublishTimeout = 2 * time.Second
	bridgeRetryDelay     = 2 * time.Second
)

// RedisBridge, birden fazla sunucu instance'ı çalışırken event'leri
// Redis pub/sub üzerinden diğer instance'ların Hub'larına taşır.
//
// Her instance kendi yayınını da alır; Delivery.Origin ile ayıklanır.
type RedisBridge struct {
	rdb    *redis.Client
	hub    *Hub
	queue  chan Delivery
	logger *zap.Logger
}

// NewRedisBridge, bridge'i oluşturur ve hub'a forwarder olarak ekler.
func NewRedisBridge(rdb *redis.Client, hub *Hub, logger *zap.Logger) *RedisBridge {
	b := &RedisBridge{
		rdb:    rdb,
		hub:    hub,
		queue:  make(chan Delivery, bridgeQueueSize),
		logger: logger.Named("ws.bridge"),
	}
	hub.AddForwarder(b)
	return b
}

// Forward, Delivery'yi yayın kuyruğuna ekler. Kuyruk doluysa düşürür.
func (b *RedisBridge) Forward(d Delivery) {
	select {
	case b.queue <- d:
	default:
		b.logger.Warn("bridge queue full, dropping event",
			zap.String("channel", d.Channel),
			zap.String("event", d.Event),
		)
	}
}

// Run, ctx iptal edilene kadar yayın ve dinleme döngülerini çalıştırır.
func (b *RedisBridge) Run(ctx context.Context) {
	go b.publishLoop(ctx)

	for {
		if err := b.subscribeLoop(ctx); err != nil {
			b.logger.Warn("bridge subscription ended", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(bridgeRetryDelay):
		}
	}
}

func (b *RedisBridge) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-b.queue:
			data, err := json.Marshal(d)
			if err != nil {
				b.logger.Error("failed to marshal delivery", zap.Error(err))
				continue
			}
			pctx, cancel := context.WithTimeout(ctx, bridgePublishTimeout)
			err = b.rdb.Publish(pctx, BridgeChannel, data).Err()
			cancel()
			if err != nil {
				b.logger.Warn("failed to publish to bridge",
					zap.String("channel", d.Channel),
					zap.Error(err),
				)
			}
		}
	}
}

func (b *RedisBridge) subscribeLoop(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, BridgeChannel)
	defer sub.Close()

	// Receive, aboneliğin kurulduğunu doğrular.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var d Delivery
			if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil {
				b.logger.Debug("invalid bridge payload", zap.Error(err))
				continue
			}
			if d.Origin == b.hub.InstanceID() {
				continue
			}
			b.hub.DeliverLocal(d)
		}
	}
}
