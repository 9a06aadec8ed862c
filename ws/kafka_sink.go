package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	sinkQueueSize    = 1024
	sinkWriteTimeout = 5 * time.Second
	sinkDrainTimeout = 5 * time.Second
)

// messageWriter, *kafka.Writer'ın kullandığımız kısmı. Testlerde fake ile değiştirilir.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink, yayınlanan her event'i Kafka topic'ine yazar
// (bildirim servisi, arşiv, analytics gibi downstream consumer'lar için).
//
// Key = kanal adı; aynı kanalın event'leri aynı partition'a düşer ve sıra korunur.
type KafkaSink struct {
	writer messageWriter
	queue  chan Delivery
	logger *zap.Logger
	done   chan struct{}
}

// NewKafkaSink, sink'i oluşturur ve hub'a forwarder olarak ekler.
func NewKafkaSink(brokers []string, topic string, hub *Hub, logger *zap.Logger) *KafkaSink {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	s := newKafkaSink(writer, logger)
	hub.AddForwarder(s)
	return s
}

func newKafkaSink(writer messageWriter, logger *zap.Logger) *KafkaSink {
	return &KafkaSink{
		writer: writer,
		queue:  make(chan Delivery, sinkQueueSize),
		logger: logger.Named("ws.kafka"),
		done:   make(chan struct{}),
	}
}

// Forward, Delivery'yi yazma kuyruğuna ekler. Kuyruk doluysa düşürür.
func (s *KafkaSink) Forward(d Delivery) {
	select {
	case s.queue <- d:
	default:
		s.logger.Warn("kafka queue full, dropping event",
			zap.String("channel", d.Channel),
			zap.String("event", d.Event),
		)
	}
}

// Run, ctx iptal edilene kadar kuyruktaki event'leri Kafka'ya yazar.
// İptalden sonra kuyrukta kalanlar sinkDrainTimeout içinde yazılır;
// döndüğünde writer kapatılmıştır.
func (s *KafkaSink) Run(ctx context.Context) {
	defer close(s.done)
	defer func() {
		if err := s.writer.Close(); err != nil {
			s.logger.Warn("failed to close kafka writer", zap.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.drain()
			return
		case d := <-s.queue:
			s.write(ctx, d)
		}
	}
}

func (s *KafkaSink) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), sinkDrainTimeout)
	defer cancel()

	for {
		if ctx.Err() != nil {
			if n := len(s.queue); n > 0 {
				s.logger.Warn("kafka drain timed out, dropping events", zap.Int("count", n))
			}
			return
		}
		select {
		case d := <-s.queue:
			s.write(ctx, d)
		default:
			return
		}
	}
}

// Done, Run döndüğünde kapanır.
func (s *KafkaSink) Done() <-chan struct{} { return s.done }

func (s *KafkaSink) write(ctx context.Context, d Delivery) {
	value, err := json.Marshal(ChannelMessage{
		Channel: d.Channel,
		Event:   d.Event,
		Payload: d.Payload,
	})
	if err != nil {
		s.logger.Error("failed to marshal kafka message", zap.Error(err))
		return
	}

	wctx, cancel := context.WithTimeout(ctx, sinkWriteTimeout)
	defer cancel()

	err = s.writer.WriteMessages(wctx, kafka.Message{
		Key:   []byte(d.Channel),
		Value: value,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(d.Event)},
			{Key: "origin", Value: []byte(d.Origin)},
		},
	})
	if err != nil {
		s.logger.Warn("failed to write event to kafka",
			zap.String("channel", d.Channel),
			zap.String("event", d.Event),
			zap.Error(err),
		)
	}
}
