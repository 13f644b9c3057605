// Package events publishes committed coin transactions to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/IBM/sarama"

	"github.com/Proton-105/account-ledger/pkg/config"
)

// CoinTransactionEvent is the message emitted after an audit row is stored.
type CoinTransactionEvent struct {
	Reference   string    `json:"reference"`
	AccountID   uint32    `json:"account_id"`
	Type        string    `json:"type"`
	CoinType    string    `json:"coin_type"`
	Amount      uint32    `json:"amount"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Publisher delivers coin transaction events.
type Publisher interface {
	PublishCoinTransaction(ctx context.Context, event CoinTransactionEvent) error
	Close() error
}

// KafkaPublisher sends events with a synchronous producer keyed by account
// id so one account's events stay ordered within a partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *slog.Logger
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewSaramaConfig returns the producer settings used in production.
func NewSaramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	return cfg
}

// NewKafkaPublisher dials the brokers listed in cfg.
func NewKafkaPublisher(cfg config.KafkaConfig, log *slog.Logger) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return NewKafkaPublisherWithProducer(producer, cfg.Topic, log), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer.
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string, log *slog.Logger) *KafkaPublisher {
	if log == nil {
		log = slog.Default()
	}

	return &KafkaPublisher{
		producer: producer,
		topic:    topic,
		log:      log.With(slog.String("component", "events")),
	}
}

func (p *KafkaPublisher) PublishCoinTransaction(ctx context.Context, event CoinTransactionEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode coin transaction event: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.FormatUint(uint64(event.AccountID), 10)),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("reference"), Value: []byte(event.Reference)},
		},
	})
	if err != nil {
		return fmt.Errorf("send coin transaction event: %w", err)
	}

	p.log.DebugContext(ctx, "coin transaction published",
		slog.String("reference", event.Reference),
		slog.Int("partition", int(partition)),
		slog.Int64("offset", offset),
	)

	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// Nop drops every event. It is used when Kafka is disabled.
type Nop struct{}

func (Nop) PublishCoinTransaction(context.Context, CoinTransactionEvent) error { return nil }

func (Nop) Close() error { return nil }
