package notifications

import (
	"context"
	"fmt"
	"time"

	"ticketon/internal/bookings"
	"ticketon/internal/shared/config"
	"ticketon/pkg/logger"

	"github.com/IBM/sarama"
)

// BookingEventProducer publishes booking lifecycle events to the stream
type BookingEventProducer interface {
	PublishBookingEvent(ctx context.Context, event *BookingEvent) error
	Close() error
}

// KafkaProducerConfig contains configuration for the Kafka producer
type KafkaProducerConfig struct {
	Brokers          []string
	Topic            string
	RetryMax         int
	TimeoutMs        int
	RequiredAcks     sarama.RequiredAcks
	CompressionType  sarama.CompressionCodec
	IdempotentWrites bool
}

// ConfigFromApp maps application configuration onto producer settings
func ConfigFromApp(cfg *config.Config) *KafkaProducerConfig {
	return &KafkaProducerConfig{
		Brokers:          cfg.Kafka.Brokers,
		Topic:            cfg.Kafka.BookingEventsTopic,
		RetryMax:         3,
		TimeoutMs:        10000,
		RequiredAcks:     sarama.WaitForAll,
		CompressionType:  sarama.CompressionSnappy,
		IdempotentWrites: true,
	}
}

// KafkaBookingEventProducer publishes booking events to Kafka
type KafkaBookingEventProducer struct {
	producer sarama.SyncProducer
	config   *KafkaProducerConfig
	log      *logger.Logger
}

// NewKafkaProducer creates a Kafka-backed booking event producer
func NewKafkaProducer(config *KafkaProducerConfig, log *logger.Logger) (BookingEventProducer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = config.RequiredAcks
	saramaConfig.Producer.Compression = config.CompressionType
	saramaConfig.Producer.Retry.Max = config.RetryMax
	saramaConfig.Producer.Timeout = time.Duration(config.TimeoutMs) * time.Millisecond
	saramaConfig.Producer.Idempotent = config.IdempotentWrites
	if config.IdempotentWrites {
		saramaConfig.Net.MaxOpenRequests = 1
	}

	// Hash partitioner keeps one user's events on one partition
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return &KafkaBookingEventProducer{
		producer: producer,
		config:   config,
		log:      log,
	}, nil
}

// PublishBookingEvent publishes a single booking event
func (p *KafkaBookingEventProducer) PublishBookingEvent(ctx context.Context, event *BookingEvent) error {
	messageBytes, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal booking event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.config.Topic,
		Key:   sarama.StringEncoder(event.GetPartitionKey()),
		Value: sarama.ByteEncoder(messageBytes),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_id"), Value: []byte(event.ID.String())},
			{Key: []byte("event_type"), Value: []byte(event.Type)},
			{Key: []byte("booking_id"), Value: []byte(event.BookingID.String())},
			{Key: []byte("producer"), Value: []byte("ticketon-core")},
		},
		Timestamp: event.CreatedAt,
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to send booking event: %w", err)
	}

	p.log.InfoWithContext(ctx, "Booking Event Published", map[string]interface{}{
		"type":      string(event.Type),
		"partition": partition,
		"offset":    offset,
	})
	return nil
}

// Close closes the Kafka producer
func (p *KafkaBookingEventProducer) Close() error {
	if p.producer != nil {
		if err := p.producer.Close(); err != nil {
			return fmt.Errorf("failed to close Kafka producer: %w", err)
		}
	}
	return nil
}

// noopProducer drops events; used when the Kafka stream is disabled
type noopProducer struct{}

func (noopProducer) PublishBookingEvent(context.Context, *BookingEvent) error { return nil }
func (noopProducer) Close() error                                             { return nil }

// NewProducer returns the configured producer, or a no-op one when the
// event stream is disabled.
func NewProducer(cfg *config.Config, log *logger.Logger) (BookingEventProducer, error) {
	if !cfg.Kafka.Enabled {
		return noopProducer{}, nil
	}
	return NewKafkaProducer(ConfigFromApp(cfg), log)
}

// Service adapts booking lifecycle transitions onto the event stream. It is
// the LifecycleNotifier the coordinator and expiration engine call into;
// publishing failures are logged, never propagated into the booking path.
type Service struct {
	producer BookingEventProducer
	log      *logger.Logger
}

func NewService(producer BookingEventProducer, log *logger.Logger) *Service {
	return &Service{producer: producer, log: log}
}

func (s *Service) BookingsReserved(ctx context.Context, list []bookings.Booking) {
	for i := range list {
		event := NewBookingEvent(BookingEventReserved, list[i].ID, list[i].SessionID, list[i].SeatID, list[i].UserID)
		event.Amount = list[i].TotalPrice
		s.emit(ctx, event)
	}
}

func (s *Service) BookingConfirmed(ctx context.Context, b *bookings.Booking) {
	event := NewBookingEvent(BookingEventConfirmed, b.ID, b.SessionID, b.SeatID, b.UserID)
	event.Amount = b.TotalPrice
	s.emit(ctx, event)
}

func (s *Service) BookingCancelled(ctx context.Context, b *bookings.Booking, reason string) {
	eventType := BookingEventCancelled
	if reason == "refund" {
		eventType = BookingEventRefunded
	}
	event := NewBookingEvent(eventType, b.ID, b.SessionID, b.SeatID, b.UserID)
	event.Amount = b.TotalPrice
	event.Reason = reason
	s.emit(ctx, event)
}

func (s *Service) BookingExpired(ctx context.Context, row bookings.ExpiredBooking) {
	event := NewBookingEvent(BookingEventExpired, row.BookingID, row.SessionID, row.SeatID, row.UserID)
	event.Reason = "timeout"
	s.emit(ctx, event)
}

func (s *Service) emit(ctx context.Context, event *BookingEvent) {
	if err := s.producer.PublishBookingEvent(ctx, event); err != nil {
		s.log.ErrorWithContext(ctx, "failed to publish booking event", err, map[string]interface{}{
			"type": string(event.Type),
		})
	}
}

// Close releases the underlying producer
func (s *Service) Close() error {
	return s.producer.Close()
}
