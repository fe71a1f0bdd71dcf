package bus

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/campusqa/campusqa/internal/pkg/errors"
	"github.com/campusqa/campusqa/internal/pkg/logger"
)

// KafkaBus is a Kafka-based event bus implementation.
type KafkaBus struct {
	config   KafkaConfig
	producer sarama.SyncProducer
	consumer sarama.ConsumerGroup // nil for publish-only buses
	client   sarama.Client
	log      *logger.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
	closed   bool

	// Consumer coordination
	consumerWg   sync.WaitGroup
	consumerStop chan struct{}
	consumerCtx  context.Context
	cancel       context.CancelFunc
}

// KafkaConfig holds Kafka connection settings.
type KafkaConfig struct {
	Brokers       []string      // Kafka broker addresses
	ConsumerGroup string        // Consumer group ID
	ClientID      string        // Client identifier
	Version       string        // Kafka version (e.g., "2.8.0")
	Timeout       time.Duration // Network timeout (default: 10s)
}

// validate checks the config and fills defaults.
func (c *KafkaConfig) validate() error {
	if len(c.Brokers) == 0 {
		return stderrors.New("kafka brokers cannot be empty")
	}
	if c.ConsumerGroup == "" {
		return stderrors.New("kafka consumer group cannot be empty")
	}
	if c.ClientID == "" {
		c.ClientID = "campusqa"
	}
	if c.Version == "" {
		c.Version = "2.8.0"
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	return nil
}

// saramaConfig builds the client configuration for cfg.
func saramaConfig(cfg KafkaConfig) (*sarama.Config, error) {
	version, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("invalid kafka version %q: %w", cfg.Version, err)
	}

	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Version = version
	kafkaConfig.ClientID = cfg.ClientID
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Return.Errors = true
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll
	kafkaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	kafkaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	kafkaConfig.Consumer.Return.Errors = true
	kafkaConfig.Net.DialTimeout = cfg.Timeout
	kafkaConfig.Net.ReadTimeout = cfg.Timeout
	kafkaConfig.Net.WriteTimeout = cfg.Timeout
	return kafkaConfig, nil
}

// NewKafkaBus connects to Kafka and creates a bus.
func NewKafkaBus(cfg KafkaConfig, log *logger.Logger) (*KafkaBus, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	kafkaConfig, err := saramaConfig(cfg)
	if err != nil {
		return nil, err
	}

	client, err := sarama.NewClient(cfg.Brokers, kafkaConfig)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUnavailable, "failed to create kafka client", err)
	}

	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		client.Close()
		return nil, errors.Wrap(errors.CodeUnavailable, "failed to create kafka producer", err)
	}

	consumer, err := sarama.NewConsumerGroupFromClient(cfg.ConsumerGroup, client)
	if err != nil {
		producer.Close()
		client.Close()
		return nil, errors.Wrap(errors.CodeUnavailable, "failed to create kafka consumer group", err)
	}

	b := newKafkaBus(cfg, producer, log)
	b.client = client
	b.consumer = consumer
	return b, nil
}

// NewKafkaProducerBus creates a publish-only bus around an existing producer.
func NewKafkaProducerBus(producer sarama.SyncProducer, log *logger.Logger) *KafkaBus {
	return newKafkaBus(KafkaConfig{}, producer, log)
}

func newKafkaBus(cfg KafkaConfig, producer sarama.SyncProducer, log *logger.Logger) *KafkaBus {
	if log == nil {
		log = logger.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &KafkaBus{
		config:       cfg,
		producer:     producer,
		log:          log,
		handlers:     make(map[string][]Handler),
		consumerStop: make(chan struct{}),
		consumerCtx:  ctx,
		cancel:       cancel,
	}
}

// Publish publishes an event to a Kafka topic.
func (b *KafkaBus) Publish(ctx context.Context, topic string, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return errors.ServiceUnavailableError("event bus")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, "failed to marshal event", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(data),
		Key:   sarama.StringEncoder(event.ID), // Use event ID as partition key
	}

	if event.CorrelationID != "" {
		msg.Headers = []sarama.RecordHeader{
			{
				Key:   []byte("correlation_id"),
				Value: []byte(event.CorrelationID),
			},
		}
	}

	if _, _, err = b.producer.SendMessage(msg); err != nil {
		return errors.Wrap(errors.CodeUnavailable, "failed to publish to kafka", err)
	}

	return nil
}

// Subscribe registers a handler for events on a Kafka topic.
func (b *KafkaBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.ServiceUnavailableError("event bus")
	}
	if b.consumer == nil {
		return stderrors.New("kafka bus is publish-only")
	}

	isNewTopic := len(b.handlers[topic]) == 0
	b.handlers[topic] = append(b.handlers[topic], handler)

	// Start consumer for this topic if it's the first handler
	if isNewTopic {
		b.consumerWg.Add(1)
		go b.consumeTopic(topic)
	}

	return nil
}

// consumeTopic runs a consumer group session loop for topic until Close.
func (b *KafkaBus) consumeTopic(topic string) {
	defer b.consumerWg.Done()

	handler := &consumerGroupHandler{
		bus:   b,
		topic: topic,
	}

	for {
		// Blocks until a rebalance or Close.
		err := b.consumer.Consume(b.consumerCtx, []string{topic}, handler)
		if err != nil && !stderrors.Is(err, sarama.ErrClosedConsumerGroup) {
			b.log.Warn("Kafka consumer error", "topic", topic, "error", err)
		}

		select {
		case <-b.consumerStop:
			return
		case <-time.After(time.Second):
		}
	}
}

// Close closes the Kafka bus and releases resources.
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.consumerStop)
	b.cancel()
	b.consumerWg.Wait()

	var errs []error

	if b.consumer != nil {
		if err := b.consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close consumer: %w", err))
		}
	}

	if err := b.producer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close producer: %w", err))
	}

	if b.client != nil && !b.client.Closed() {
		if err := b.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close client: %w", err))
		}
	}

	b.mu.Lock()
	b.handlers = nil
	b.mu.Unlock()

	return stderrors.Join(errs...)
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler.
type consumerGroupHandler struct {
	bus   *KafkaBus
	topic string
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup is run at the end of a session, after all ConsumeClaim goroutines have exited.
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages from a Kafka partition.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok || msg == nil {
				return nil
			}
			h.dispatch(session.Context(), msg.Value)
			session.MarkMessage(msg, "")
		}
	}
}

// dispatch decodes one message and runs every handler for the topic.
// Undecodable messages are logged and skipped.
func (h *consumerGroupHandler) dispatch(ctx context.Context, value []byte) {
	var event Event
	if err := json.Unmarshal(value, &event); err != nil {
		h.bus.log.Warn("Dropping undecodable kafka message", "topic", h.topic, "error", err)
		return
	}

	h.bus.mu.RLock()
	handlers := h.bus.handlers[h.topic]
	h.bus.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			h.bus.log.Warn("Event handler failed", "topic", h.topic, "event_id", event.ID, "error", err)
		}
	}
}

// ParseKafkaBrokers parses a comma-separated string of Kafka brokers.
func ParseKafkaBrokers(brokersStr string) []string {
	var brokers []string
	for _, b := range strings.Split(brokersStr, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
