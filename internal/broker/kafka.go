package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaWriter defines an interface for writing messages to Kafka.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, messages ...kafka.Message) error
	Close() error
}

// KafkaReader defines an interface for reading messages from Kafka.
type KafkaReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaConfig holds configuration parameters for Kafka.
type KafkaConfig struct {
	Brokers      []string      // list of Kafka brokers
	Topic        string        // topic name
	Partition    int           // partition number
	WriteTimeout time.Duration // write timeout duration
	ReadTimeout  time.Duration // max wait for a fetch
}

// RealKafkaWriter implements KafkaWriter with a kafka.Writer, which redials
// dropped broker connections and is safe for concurrent use.
type RealKafkaWriter struct {
	writer *kafka.Writer
}

// NewKafkaWriter creates a writer for cfg.Partition of cfg.Topic. It does not
// connect until the first write.
func NewKafkaWriter(cfg KafkaConfig) (*RealKafkaWriter, error) {
	if len(cfg.Brokers) == 0 {
		cfg.Brokers = []string{"localhost:9092"}
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is empty")
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	return &RealKafkaWriter{writer: newWriter(cfg)}, nil
}

func newWriter(cfg KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     partitionBalancer(cfg.Partition),
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond, // changes are tiny; do not wait for a batch to fill
	}
}

// partitionBalancer sends every message to the partition the readers follow,
// falling back to the first one if the topic does not have it.
type partitionBalancer int

func (b partitionBalancer) Balance(msg kafka.Message, partitions ...int) int {
	for _, p := range partitions {
		if p == int(b) {
			return p
		}
	}
	if len(partitions) == 0 {
		return int(b)
	}
	return partitions[0]
}

func (w *RealKafkaWriter) WriteMessages(ctx context.Context, messages ...kafka.Message) error {
	return w.writer.WriteMessages(ctx, messages...)
}

func (w *RealKafkaWriter) Close() error {
	return w.writer.Close()
}

// RealKafkaReader implements KafkaReader with a partition reader positioned at
// the tail, so every server process sees every change from its start onwards.
type RealKafkaReader struct {
	reader *kafka.Reader
}

// NewKafkaReader creates a new partition reader.
func NewKafkaReader(cfg KafkaConfig) KafkaReader {
	if len(cfg.Brokers) == 0 {
		cfg.Brokers = []string{"localhost:9092"}
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		Partition:   cfg.Partition,
		MinBytes:    1,
		MaxBytes:    1e6, // 1MB
		MaxWait:     cfg.ReadTimeout,
		StartOffset: kafka.LastOffset,
	})
	return &RealKafkaReader{reader: r}
}

func (r *RealKafkaReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	return r.reader.ReadMessage(ctx)
}

func (r *RealKafkaReader) Close() error {
	return r.reader.Close()
}

// --- Event adapters ---

// KafkaPublisher writes events keyed by table name.
type KafkaPublisher struct {
	Writer KafkaWriter
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	if err := p.Writer.WriteMessages(ctx, kafka.Message{Key: []byte(ev.Table), Value: data}); err != nil {
		logg.Error("broker", "Failed to write Kafka message", err)
		return err
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.Writer.Close() }

// KafkaSource decodes events from a KafkaReader. An empty message yields a zero Event.
type KafkaSource struct {
	Reader KafkaReader
}

func (s *KafkaSource) Next(ctx context.Context) (Event, error) {
	msg, err := s.Reader.ReadMessage(ctx)
	if err != nil {
		return Event{}, err
	}
	if len(msg.Value) == 0 {
		return Event{}, nil
	}
	var ev Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return Event{}, fmt.Errorf("invalid change event: %w", err)
	}
	return ev, nil
}

func (s *KafkaSource) Close() error { return s.Reader.Close() }
