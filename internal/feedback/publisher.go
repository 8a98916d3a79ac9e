package feedback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ILLUVRSE/resource-selector/internal/canonical"
	"github.com/ILLUVRSE/resource-selector/internal/logging"
	"github.com/ILLUVRSE/resource-selector/internal/metrics"
	"github.com/ILLUVRSE/resource-selector/internal/models"
)

const envelopeType = "resource_selector.feedback.recorded"

// Producer is the subset of a message broker client the publisher needs.
type Producer interface {
	Produce(ctx context.Context, key, value []byte) error
	Close() error
}

type KafkaProducerConfig struct {
	Brokers      []string
	Topic        string
	MaxAttempts  int
	WriteTimeout time.Duration
}

// KafkaProducer writes keyed messages to one topic, retrying transient
// failures with capped exponential backoff.
type KafkaProducer struct {
	writer      *kafka.Writer
	maxAttempts int
	timeout     time.Duration
}

func NewKafkaProducer(cfg KafkaProducerConfig) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &KafkaProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: cfg.WriteTimeout,
			RequiredAcks: kafka.RequireOne,
		},
		maxAttempts: cfg.MaxAttempts,
		timeout:     cfg.WriteTimeout,
	}, nil
}

func (p *KafkaProducer) Produce(ctx context.Context, key, value []byte) error {
	var lastErr error
	backoff := 100 * time.Millisecond
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
		err := p.writer.WriteMessages(attemptCtx, kafka.Message{Key: key, Value: value, Time: time.Now().UTC()})
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == p.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("produce cancelled after %d attempts: %w", attempt, lastErr)
		case <-time.After(backoff):
		}
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
	return fmt.Errorf("produce failed after %d attempts: %w", p.maxAttempts, lastErr)
}

func (p *KafkaProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// Envelope is the canonical message body sent downstream for each record.
func Envelope(rec models.FeedbackRecord) ([]byte, error) {
	return canonical.Marshal(map[string]interface{}{
		"type":   envelopeType,
		"record": rec,
	})
}

type PublisherConfig struct {
	QueueSize int
	Workers   int
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// Publisher forwards appended feedback to a Producer off the request path.
// Publish never blocks; records are dropped with a warning when the queue is
// full.
type Publisher struct {
	producer Producer
	queue    chan models.FeedbackRecord
	workers  int
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewPublisher(producer Producer, cfg PublisherConfig) *Publisher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	return &Publisher{
		producer: producer,
		queue:    make(chan models.FeedbackRecord, cfg.QueueSize),
		workers:  cfg.Workers,
		logger:   logging.OrNop(cfg.Logger).Named("feedback.publisher"),
		metrics:  cfg.Metrics,
	}
}

// Start launches the workers. They exit once the queue is closed and
// drained, or when ctx is cancelled.
func (p *Publisher) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case rec, ok := <-p.queue:
					if !ok {
						return
					}
					p.send(ctx, rec)
				}
			}
		}()
	}
}

func (p *Publisher) send(ctx context.Context, rec models.FeedbackRecord) {
	body, err := Envelope(rec)
	if err == nil {
		err = p.producer.Produce(ctx, []byte(rec.ResourceID), body)
	}
	p.metrics.ObserveFeedbackPublish(err)
	if err != nil {
		p.logger.Warn("publish feedback",
			zap.String("resource_id", rec.ResourceID),
			zap.String("feedback_id", rec.ID.String()),
			zap.Error(err),
		)
	}
}

// Publish enqueues rec and reports whether it was accepted.
func (p *Publisher) Publish(rec models.FeedbackRecord) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.queue <- rec:
		return true
	default:
		p.logger.Warn("feedback queue full; dropping record",
			zap.String("resource_id", rec.ResourceID),
			zap.String("feedback_id", rec.ID.String()),
		)
		p.metrics.ObserveFeedbackPublish(fmt.Errorf("queue full"))
		return false
	}
}

// Close stops accepting records, waits for queued ones to be sent and then
// closes the producer.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
	return p.producer.Close()
}
