package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ILLUVRSE/resource-selector/internal/metrics"
)

// fakeProducer records produced messages.
type fakeProducer struct {
	mu          sync.Mutex
	produceFunc func(ctx context.Context, key, value []byte) error
	keys        []string
	values      [][]byte
	closed      bool
}

func (f *fakeProducer) Produce(ctx context.Context, key, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.produceFunc != nil {
		if err := f.produceFunc(ctx, key, value); err != nil {
			return err
		}
	}
	f.keys = append(f.keys, string(key))
	f.values = append(f.values, value)
	return nil
}

func (f *fakeProducer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestPublisherDeliversCanonicalEnvelopes(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	prod := &fakeProducer{}
	pub := NewPublisher(prod, PublisherConfig{Workers: 3})
	pub.Start(context.Background())

	for i := 0; i < 10; i++ {
		require.True(t, pub.Publish(record("gpt", float64(i))))
	}
	require.NoError(t, pub.Close())

	prod.mu.Lock()
	defer prod.mu.Unlock()
	assert.True(t, prod.closed)
	require.Len(t, prod.values, 10)
	for i, v := range prod.values {
		assert.Equal(t, "gpt", prod.keys[i])
		var env map[string]interface{}
		require.NoError(t, json.Unmarshal(v, &env))
		assert.Equal(t, envelopeType, env["type"])
		rec := env["record"].(map[string]interface{})
		assert.Equal(t, "gpt", rec["resourceId"])
	}

	assert.False(t, pub.Publish(record("gpt", 1)), "closed publisher accepts nothing")
}

func TestPublisherLogsProducerFailures(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	core, logs := observer.New(zapcore.WarnLevel)
	prod := &fakeProducer{produceFunc: func(ctx context.Context, key, value []byte) error {
		return errors.New("broker down")
	}}
	pub := NewPublisher(prod, PublisherConfig{
		Workers: 1,
		Logger:  zap.New(core),
		Metrics: metrics.MustNewMetrics(prometheus.NewRegistry()),
	})
	pub.Start(context.Background())
	require.True(t, pub.Publish(record("gpt", 1)))
	require.NoError(t, pub.Close())

	entries := logs.FilterMessage("publish feedback").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "gpt", entries[0].ContextMap()["resource_id"])
}

func TestPublisherDropsWhenQueueFull(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pub := NewPublisher(&fakeProducer{}, PublisherConfig{QueueSize: 1, Workers: 1})
	// not started: nothing drains the queue
	assert.True(t, pub.Publish(record("a", 1)))
	assert.False(t, pub.Publish(record("a", 2)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pub.Start(ctx)
	require.NoError(t, pub.Close())
}

func TestNewKafkaProducerValidates(t *testing.T) {
	_, err := NewKafkaProducer(KafkaProducerConfig{Topic: "t"})
	assert.Error(t, err)
	_, err = NewKafkaProducer(KafkaProducerConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)

	p, err := NewKafkaProducer(KafkaProducerConfig{Brokers: []string{"localhost:9092"}, Topic: "t"})
	require.NoError(t, err)
	assert.Equal(t, 3, p.maxAttempts)
	assert.NoError(t, p.Close())
}
