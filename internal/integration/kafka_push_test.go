//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/ondamlab/yesterday/internal/adapter/push"
	"github.com/ondamlab/yesterday/internal/cache"
	"github.com/ondamlab/yesterday/internal/domain"
	"github.com/ondamlab/yesterday/internal/observability"
	"github.com/ondamlab/yesterday/internal/scheduler"
)

const testPushTopic = "test-push-notifications"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka launches a single-node Kafka container and returns its broker
// address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("test-cluster"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	ctrlConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrlConn.Close()

	require.NoError(t, ctrlConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func newConsumer(t *testing.T, broker, topic string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       topic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

func readNotification(ctx context.Context, t *testing.T, consumer *kafkago.Reader) (domain.Notification, kafkago.Message) {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from push topic")

	var n domain.Notification
	require.NoError(t, json.Unmarshal(msg.Value, &n), "unmarshal notification")
	return n, msg
}

// TestKafkaPublisherRoundTrip verifies that a published batch arrives on the
// topic with the expected keys, headers, and payloads.
func TestKafkaPublisherRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testPushTopic)

	publisher := push.NewKafkaPublisher([]string{broker}, testPushTopic, discardLogger())
	t.Cleanup(func() { _ = publisher.Close() })

	batch := []domain.Notification{
		{Destination: "tok-1", Title: "어제보다", Body: "오늘은(24.3°C), 어제보다 살짝더 덥네요.(+2.2°C)"},
		{Destination: "tok-2", Title: "어제보다", Body: "오늘은(19.9°C), 어제보다 살짝더 춥네요.(-1.3°C)"},
	}
	sent, err := publisher.Send(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	consumer := newConsumer(t, broker, testPushTopic)

	byDest := map[string]domain.Notification{}
	for range batch {
		n, msg := readNotification(ctx, t, consumer)
		byDest[n.Destination] = n
		assert.Equal(t, n.Destination, string(msg.Key))
		require.Len(t, msg.Headers, 1)
		assert.Equal(t, "title", msg.Headers[0].Key)
		assert.Equal(t, "어제보다", string(msg.Headers[0].Value))
	}

	require.Contains(t, byDest, "tok-1")
	assert.Contains(t, byDest["tok-1"].Body, "덥네요")
	require.Contains(t, byDest, "tok-2")
	assert.Contains(t, byDest["tok-2"].Body, "춥네요")
}

type staticSource struct {
	subs []domain.Subscriber
}

func (s staticSource) ListSubscribers(context.Context) ([]domain.Subscriber, error) {
	return s.subs, nil
}

type staticComparer struct {
	result domain.ComparisonResult
}

func (c staticComparer) CompareNow(context.Context, domain.Coordinate, *time.Location) (domain.ComparisonResult, error) {
	return c.result, nil
}

// TestSchedulerTickToKafka drives one scheduler tick against real Kafka and
// verifies the due subscriber's message lands on the push topic exactly once.
func TestSchedulerTickToKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testPushTopic)

	// 05:47 UTC is 14:47 KST; the subscriber wants 14:45 local.
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 13, 5, 47, 0, 0, time.UTC))
	domain.SetClock(clock)
	t.Cleanup(func() { domain.SetClock(nil) })

	publisher := push.NewKafkaPublisher([]string{broker}, testPushTopic, discardLogger())
	t.Cleanup(func() { _ = publisher.Close() })

	sched := scheduler.New(
		scheduler.Config{Interval: 5 * time.Minute, DueWindow: 5 * time.Minute, Concurrency: 4},
		staticSource{subs: []domain.Subscriber{{
			ID: "s1", Token: "tok-s1",
			Lat: 37.5665, Lon: 126.9780,
			Timezone: "Asia/Seoul", Hour: 14, Minute: 45,
		}}},
		staticComparer{result: domain.NewComparison(24.3, 22.1)},
		publisher,
		scheduler.NewKVSendRecorder(cache.NewMemoryStore(clock), 48*time.Hour),
		discardLogger(),
		observability.NewMetricsForTesting(),
		clock,
	)

	sched.RunOnce(ctx)
	// A second tick in the same window must not produce a duplicate.
	sched.RunOnce(ctx)

	consumer := newConsumer(t, broker, testPushTopic)

	n, msg := readNotification(ctx, t, consumer)
	assert.Equal(t, "tok-s1", n.Destination)
	assert.Equal(t, "tok-s1", string(msg.Key))
	assert.Contains(t, n.Body, "덥네요")

	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err := consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no duplicate message on push topic")
}
