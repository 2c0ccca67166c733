//go:build integration

package integration_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/crop-advisory-service/internal/config"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const (
	testWeatherTopic      = "test-weather"
	testFarmEventsTopic   = "test-farm-events"
	testNotificationTopic = "test-notifications"
	testEmailTopic        = "test-emails"
)

// received is a message read back from an output topic.
type received struct {
	Key     string
	Value   []byte
	Headers map[string]string
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker for the duration of the test.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("crop-advisor-test"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start kafka container")

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopics creates single-partition topics through the cluster controller.
func createTopics(t *testing.T, broker string, topics ...string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	configs := make([]kafkago.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		configs = append(configs, kafkago.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
	}
	require.NoError(t, ctrl.CreateTopics(configs...))
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:           []string{broker},
		KafkaWeatherTopic:      testWeatherTopic,
		KafkaFarmEventsTopic:   testFarmEventsTopic,
		KafkaNotificationTopic: testNotificationTopic,
		KafkaEmailTopic:        testEmailTopic,
		KafkaGroupID:           fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval:     2 * time.Second,
	}
}

func publish(ctx context.Context, t *testing.T, broker, topic string, values ...string) {
	t.Helper()
	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: topic}
	defer producer.Close()

	msgs := make([]kafkago.Message, 0, len(values))
	for i, v := range values {
		msgs = append(msgs, kafkago.Message{Key: []byte(strconv.Itoa(i)), Value: []byte(v)})
	}
	require.NoError(t, producer.WriteMessages(ctx, msgs...), "publish to %s", topic)
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

// readMessage reads one message or fails the test after 30 seconds.
func readMessage(ctx context.Context, t *testing.T, consumer *kafkago.Reader) received {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from %s", consumer.Config().Topic)

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return received{Key: string(msg.Key), Value: msg.Value, Headers: headers}
}

// readUntil reads messages until match returns true.
func readUntil(ctx context.Context, t *testing.T, consumer *kafkago.Reader, match func(received) bool) received {
	t.Helper()
	for {
		msg := readMessage(ctx, t, consumer)
		if match(msg) {
			return msg
		}
	}
}
