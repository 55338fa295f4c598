package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/JakeFAU/apilog-dashboard/internal/telemetry"
)

type keyedEvent struct {
	JobID string `json:"job_id"`
}

func (e keyedEvent) PartitionKey() string { return e.JobID }

func TestPublisherSendsJSON(t *testing.T) {
	t.Parallel()

	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "exports" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil || string(key) != "job-1" {
			return errors.New("unexpected key")
		}
		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var got keyedEvent
		if err := json.Unmarshal(raw, &got); err != nil {
			return err
		}
		if got.JobID != "job-1" {
			return errors.New("unexpected payload")
		}
		return nil
	})

	pub := New(producer)
	id, err := pub.Publish(context.Background(), "exports", keyedEvent{JobID: "job-1"})
	require.NoError(t, err)
	require.Contains(t, id, "exports/")
	require.NoError(t, pub.Close())
}

func TestPublisherSurfacesSendErrors(t *testing.T) {
	t.Parallel()

	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	boom := errors.New("broker down")
	producer.ExpectSendMessageAndFail(boom)

	pub := New(producer)
	_, err := pub.Publish(context.Background(), "exports", map[string]string{"k": "v"})
	require.ErrorIs(t, err, boom)
	require.NoError(t, pub.Close())
}

func TestPublisherValidation(t *testing.T) {
	t.Parallel()

	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	pub := New(producer)

	_, err := pub.Publish(context.Background(), "", "x")
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pub.Publish(ctx, "exports", "x")
	require.ErrorIs(t, err, context.Canceled)

	_, err = Open(nil)
	require.Error(t, err)
	require.NoError(t, pub.Close())
}

func TestPublisherWritesTraceHeaders(t *testing.T) {
	tp, err := telemetry.InitTracerProvider(context.Background(), "apilog-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	var sent []sarama.RecordHeader
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		sent = append(sent, msg.Headers...)
		return nil
	})

	ctx, span := telemetry.Tracer().Start(context.Background(), "export.job")
	pub := New(producer)
	_, err = pub.Publish(ctx, "exports", keyedEvent{JobID: "job-1"})
	span.End()
	require.NoError(t, err)
	require.NoError(t, pub.Close())

	consumed := &sarama.ConsumerMessage{Topic: "exports"}
	keys := make([]string, 0, len(sent))
	for i := range sent {
		consumed.Headers = append(consumed.Headers, &sent[i])
		keys = append(keys, string(sent[i].Key))
	}
	require.Contains(t, keys, "content-type")
	require.Contains(t, keys, "traceparent")

	restored := trace.SpanContextFromContext(ExtractTrace(context.Background(), consumed))
	require.True(t, restored.IsRemote())
	require.Equal(t, span.SpanContext().TraceID(), restored.TraceID())
}

func TestHeaderCarrierReplacesExistingKey(t *testing.T) {
	t.Parallel()

	c := &headerCarrier{}
	c.Set("traceparent", "a")
	c.Set("traceparent", "b")
	require.Equal(t, []string{"traceparent"}, c.Keys())
	require.Equal(t, "b", c.Get("traceparent"))
	require.Empty(t, c.Get("missing"))
}
