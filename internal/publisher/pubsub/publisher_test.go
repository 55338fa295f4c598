package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/apilog-dashboard/internal/telemetry"
)

func newTestClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), "proj", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestPublisherPublishesJSON(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client, srv := newTestClient(t)

	_, err := client.CreateTopic(ctx, "exports")
	require.NoError(t, err)

	pub := New(client)
	defer func() { require.NoError(t, pub.Close()) }()

	id, err := pub.Publish(ctx, "exports", map[string]any{"job_id": "job-1", "rows": 3})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var got map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, "job-1", got["job_id"])
	require.Equal(t, "application/json", msgs[0].Attributes["content-type"])
}

func TestPublisherRejectsBadInput(t *testing.T) {
	t.Parallel()
	client, _ := newTestClient(t)
	pub := New(client)

	_, err := pub.Publish(context.Background(), "", "x")
	require.Error(t, err)

	_, err = pub.Publish(context.Background(), "exports", func() {})
	require.Error(t, err)

	var nilPub *Publisher
	_, err = nilPub.Publish(context.Background(), "exports", "x")
	require.Error(t, err)
}

func TestPublisherMissingTopicFails(t *testing.T) {
	t.Parallel()
	client, _ := newTestClient(t)
	pub := New(client)

	_, err := pub.Publish(context.Background(), "missing", "x")
	require.Error(t, err)
}

func TestPublisherCarriesTraceContext(t *testing.T) {
	tp, err := telemetry.InitTracerProvider(context.Background(), "apilog-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	client, srv := newTestClient(t)
	_, err = client.CreateTopic(context.Background(), "exports")
	require.NoError(t, err)
	pub := New(client)
	defer func() { require.NoError(t, pub.Close()) }()

	ctx, span := telemetry.Tracer().Start(context.Background(), "export.job")
	_, err = pub.Publish(ctx, "exports", map[string]any{"job_id": "job-1"})
	span.End()
	require.NoError(t, err)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	restored := telemetry.Extract(context.Background(), msgs[0].Attributes)
	require.Equal(t, span.SpanContext().TraceID(), trace.SpanContextFromContext(restored).TraceID())
	require.Equal(t, "application/json", msgs[0].Attributes["content-type"])
}
