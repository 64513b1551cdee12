package pubsubqueue_test

import (
	"context"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	pubsubqueue "github.com/patronemptor/titlesvc/internal/queue/pubsub"
	"github.com/patronemptor/titlesvc/internal/titles"
)

func newFakeClient(t *testing.T) *pubsub.Client {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestQueueRoundTrip(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newFakeClient(t)
	topic, err := client.CreateTopic(ctx, "dispatch")
	require.NoError(t, err)
	_, err = client.CreateSubscription(ctx, "dispatch-sub", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	q, err := pubsubqueue.New(ctx, client, pubsubqueue.Config{
		TopicName:    "dispatch",
		Subscription: "dispatch-sub",
		Buffer:       4,
	}, nil)
	require.NoError(t, err)
	defer q.Close()

	go func() {
		_ = q.Run(ctx)
	}()

	sent := titles.Task{ReqID: "req-1", Attempt: 1, Submitted: 100}
	require.NoError(t, q.Enqueue(ctx, sent))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, sent, got)
}

func TestNewRejectsMissingTopic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client := newFakeClient(t)

	_, err := pubsubqueue.New(ctx, client, pubsubqueue.Config{TopicName: "absent"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestRunDropsMalformedPayload(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newFakeClient(t)
	topic, err := client.CreateTopic(ctx, "dispatch")
	require.NoError(t, err)
	_, err = client.CreateSubscription(ctx, "dispatch-sub", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	q, err := pubsubqueue.New(ctx, client, pubsubqueue.Config{
		TopicName:    "dispatch",
		Subscription: "dispatch-sub",
	}, nil)
	require.NoError(t, err)
	defer q.Close()

	go func() {
		_ = q.Run(ctx)
	}()

	topic.Publish(ctx, &pubsub.Message{Data: []byte("not json")})
	require.NoError(t, q.Enqueue(ctx, titles.Task{ReqID: "req-2"}))

	// The malformed payload is acked and dropped; only the real task arrives.
	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "req-2", got.ReqID)
}

func TestDequeueHonorsCancellation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client := newFakeClient(t)
	_, err := client.CreateTopic(ctx, "dispatch")
	require.NoError(t, err)

	q, err := pubsubqueue.New(ctx, client, pubsubqueue.Config{TopicName: "dispatch"}, nil)
	require.NoError(t, err)
	defer q.Close()

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = q.Dequeue(canceled)
	require.Error(t, err)
}
