package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	client, err := pubsub.NewClient(context.Background(), "notes-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	return client, srv
}

func TestPublishSendsJSONWithAttributes(t *testing.T) {
	ctx := context.Background()
	client, srv := newTestClient(t)
	_, err := client.CreateTopic(ctx, "link-enriched")
	require.NoError(t, err)

	pub := New(client)
	t.Cleanup(func() { _ = pub.Close() })

	id, err := pub.Publish(ctx, "link-enriched", map[string]any{"link_id": "abc", "article_id": 7})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, EventLinkEnriched, msgs[0].Attributes["event_type"])

	var body map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &body))
	require.Equal(t, "abc", body["link_id"])
	require.EqualValues(t, 7, body["article_id"])
}

func TestPublishMissingTopicFails(t *testing.T) {
	client, _ := newTestClient(t)
	pub := New(client)
	t.Cleanup(func() { _ = pub.Close() })

	_, err := pub.Publish(context.Background(), "missing", map[string]string{})
	require.ErrorContains(t, err, "publish to missing")
}

func TestPublishValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), "t", nil)
	require.ErrorContains(t, err, "not configured")

	client, _ := newTestClient(t)
	pub := New(client)
	t.Cleanup(func() { _ = pub.Close() })
	_, err = pub.Publish(context.Background(), "", nil)
	require.ErrorContains(t, err, "topic is required")
	_, err = pub.Publish(context.Background(), "t", make(chan int))
	require.ErrorContains(t, err, "marshal payload")
}

func TestOpenRequiresProject(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "")
	require.Error(t, err)
}
