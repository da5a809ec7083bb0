package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-news-ingest/internal/ingest"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublishKeysByArticleID(t *testing.T) {
	t.Parallel()

	writer := &fakeWriter{}
	p := newWithWriter(writer)
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return at }

	id, err := p.Publish(context.Background(), "articles", ingest.ArticleNotice{ArticleID: "a1", Title: "Budget passes"})
	require.NoError(t, err)
	require.Equal(t, "articles/a1", id)
	require.Len(t, writer.msgs, 1)

	msg := writer.msgs[0]
	require.Equal(t, "articles", msg.Topic)
	require.Equal(t, []byte("a1"), msg.Key)
	require.Equal(t, at, msg.Time)

	var decoded ingest.ArticleNotice
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	require.Equal(t, "Budget passes", decoded.Title)

	require.NoError(t, p.Close())
	require.True(t, writer.closed)
}

func TestPublishErrors(t *testing.T) {
	t.Parallel()

	p := newWithWriter(&fakeWriter{err: errors.New("leader not available")})
	_, err := p.Publish(context.Background(), "articles", ingest.ArticleNotice{ArticleID: "a1"})
	require.ErrorContains(t, err, "leader not available")

	_, err = p.Publish(context.Background(), "", "x")
	require.Error(t, err)

	_, err = New(nil)
	require.ErrorIs(t, err, ingest.ErrConfiguration)
}

func TestHeaderCarrier(t *testing.T) {
	t.Parallel()

	c := &headerCarrier{}
	c.Set("traceparent", "a")
	c.Set("traceparent", "b")
	c.Set("tracestate", "x")
	require.Equal(t, "b", c.Get("traceparent"))
	require.Equal(t, []string{"traceparent", "tracestate"}, c.Keys())
	require.Empty(t, c.Get("missing"))
}
