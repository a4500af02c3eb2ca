package broker

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKafkaPublisherSource_RoundTrip(t *testing.T) {
	mock := &MockKafka{}
	pub := &KafkaPublisher{Writer: mock}
	src := &KafkaSource{Reader: mock}

	ev := NewEvent("posts", Insert)
	require.NoError(t, pub.Publish(context.Background(), ev))

	require.Len(t, mock.WrittenMessages, 1)
	assert.Equal(t, []byte("posts"), mock.WrittenMessages[0].Key)

	got, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "posts", got.Table)
	assert.Equal(t, Insert, got.Type)
	assert.True(t, ev.At.Equal(got.At))
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	pub := &KafkaPublisher{Writer: &MockKafkaFail{}}
	assert.Error(t, pub.Publish(context.Background(), NewEvent("posts", Insert)))
}

func TestKafkaSource_EmptyAndInvalidMessages(t *testing.T) {
	mock := &MockKafka{ReadMessages: []kafka.Message{{Value: nil}, {Value: []byte("{invalid-json}")}}}
	src := &KafkaSource{Reader: mock}

	ev, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ev.Table)

	_, err = src.Next(context.Background())
	assert.Error(t, err)
}

func TestHub_DispatchFiltersByTable(t *testing.T) {
	h := NewHub()
	posts := h.Subscribe("posts")
	all := h.Subscribe("")
	defer posts.Close()
	defer all.Close()

	h.Dispatch(NewEvent("messages", Update))
	h.Dispatch(NewEvent("posts", Insert))

	select {
	case ev := <-posts.C:
		assert.Equal(t, "posts", ev.Table)
	case <-time.After(time.Second):
		t.Fatal("posts subscriber got nothing")
	}
	assert.Len(t, posts.C, 0)
	assert.Len(t, all.C, 2)
}

func TestHub_CloseUnregistersAndClosesChannel(t *testing.T) {
	h := NewHub()
	s := h.Subscribe("posts")
	require.Equal(t, 1, h.Len())

	s.Close()
	s.Close()

	assert.Equal(t, 0, h.Len())
	_, ok := <-s.C
	assert.False(t, ok)

	// Dispatch after close must not panic on the closed channel
	h.Dispatch(NewEvent("posts", Insert))
}

func TestHub_FullSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub()
	s := h.Subscribe("posts")
	defer s.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriptionBuffer*3; i++ {
			h.Dispatch(NewEvent("posts", Insert))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on a full subscriber")
	}
	assert.Len(t, s.C, subscriptionBuffer)
}

func TestMockBus_PublishThenNext(t *testing.T) {
	b := NewMockBus()
	require.NoError(t, b.Publish(context.Background(), NewEvent("posts", Insert)))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := b.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "posts", ev.Table)
	assert.Equal(t, 1, b.PublishedCount())
}

func TestLocalPublisher_DispatchesToHub(t *testing.T) {
	h := NewHub()
	s := h.Subscribe("posts")
	defer s.Close()

	require.NoError(t, LocalPublisher{Hub: h}.Publish(context.Background(), NewEvent("posts", Insert)))
	assert.Len(t, s.C, 1)
}

func TestNewKafkaWriter_DoesNotDialUpFront(t *testing.T) {
	// Nothing listens here; a connection-per-process writer would fail now.
	w, err := NewKafkaWriter(KafkaConfig{Brokers: []string{"127.0.0.1:1"}, Topic: "wall-changes", Partition: 2})
	require.NoError(t, err)
	defer w.Close()

	kw := w.writer
	assert.Equal(t, "127.0.0.1:1", kw.Addr.String())
	assert.Equal(t, "wall-changes", kw.Topic)
	assert.Equal(t, 10*time.Second, kw.WriteTimeout)
	assert.Equal(t, partitionBalancer(2), kw.Balancer)
}

func TestNewKafkaWriter_RequiresTopic(t *testing.T) {
	_, err := NewKafkaWriter(KafkaConfig{Brokers: []string{"127.0.0.1:1"}})
	assert.Error(t, err)
}

func TestPartitionBalancer(t *testing.T) {
	msg := kafka.Message{Key: []byte("posts")}
	assert.Equal(t, 2, partitionBalancer(2).Balance(msg, 0, 1, 2, 3))
	assert.Equal(t, 0, partitionBalancer(0).Balance(msg, 0, 1))
	assert.Equal(t, 1, partitionBalancer(5).Balance(msg, 1, 2))
	assert.Equal(t, 5, partitionBalancer(5).Balance(msg))
}
