package statuschannel_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"mediarelay/internal/jobstore"
	"mediarelay/internal/logging"
	"mediarelay/internal/statuschannel"
)

func TestSpoolQueueDeliversInOrderAndAckRemoves(t *testing.T) {
	spool, err := statuschannel.NewSpoolQueue(t.TempDir())
	if err != nil {
		t.Fatalf("NewSpoolQueue: %v", err)
	}
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if _, err := spool.Enqueue(statuschannel.StatusMessage{ContentID: id, Status: "COMPLETE"}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		time.Sleep(time.Millisecond)
	}

	msgs, err := spool.Receive(ctx, 2)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if err := spool.Ack(ctx, msgs[0]); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	depth, err := spool.Depth(ctx)
	if err != nil {
		t.Fatalf("Depth: %v", err)
	}
	if depth != 2 {
		t.Fatalf("expected depth 2 after ack, got %d", depth)
	}
	if err := spool.Ack(ctx, statuschannel.Message{ID: "../escape.json"}); err == nil {
		t.Fatal("expected error for path-like message id")
	}
}

func TestQueueChannelAcksEveryMessage(t *testing.T) {
	spool, err := statuschannel.NewSpoolQueue(t.TempDir())
	if err != nil {
		t.Fatalf("NewSpoolQueue: %v", err)
	}
	for _, msg := range []statuschannel.StatusMessage{
		{ContentID: "ABC", Status: "COMPLETED", OutputSizeBytes: 42},
		{ContentID: "def", Status: "weird"},
		{ContentID: "ghi", Status: "FAILED", Message: "codec"},
	} {
		if _, err := spool.Enqueue(msg); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		time.Sleep(time.Millisecond)
	}

	channel := statuschannel.NewQueueChannel(spool, statuschannel.QueueOptions{BatchSize: 2, MaxBatches: 5}, logging.NewNop())
	var signals []statuschannel.Signal
	stats, err := channel.Collect(context.Background(), nil, func(_ context.Context, sig statuschannel.Signal) {
		signals = append(signals, sig)
	})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if stats.Received != 3 || len(signals) != 3 {
		t.Fatalf("expected 3 signals, got stats=%+v signals=%d", stats, len(signals))
	}
	if signals[0].ContentID != "abc" || signals[0].Status != jobstore.TranscodeFinished || signals[0].OutputSizeBytes != 42 {
		t.Fatalf("unexpected first signal %+v", signals[0])
	}
	if signals[1].Status != "" || signals[1].Raw != "weird" {
		t.Fatalf("expected unknown vocabulary to stay unnormalized, got %+v", signals[1])
	}
	if signals[2].Status != jobstore.TranscodeError || signals[2].Message != "codec" {
		t.Fatalf("unexpected third signal %+v", signals[2])
	}
	depth, _ := spool.Depth(context.Background())
	if depth != 0 {
		t.Fatalf("expected all messages acked, depth=%d", depth)
	}
	if !channel.LogsEvents() || channel.Name() != "queue" {
		t.Fatal("queue channel should log events")
	}
}

type failingQueue struct{}

func (failingQueue) Receive(context.Context, int) ([]statuschannel.Message, error) {
	return nil, errors.New("broker unreachable")
}

func (failingQueue) Ack(context.Context, statuschannel.Message) error { return nil }

func TestQueueChannelReceiveFailure(t *testing.T) {
	channel := statuschannel.NewQueueChannel(failingQueue{}, statuschannel.QueueOptions{}, nil)
	_, err := channel.Collect(context.Background(), nil, func(context.Context, statuschannel.Signal) {
		t.Fatal("visit should not be called")
	})
	if err == nil {
		t.Fatal("expected receive error")
	}
}

type malformedQueue struct {
	delivered bool
	acked     int
}

func (q *malformedQueue) Receive(context.Context, int) ([]statuschannel.Message, error) {
	if q.delivered {
		return nil, nil
	}
	q.delivered = true
	return []statuschannel.Message{{ID: "bad", Body: []byte("{not json")}}, nil
}

func (q *malformedQueue) Ack(context.Context, statuschannel.Message) error {
	q.acked++
	return nil
}

func TestQueueChannelAcksMalformedMessages(t *testing.T) {
	q := &malformedQueue{}
	channel := statuschannel.NewQueueChannel(q, statuschannel.QueueOptions{BatchSize: 1, MaxBatches: 3}, nil)
	var got statuschannel.Signal
	if _, err := channel.Collect(context.Background(), nil, func(_ context.Context, sig statuschannel.Signal) {
		got = sig
	}); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got.Err == nil {
		t.Fatal("expected decode error on signal")
	}
	if q.acked != 1 {
		t.Fatalf("expected malformed message acked once, got %d", q.acked)
	}
}
