package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"reminder-service/internal/logging"
	"reminder-service/internal/models"
)

type fakeReader struct {
	msgs chan kafka.Message
}

func (f *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-f.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (f *fakeReader) Close() error { return nil }

type taskRecorder struct {
	mu    sync.Mutex
	tasks []models.Task
	got   chan struct{}
}

func (r *taskRecorder) QueueTask(t models.Task) {
	r.mu.Lock()
	r.tasks = append(r.tasks, t)
	r.mu.Unlock()
	r.got <- struct{}{}
}

func TestConsumerQueuesItemEvents(t *testing.T) {
	reader := &fakeReader{msgs: make(chan kafka.Message, 3)}
	rec := &taskRecorder{got: make(chan struct{}, 3)}
	c := newConsumer(reader, rec, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	c.Start(ctx, &wg)

	at := time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)
	reader.msgs <- kafka.Message{Value: []byte(`not json`)}
	reader.msgs <- kafka.Message{Value: []byte(`{"event_type":"updated"}`)}
	reader.msgs <- kafka.Message{Time: at, Value: []byte(`{"issue_key":"OPS-1","event_type":"updated","assignee":"alice"}`)}

	select {
	case <-rec.got:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a queued task")
	}
	cancel()
	wg.Wait()

	if len(rec.tasks) != 1 {
		t.Fatalf("expected only the valid event queued, got %d", len(rec.tasks))
	}
	task := rec.tasks[0]
	if task.IssueKey != "OPS-1" || task.RecipientID != "alice" || task.Source != "kafka:updated" {
		t.Errorf("unexpected task %+v", task)
	}
	if task.RequestID == "" || !task.Timestamp.Equal(at) {
		t.Errorf("expected generated request id and message time, got %+v", task)
	}
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestPublisherEncodesEvent(t *testing.T) {
	w := &fakeWriter{}
	p := &Publisher{writer: w}
	ev := models.DeliveryEvent{Kind: "delivered", NotificationID: "n-1", IssueKey: "OPS-1", Status: models.StatusDelivered}

	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "n-1" {
		t.Fatalf("expected one message keyed by notification id, got %+v", w.msgs)
	}
	var got models.DeliveryEvent
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Kind != "delivered" || got.Status != models.StatusDelivered {
		t.Errorf("unexpected event %+v", got)
	}
}
