package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"reminder-service/internal/logging"
	"reminder-service/internal/models"
)

// TaskQueue accepts analysis tasks.
type TaskQueue interface {
	QueueTask(task models.Task)
}

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// ItemEvent is what the tracker publishes when an item changes.
type ItemEvent struct {
	EventID   string    `json:"event_id"`
	IssueKey  string    `json:"issue_key"`
	EventType string    `json:"event_type"`
	Assignee  string    `json:"assignee"`
	Timestamp time.Time `json:"timestamp"`
}

type Consumer struct {
	reader MessageReader
	queue  TaskQueue
	logger *logging.Logger
}

func NewConsumer(brokers []string, topic, groupID string, queue TaskQueue, logger *logging.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newConsumer(r, queue, logger)
}

func newConsumer(r MessageReader, queue TaskQueue, logger *logging.Logger) *Consumer {
	return &Consumer{reader: r, queue: queue, logger: logger}
}

// Start reads until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Infof("Kafka consumer started")
		for {
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					c.logger.Infof("Kafka consumer stopped")
					return
				}
				c.logger.Errorf("Read message failed: %v", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}
			c.handle(msg)
		}
	}()
}

func (c *Consumer) handle(msg kafka.Message) {
	var ev ItemEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.logger.Errorf("Unmarshal message failed: %v", err)
		return
	}
	if ev.IssueKey == "" {
		c.logger.Errorf("Invalid message: missing issue_key")
		return
	}
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = msg.Time
	}
	c.queue.QueueTask(models.Task{
		RequestID:   ev.EventID,
		IssueKey:    ev.IssueKey,
		RecipientID: ev.Assignee,
		Source:      "kafka:" + ev.EventType,
		Timestamp:   ev.Timestamp,
	})
	c.logger.Debugf("Processed Kafka message for %s", ev.IssueKey)
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Errorf("Kafka reader close failed: %v", err)
	}
}
