package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// DispatchTask is the unit of work handed to the dispatch workers: one
// alert, identified by fingerprint, plus the originating request id for
// correlation. Delivery is at-least-once; handlers must tolerate replays.
type DispatchTask struct {
	TaskID      string `json:"task_id"`
	RequestID   string `json:"request_id"`
	Fingerprint string `json:"fingerprint"`
}

// Enqueuer is what the ingestion path depends on. Injected at startup so
// handlers never touch a package-level queue instance.
type Enqueuer interface {
	EnqueueDispatch(ctx context.Context, task DispatchTask) error
}

// DispatchFunc processes one task. A nil return acknowledges the task; an
// error returns it to the queue for redelivery.
type DispatchFunc func(ctx context.Context, task DispatchTask) error

// Config holds the NATS JetStream connection and consumer settings.
type Config struct {
	URL            string
	StreamName     string
	Subject        string
	ConsumerName   string
	ConnectionName string
	MaxReconnects  int
	ReconnectWait  time.Duration
	AckWait        time.Duration
	MaxDeliver     int
	Workers        int
}

// Queue is a JetStream-backed dispatch queue. One connection serves both
// the publisher side (ingestion) and the worker side (dispatch).
type Queue struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config Config
}

// Connect establishes the NATS connection and ensures the stream exists.
func Connect(ctx context.Context, cfg Config) (*Queue, error) {
	opts := []nats.Option{
		nats.Name(cfg.ConnectionName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Printf("Disconnected from NATS: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("Reconnected to NATS at %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Printf("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.StreamName,
		Subjects:  []string{cfg.Subject},
		Retention: jetstream.WorkQueuePolicy,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create/update stream: %w", err)
	}

	return &Queue{nc: nc, js: js, config: cfg}, nil
}

// EnqueueDispatch publishes one dispatch task. The task id doubles as the
// broker-side message id so redundant publishes within the dedupe window
// collapse.
func (q *Queue) EnqueueDispatch(ctx context.Context, task DispatchTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch task: %w", err)
	}

	_, err = q.js.Publish(ctx, q.config.Subject, data, jetstream.WithMsgID(task.TaskID))
	if err != nil {
		return fmt.Errorf("failed to publish dispatch task: %w", err)
	}
	return nil
}

// RunWorkers consumes dispatch tasks until the context is cancelled. Tasks
// are spread over a fixed pool of handler goroutines, one task in flight
// per worker.
func (q *Queue) RunWorkers(ctx context.Context, handler DispatchFunc) error {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, q.config.StreamName, jetstream.ConsumerConfig{
		Durable:       q.config.ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       q.config.AckWait,
		MaxDeliver:    q.config.MaxDeliver,
		FilterSubject: q.config.Subject,
	})
	if err != nil {
		return fmt.Errorf("failed to create/update consumer: %w", err)
	}

	workers := q.config.Workers
	if workers <= 0 {
		workers = 1
	}

	msgChan := make(chan jetstream.Msg)
	sub, err := consumer.Consume(func(msg jetstream.Msg) {
		msgChan <- msg
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	log.Printf("Dispatch workers started (workers=%d, consumer=%s)", workers, q.config.ConsumerName)

	for i := 0; i < workers; i++ {
		go func() {
			for msg := range msgChan {
				q.handleMessage(ctx, msg, handler)
			}
		}()
	}

	<-ctx.Done()
	// Drain is asynchronous: buffered callbacks may still be sending on
	// msgChan until Closed fires, and the channel must stay open for them.
	sub.Drain()
	<-sub.Closed()
	close(msgChan)
	return ctx.Err()
}

// handleMessage decodes and runs one task, then acks or naks it. Payloads
// that cannot be decoded are terminated rather than redelivered forever.
func (q *Queue) handleMessage(ctx context.Context, msg jetstream.Msg, handler DispatchFunc) {
	var task DispatchTask
	if err := json.Unmarshal(msg.Data(), &task); err != nil {
		log.Printf("Failed to unmarshal dispatch task, terminating message: %v", err)
		if err := msg.Term(); err != nil {
			log.Printf("Failed to terminate message: %v", err)
		}
		return
	}

	if meta, err := msg.Metadata(); err == nil && meta.NumDelivered > 1 {
		log.Printf("Redelivery %d for task %s (fingerprint=%s)",
			meta.NumDelivered, task.TaskID, task.Fingerprint)
	}

	if err := handler(ctx, task); err != nil {
		log.Printf("Dispatch task %s failed, returning to queue: %v", task.TaskID, err)
		if err := msg.Nak(); err != nil {
			log.Printf("Failed to NAK message: %v", err)
		}
		return
	}

	if err := msg.Ack(); err != nil {
		log.Printf("Failed to ACK message: %v", err)
	}
}

// Close closes the NATS connection.
func (q *Queue) Close() {
	if q.nc == nil {
		return
	}
	q.nc.Close()
}
