package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/example/orders-ms/internal/contracts"
)

var ErrRequesterClosed = errors.New("requester is closed")

// Requester implements request/reply over the bus. Each request is
// published with a correlation id and this instance's private reply topic;
// the responder writes its envelope back with the same correlation id. A
// request with no reply blocks until the caller's context expires; the
// requester imposes no timeout of its own.
type Requester struct {
	producer   *Producer
	consumer   *Consumer
	replyTopic string

	mu      sync.Mutex
	pending map[string]chan contracts.Reply
	closed  bool
}

// NewRequester builds a requester with a per-instance reply topic and
// consumer group, so replies are not load-balanced away to other
// instances.
func NewRequester(brokers []string, serviceName string) *Requester {
	instanceID := uuid.New().String()
	replyTopic := fmt.Sprintf("%s.replies.%s", serviceName, instanceID)
	return &Requester{
		producer:   NewProducer(brokers),
		consumer:   NewConsumer(brokers, replyTopic, serviceName+"-replies-"+instanceID),
		replyTopic: replyTopic,
		pending:    make(map[string]chan contracts.Reply),
	}
}

// Start runs the reply consumer until ctx is cancelled.
func (r *Requester) Start(ctx context.Context) error {
	return r.consumer.Consume(ctx, r.handleReply)
}

func (r *Requester) handleReply(_ context.Context, msg kafka.Message) error {
	correlationID := Header(msg, contracts.HeaderCorrelationID)
	if correlationID == "" {
		return nil
	}

	r.mu.Lock()
	ch, ok := r.pending[correlationID]
	if ok {
		delete(r.pending, correlationID)
	}
	r.mu.Unlock()
	if !ok {
		// Late reply for a caller that already gave up.
		return nil
	}

	var reply contracts.Reply
	if err := json.Unmarshal(msg.Value, &reply); err != nil {
		reply = contracts.Reply{Error: &contracts.Error{Status: 502, Message: "malformed reply from collaborator"}}
	}
	ch <- reply
	return nil
}

// Request publishes payload under pattern on topic and decodes the reply
// data into out. A reply carrying an error envelope is returned as
// *contracts.Error.
func (r *Requester) Request(ctx context.Context, topic, pattern string, payload, out any) error {
	correlationID := uuid.New().String()
	ch := make(chan contracts.Reply, 1)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRequesterClosed
	}
	r.pending[correlationID] = ch
	r.mu.Unlock()

	headers := []kafka.Header{
		{Key: contracts.HeaderPattern, Value: []byte(pattern)},
		{Key: contracts.HeaderCorrelationID, Value: []byte(correlationID)},
		{Key: contracts.HeaderReplyTo, Value: []byte(r.replyTopic)},
	}
	if err := r.producer.Publish(ctx, topic, correlationID, payload, headers...); err != nil {
		r.forget(correlationID)
		return fmt.Errorf("publish %s request: %w", pattern, err)
	}

	select {
	case <-ctx.Done():
		r.forget(correlationID)
		return ctx.Err()
	case reply := <-ch:
		if reply.Error != nil {
			return reply.Error
		}
		if out == nil || len(reply.Data) == 0 {
			return nil
		}
		return json.Unmarshal(reply.Data, out)
	}
}

func (r *Requester) forget(correlationID string) {
	r.mu.Lock()
	delete(r.pending, correlationID)
	r.mu.Unlock()
}

func (r *Requester) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	if err := r.consumer.Close(); err != nil {
		return err
	}
	return r.producer.Close()
}
