package kafka

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
)

// JobEvent announces a newly enqueued job. It carries no work of its own:
// the scheduler still claims through the job store, events only cut the
// polling latency.
type JobEvent struct {
	JobID   string `json:"job_id"`
	TraceID string `json:"trace_id"`
}

type EventHandler func(ctx context.Context, event *JobEvent)

type Consumer struct {
	consumer sarama.ConsumerGroup
}

func NewConsumer(brokers []string, groupID string) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	config.Consumer.Offsets.Initial = sarama.OffsetOldest

	c, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, err
	}

	return &Consumer{consumer: c}, nil
}

type consumerHandler struct {
	fn  EventHandler
	ctx context.Context
}

func (h *consumerHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *consumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		var event JobEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			session.MarkMessage(msg, "")
			continue
		}
		h.fn(h.ctx, &event)
		session.MarkMessage(msg, "")
	}
	return nil
}

func (c *Consumer) Consume(ctx context.Context, topic string, handler EventHandler) error {
	h := &consumerHandler{fn: handler, ctx: ctx}
	return c.consumer.Consume(ctx, []string{topic}, h)
}

func (c *Consumer) Close() error {
	return c.consumer.Close()
}
