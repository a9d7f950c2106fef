package kafka

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
)

type Producer interface {
	SendJobEvent(ctx context.Context, topic string, event *JobEvent) error
	Close() error
}

// JobEvent is the submission announcement the worker listens for. It carries
// identifiers only; the worker claims the job through the store.
type JobEvent struct {
	JobID   string `json:"job_id"`
	TraceID string `json:"trace_id"`
}

type producer struct {
	producer sarama.SyncProducer
}

func NewProducer(brokers []string) (Producer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	p, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return &producer{producer: p}, nil
}

func (p *producer) SendJobEvent(ctx context.Context, topic string, event *JobEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.JobID),
		Value: sarama.ByteEncoder(data),
	}

	_, _, err = p.producer.SendMessage(msg)
	return err
}

func (p *producer) Close() error {
	return p.producer.Close()
}
