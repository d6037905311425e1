package kafka

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

type Client struct {
	Brokers []string
}

func NewClient(brokersCSV string) *Client {
	brokers := []string{}
	for _, b := range strings.Split(brokersCSV, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return &Client{Brokers: brokers}
}

func (c *Client) Enabled() bool {
	return len(c.Brokers) > 0
}

// NewWriter leaves Topic empty so each message carries its own topic.
func (c *Client) NewWriter() *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(c.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}

func (c *Client) NewReader(topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.Brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
}

// Producer adapts a kafka.Writer to outbox.Publisher.
type Producer struct {
	Writer *kafka.Writer
}

func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte) error {
	if p == nil || p.Writer == nil {
		return ErrDisabled
	}
	return p.Writer.WriteMessages(ctx, kafka.Message{Topic: topic, Key: []byte(key), Value: value, Time: time.Now().UTC()})
}

func (p *Producer) Close() error {
	if p == nil || p.Writer == nil {
		return nil
	}
	return p.Writer.Close()
}

var ErrDisabled = errors.New("kafka disabled")
