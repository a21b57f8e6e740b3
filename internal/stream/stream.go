// Package stream consumes interaction and transcript submissions from Kafka.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/pavelanni/tutorstats/internal/model"
)

// Envelope is the JSON shape of every message on the topic.
type Envelope struct {
	Kind    model.SubmissionKind `json:"kind"`
	Payload json.RawMessage      `json:"payload"`
}

// Processor applies a decoded submission.
type Processor interface {
	Apply(ctx context.Context, kind model.SubmissionKind, payload json.RawMessage) error
}

// Reader is the subset of *kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config selects the brokers, topic and consumer group.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// NewReader creates a consumer-group reader for cfg.
func NewReader(cfg Config) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
}

// Consumer feeds messages from a Reader into a Processor.
type Consumer struct {
	reader Reader
	proc   Processor
}

// NewConsumer creates a consumer.
func NewConsumer(r Reader, p Processor) *Consumer {
	return &Consumer{reader: r, proc: p}
}

// Run consumes until ctx is done or the reader fails. Malformed and invalid
// messages are logged and committed so they never block the partition. A
// message the processor fails on for any other reason is left uncommitted and
// Run returns the error.
func (c *Consumer) Run(ctx context.Context) error {
	slog.Info("stream consumer started")
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("stream consumer stopped")
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		var env Envelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			slog.Warn("malformed stream message", "partition", m.Partition, "offset", m.Offset, "error", err)
			c.commit(ctx, m)
			continue
		}

		if err := c.proc.Apply(ctx, env.Kind, env.Payload); err != nil {
			if !errors.Is(err, model.ErrValidation) {
				return fmt.Errorf("apply message at offset %d: %w", m.Offset, err)
			}
			slog.Warn("invalid stream message", "kind", env.Kind, "offset", m.Offset, "error", err)
		} else {
			slog.Debug("stream message applied", "kind", env.Kind, "offset", m.Offset)
		}
		c.commit(ctx, m)
	}
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		slog.Error("commit stream message", "offset", m.Offset, "error", err)
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
