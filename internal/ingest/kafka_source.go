package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// DefaultKafkaGroupID is the consumer group used when none is configured.
const DefaultKafkaGroupID = "nickutc"

// KafkaSource consumes JSON reports from a Kafka topic as part of a
// consumer group. Offsets are committed after a report has been handed to
// the ingester.
type KafkaSource struct {
	brokers     []string
	topic       string
	groupID     string
	pollTimeout time.Duration
	logger      *slog.Logger

	newReader func(kafka.ReaderConfig) messageReader
}

// messageReader is the subset of *kafka.Reader used by KafkaSource.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaOption configures KafkaSource.
type KafkaOption func(*KafkaSource)

// WithGroupID sets the consumer group.
func WithGroupID(id string) KafkaOption {
	return func(s *KafkaSource) {
		if id != "" {
			s.groupID = id
		}
	}
}

// WithPollTimeout bounds a single fetch so cancellation is noticed promptly.
func WithPollTimeout(d time.Duration) KafkaOption {
	return func(s *KafkaSource) { s.pollTimeout = d }
}

// WithKafkaLogger sets the logger. A nil logger is ignored.
func WithKafkaLogger(logger *slog.Logger) KafkaOption {
	return func(s *KafkaSource) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewKafkaSource creates a source reading topic from brokers.
func NewKafkaSource(brokers []string, topic string, opts ...KafkaOption) *KafkaSource {
	s := &KafkaSource{
		brokers:     brokers,
		topic:       topic,
		groupID:     DefaultKafkaGroupID,
		pollTimeout: 2 * time.Second,
		logger:      slog.Default(),
		newReader: func(cfg kafka.ReaderConfig) messageReader {
			return kafka.NewReader(cfg)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start implements Source.
func (s *KafkaSource) Start(ctx context.Context) (<-chan Report, <-chan error, error) {
	if len(s.brokers) == 0 || s.topic == "" {
		return nil, nil, fmt.Errorf("kafka source: brokers and topic are required")
	}

	reader := s.newReader(kafka.ReaderConfig{
		Brokers:     s.brokers,
		GroupID:     s.groupID,
		Topic:       s.topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
	})

	s.logger.Info("consuming presence reports",
		"brokers", s.brokers,
		"topic", s.topic,
		"group_id", s.groupID,
	)

	reportCh := make(chan Report, DefaultEventBufferSize)
	errCh := make(chan error, DefaultErrorBufferSize)

	go func() {
		defer close(reportCh)
		defer close(errCh)
		defer func() {
			if err := reader.Close(); err != nil {
				s.logger.Warn("kafka reader close", "error", err)
			}
		}()

		for {
			if ctx.Err() != nil {
				return
			}

			pollCtx, cancel := context.WithTimeout(ctx, s.pollTimeout)
			msg, err := reader.FetchMessage(pollCtx)
			cancel()
			if err != nil {
				switch {
				case errors.Is(err, context.DeadlineExceeded):
					continue
				case errors.Is(err, context.Canceled),
					errors.Is(err, kafka.ErrGroupClosed),
					errors.Is(err, io.ErrClosedPipe),
					errors.Is(err, io.EOF):
					return
				}
				select {
				case errCh <- fmt.Errorf("kafka fetch: %w", err):
				default:
				}
				continue
			}

			r, err := DecodeReport(msg.Value)
			if err != nil {
				select {
				case errCh <- err:
				case <-ctx.Done():
					return
				}
			} else {
				select {
				case reportCh <- r:
				case <-ctx.Done():
					return
				}
			}

			// Undecodable messages are committed too; they are kept as
			// rejected reports instead of being redelivered forever.
			if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				s.logger.Warn("kafka commit failed",
					"partition", msg.Partition,
					"offset", msg.Offset,
					"error", err,
				)
			}
		}
	}()

	return reportCh, errCh, nil
}
