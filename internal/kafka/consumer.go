package kafka

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// Handler returns nil only when the message was processed and its offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks a handler error that no retry can fix (a malformed value).
// The consumer logs it and commits past the message.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

type Consumer struct {
	r          *kafka.Reader
	workers    int
	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewConsumer(brokers []string, group string, topics []string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, minBackoff: 200 * time.Millisecond, maxBackoff: 10 * time.Second}
}

// workerFor pins a partition to one worker, so the offsets of a partition are
// handled and committed strictly in order.
func workerFor(m kafka.Message, workers int) int {
	if m.Partition < 0 {
		return 0
	}
	return m.Partition % workers
}

// process runs h until it succeeds, fails permanently or ctx is done. A
// message is never skipped on a transient failure: committing a later offset
// of the same partition would acknowledge it too.
func process(ctx context.Context, h Handler, m kafka.Message, minBackoff, maxBackoff time.Duration) error {
	backoff := minBackoff
	for {
		err := h(ctx, m)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			log.Printf("drop %s[%d]@%d: %v", m.Topic, m.Partition, m.Offset, err)
			return nil
		}
		log.Printf("retry %s[%d]@%d in %s: %v", m.Topic, m.Partition, m.Offset, backoff, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Start fetches until ctx is cancelled and returns once every worker has stopped.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range jobs {
		jobs[i] = make(chan kafka.Message, 256)
		wg.Add(1)
		go func(id int, in <-chan kafka.Message) {
			defer wg.Done()
			for m := range in {
				if err := process(ctx, h, m, c.minBackoff, c.maxBackoff); err != nil {
					// shutting down; the uncommitted offset is redelivered on restart
					continue
				}
				if err := c.r.CommitMessages(ctx, m); err != nil {
					log.Printf("worker %d: commit %s@%d: %v", id, m.Topic, m.Offset, err)
				}
			}
		}(i, jobs[i])
	}
	defer wg.Wait()
	defer func() {
		for _, ch := range jobs {
			close(ch)
		}
	}()

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case jobs[workerFor(m, c.workers)] <- m:
		case <-ctx.Done():
			return nil
		}
	}
}
