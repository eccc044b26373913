package kafka

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// Router owns one Producer per topic.
type Router struct {
	producers map[string]*Producer
}

func NewRouter(brokers []string, topics []string, buf int) *Router {
	r := &Router{producers: make(map[string]*Producer, len(topics))}
	for _, t := range topics {
		r.producers[t] = NewProducer(brokers, t, buf)
	}
	return r
}

func (r *Router) Start(ctx context.Context) {
	for _, p := range r.producers {
		p.Start(ctx)
	}
}

func (r *Router) Publish(topic string, key, value []byte, headers ...kafka.Header) error {
	p, ok := r.producers[topic]
	if !ok {
		return fmt.Errorf("no producer for topic %s", topic)
	}
	p.Publish(key, value, headers...)
	return nil
}

// Close flushes every producer and waits for them.
func (r *Router) Close() {
	for _, p := range r.producers {
		p.Close()
	}
	for _, p := range r.producers {
		p.WaitClosed()
	}
}
