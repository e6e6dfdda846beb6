package mq

import (
	"context"
	"sync/atomic"
)

// Producer publishes telemetry payloads to a message queue.
type Producer interface {
	Produce(ctx context.Context, topic string, key string, data interface{}) error
	Close()
}

// NoOpProducer is used when publishing is disabled. It only counts.
type NoOpProducer struct {
	produced atomic.Uint64
}

func NewNoOpProducer() *NoOpProducer {
	return &NoOpProducer{}
}

func (p *NoOpProducer) Produce(ctx context.Context, topic string, key string, data interface{}) error {
	p.produced.Add(1)
	return nil
}

func (p *NoOpProducer) Produced() uint64 {
	return p.produced.Load()
}

func (p *NoOpProducer) Close() {}
