// Package brokertest provides a recording broker.Producer for tests.
package brokertest

import (
	"context"
	"sync"

	"finpasser/internal/broker"
	"finpasser/pkg/models"
)

type Published struct {
	Topic    string
	Envelope models.EventEnvelope
}

type RecordingProducer struct {
	mu        sync.Mutex
	published []Published

	// Err, when set, is returned by Publish and nothing is recorded.
	Err error
}

var _ broker.Producer = (*RecordingProducer)(nil)

func (p *RecordingProducer) Publish(_ context.Context, topic string, env models.EventEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.published = append(p.published, Published{Topic: topic, Envelope: env})
	return nil
}

func (p *RecordingProducer) Close() error { return nil }

func (p *RecordingProducer) Published() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Published(nil), p.published...)
}
