package broker

import (
	"context"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// Memory fans payloads out to subscribers in the same process.
type Memory struct {
	fanout
}

// NewMemory returns an in-process broker.
func NewMemory() *Memory {
	return &Memory{fanout: newFanout()}
}

// Start is a no-op.
func (m *Memory) Start(context.Context) error { return nil }

// Stop is a no-op.
func (m *Memory) Stop(context.Context) error { return nil }

// Publish delivers a copy of opps to every subscriber.
func (m *Memory) Publish(_ context.Context, opps []domain.Opportunity) error {
	m.deliver(clonePayload(opps))
	return nil
}

// Compile-time interface check.
var _ domain.OpportunityBroker = (*Memory)(nil)
