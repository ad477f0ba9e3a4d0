package domain

import "context"

// OpportunityBroker distributes ranked opportunity lists to subscribers.
//
// Each subscriber receives payloads on a small bounded channel; when it is
// full the oldest queued payload is discarded so Publish never blocks.
type OpportunityBroker interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Publish(ctx context.Context, opps []Opportunity) error
	Subscribe() <-chan []Opportunity
	Unsubscribe(ch <-chan []Opportunity)
	// Latest returns the last payload seen by this broker, possibly empty.
	Latest() []Opportunity
}
