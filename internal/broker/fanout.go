// Package broker distributes ranked opportunity lists to local subscribers,
// either directly in-process or through a Redis pub/sub channel shared by
// several processes.
package broker

import (
	"sync"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/metrics"
)

// subscriberBuffer is the number of payloads a subscriber may have queued.
const subscriberBuffer = 3

type subscriber struct {
	mu sync.Mutex
	ch chan []domain.Opportunity
}

// push inserts p, evicting the oldest queued payloads while the channel is
// full. It never blocks.
func (s *subscriber) push(p []domain.Opportunity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		select {
		case s.ch <- p:
			return
		default:
		}
		select {
		case <-s.ch:
			metrics.PayloadsDropped.Inc()
		default:
		}
	}
}

// fanout is the local delivery core shared by both backends.
type fanout struct {
	mu     sync.RWMutex
	subs   map[<-chan []domain.Opportunity]*subscriber
	latest []domain.Opportunity
}

func newFanout() fanout {
	return fanout{subs: make(map[<-chan []domain.Opportunity]*subscriber)}
}

// Subscribe registers a new subscriber and returns its receive channel.
func (f *fanout) Subscribe() <-chan []domain.Opportunity {
	s := &subscriber{ch: make(chan []domain.Opportunity, subscriberBuffer)}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[s.ch] = s
	return s.ch
}

// Unsubscribe removes the subscriber and closes its channel. Unknown
// channels are ignored.
func (f *fanout) Unsubscribe(ch <-chan []domain.Opportunity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[ch]
	if !ok {
		return
	}
	delete(f.subs, ch)
	close(s.ch)
}

// Latest returns the last delivered payload. Callers must not modify it.
func (f *fanout) Latest() []domain.Opportunity {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.latest == nil {
		return []domain.Opportunity{}
	}
	return f.latest
}

// SubscriberCount returns the number of live subscribers.
func (f *fanout) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

func (f *fanout) setLatest(p []domain.Opportunity) {
	f.mu.Lock()
	f.latest = p
	f.mu.Unlock()
}

// deliver caches p as the latest payload and hands it to every subscriber.
func (f *fanout) deliver(p []domain.Opportunity) {
	f.setLatest(p)

	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.subs {
		s.push(p)
	}
}

func clonePayload(opps []domain.Opportunity) []domain.Opportunity {
	out := make([]domain.Opportunity, len(opps))
	copy(out, opps)
	return out
}
