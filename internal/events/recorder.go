package events

import (
	"context"
	"errors"
	"sync"
)

// Recorder is an in-memory Publisher for tests and local runs. Set Err to make
// every publish fail, or Block to make publishes wait for their deadline.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error
	Block  bool
}

func (r *Recorder) Publish(ctx context.Context, evt Event) error {
	if r.Block {
		<-ctx.Done()
		return ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, evt)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfTopic returns the published events with the given topic.
func (r *Recorder) OfTopic(topic string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Topic() == topic {
			out = append(out, e)
		}
	}
	return out
}

// ErrBrokerDown is a convenience error for simulating an unavailable broker.
var ErrBrokerDown = errors.New("broker unavailable")

var _ Publisher = (*Recorder)(nil)
