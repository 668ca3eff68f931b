package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kiranshivaraju/fielddispatch/internal/broker"
	"github.com/kiranshivaraju/fielddispatch/internal/metrics"
)

// Publisher sends an event. It honours ctx and returns an error on failure so
// the caller can apply its own fallback.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Bus encodes events as JSON onto a broker topic.
type Bus struct {
	broker broker.Publisher
}

func NewBus(b broker.Publisher) *Bus {
	return &Bus{broker: b}
}

func (b *Bus) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode %s: %w", evt.Topic(), err)
	}
	return b.broker.Publish(ctx, evt.Topic(), payload)
}

// Decode unmarshals a broker message payload into an event of type T.
func Decode[T Event](msg broker.Message) (T, error) {
	var evt T
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return evt, fmt.Errorf("decode %s: %w", msg.Topic, err)
	}
	return evt, nil
}

// Outcome is the result of a best-effort publish.
type Outcome struct {
	Topic   string
	Err     error
	Elapsed time.Duration
}

func (o Outcome) Published() bool { return o.Err == nil }

// PublishBestEffort publishes evt with a timeout derived from ctx. It never
// panics or returns an error; the caller inspects the Outcome and decides
// whether to fall back.
func PublishBestEffort(ctx context.Context, pub Publisher, evt Event, timeout time.Duration) Outcome {
	start := time.Now()
	out := Outcome{Topic: evt.Topic()}

	if pub == nil {
		out.Err = fmt.Errorf("no publisher configured")
	} else {
		pubCtx, cancel := context.WithTimeout(ctx, timeout)
		out.Err = publishRecovered(pubCtx, pub, evt)
		cancel()
	}
	out.Elapsed = time.Since(start)

	result := "ok"
	if out.Err != nil {
		result = "failed"
	}
	metrics.EventsPublished.WithLabelValues(out.Topic, result).Inc()
	return out
}

func publishRecovered(ctx context.Context, pub Publisher, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("publisher panicked: %v", r)
		}
	}()
	return pub.Publish(ctx, evt)
}
