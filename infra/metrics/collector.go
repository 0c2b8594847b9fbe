package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/consolidation/core/events"
	coremetrics "github.com/kilianp07/consolidation/core/metrics"
	"github.com/kilianp07/consolidation/internal/eventbus"
)

// StartEventCollector subscribes to the bus and counts lifecycle events on
// sink. It stops when ctx is cancelled or the bus closes. The returned
// channel is closed once the collector has unsubscribed.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if m, ok := toEventMetric(ev); ok {
					_ = coremetrics.RecordEvent(sink, m)
				}
			}
		}
	}()
	return done
}

func toEventMetric(ev any) (coremetrics.EventMetric, bool) {
	m := coremetrics.EventMetric{Topic: events.Topic(ev), Time: time.Now()}
	switch e := ev.(type) {
	case events.DecisionEvent:
		m.Action, m.Time = string(e.Action), e.At
	case events.OverrideEvent:
		m.Action, m.Time = string(e.Action), e.At
	case events.ShadowEvent:
		m.Action, m.Time = string(e.Action), e.At
	default:
		return m, false
	}
	return m, true
}
