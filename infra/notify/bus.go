package notify

import (
	"context"

	"github.com/kilianp07/consolidation/internal/eventbus"
)

// BusNotifier publishes events on the in-process bus.
type BusNotifier struct {
	bus eventbus.EventBus
}

func NewBusNotifier(bus eventbus.EventBus) *BusNotifier { return &BusNotifier{bus: bus} }

func (b *BusNotifier) Notify(_ context.Context, ev any) error {
	b.bus.Publish(ev)
	return nil
}
