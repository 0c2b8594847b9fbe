package metrics

import "github.com/kilianp07/consolidation/core/factory"

var sinkRegistry = factory.NewRegistry[MetricsSink]()

// RegisterMetricsSink adds a metrics sink factory identified by name.
func RegisterMetricsSink(name string, f factory.Factory[MetricsSink]) error {
	return sinkRegistry.Register(name, f)
}

// Combiner merges several sinks into one. infra/metrics installs its
// MultiSink here.
var Combiner func(sinks ...MetricsSink) MetricsSink

// NewMetricsSink creates a sink from configuration. No entries yield a
// NopSink; several entries are merged with Combiner.
func NewMetricsSink(cfgs []factory.ModuleConfig) (MetricsSink, error) {
	if len(cfgs) == 0 {
		return NopSink{}, nil
	}
	sinks := make([]MetricsSink, len(cfgs))
	for i, c := range cfgs {
		s, err := sinkRegistry.Create(c)
		if err != nil {
			return nil, err
		}
		sinks[i] = s
	}
	if len(sinks) == 1 || Combiner == nil {
		return sinks[0], nil
	}
	return Combiner(sinks...), nil
}
