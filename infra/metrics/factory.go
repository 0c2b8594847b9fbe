package metrics

import (
	"github.com/kilianp07/consolidation/core/factory"
	coremetrics "github.com/kilianp07/consolidation/core/metrics"
)

// init registers built-in metrics sinks and installs MultiSink as the
// combiner.
func init() {
	coremetrics.Combiner = func(sinks ...coremetrics.MetricsSink) coremetrics.MetricsSink {
		return NewMultiSink(sinks...)
	}

	_ = coremetrics.RegisterMetricsSink("nop", func(map[string]any) (coremetrics.MetricsSink, error) {
		return coremetrics.NopSink{}, nil
	})

	_ = coremetrics.RegisterMetricsSink("prometheus", func(map[string]any) (coremetrics.MetricsSink, error) {
		return NewPromSink()
	})

	_ = coremetrics.RegisterMetricsSink("influx", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c InfluxConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewInfluxSinkWithFallback(c), nil
	})
}
