// Package metrics defines the sink interfaces used to observe the decision
// engine. A sink must implement MetricsSink; OverrideRecorder and
// ShadowRecorder are optional and detected with type assertions. Concrete
// sinks (Prometheus, InfluxDB, fan-out) live in infra/metrics and register
// themselves with RegisterMetricsSink.
package metrics
