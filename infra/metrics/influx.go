package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/consolidation/core/metrics"
	"github.com/kilianp07/consolidation/infra/logger"
)

// InfluxConfig locates an InfluxDB v2 bucket.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes decision activity to InfluxDB using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink for the given endpoint. A trailing
// /api/v2/write in the URL is tolerated.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the instance and returns a NopSink when
// the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

// RecordDecision writes a decision point.
func (s *InfluxSink) RecordDecision(ev coremetrics.DecisionMetric) error {
	p := write.NewPointWithMeasurement("consolidation_decision").
		AddTag("parcel_id", ev.ParcelID).
		AddTag("shadow", strconv.FormatBool(ev.Shadow)).
		AddTag("new_dispatch", strconv.FormatBool(ev.NewDispatch))
	if ev.VehicleID != "" {
		p = p.AddTag("vehicle_id", ev.VehicleID)
	}
	p = p.AddField("decision_id", ev.DecisionID).
		AddField("score", round3(ev.Score)).
		AddField("candidates", ev.Candidates).
		AddField("eligible", ev.Eligible).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordOverride writes an override transition.
func (s *InfluxSink) RecordOverride(ev coremetrics.OverrideMetric) error {
	p := write.NewPointWithMeasurement("override_transition").
		AddTag("action", ev.Action).
		AddTag("risk_level", ev.RiskLevel.String()).
		AddField("override_id", ev.OverrideID).
		AddField("status", string(ev.Status)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordShadow writes a shadow outcome.
func (s *InfluxSink) RecordShadow(ev coremetrics.ShadowMetric) error {
	p := write.NewPointWithMeasurement("shadow_outcome").
		AddTag("outcome", ev.Outcome).
		AddTag("parcel_id", ev.ParcelID).
		AddField("score_difference", round3(ev.ScoreDifference)).
		AddField("vehicle_mismatch", ev.VehicleMismatch).
		AddField("requires_review", ev.RequiresReview).
		SetTime(ev.Time)
	return s.write(p)
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
