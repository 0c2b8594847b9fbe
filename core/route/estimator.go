package route

import (
	"fmt"
	"math"
	"time"

	"github.com/kilianp07/consolidation/core/model"
)

const (
	earthRadiusKm = 6371.0
	// DefaultSpeedKmh is the assumed average travel speed.
	DefaultSpeedKmh = 30.0
)

// Estimate describes the route after a pickup/delivery pair is inserted.
type Estimate struct {
	OriginalDistanceKm float64   `json:"original_distance_km"`
	TotalDistanceKm    float64   `json:"total_distance_km"`
	DurationMinutes    float64   `json:"duration_minutes"`
	EstimatedDelivery  time.Time `json:"estimated_delivery"`
	DeviationKm        float64   `json:"deviation_km"`
	PickupIndex        int       `json:"pickup_index"`
	DeliveryIndex      int       `json:"delivery_index"`
}

// Estimator inserts new stops into an existing route using a greedy
// cheapest-insertion heuristic over great-circle distances.
type Estimator struct {
	SpeedKmh float64
}

// NewEstimator returns an estimator using DefaultSpeedKmh.
func NewEstimator() Estimator {
	return Estimator{SpeedKmh: DefaultSpeedKmh}
}

// Estimate inserts pickup then delivery into stops and reports the resulting
// distance, duration and deviation. Invalid coordinates are a caller bug and
// cause a panic.
func (e Estimator) Estimate(stops []model.Coordinates, pickup, delivery model.Coordinates, ref time.Time) Estimate {
	mustValid(pickup)
	mustValid(delivery)
	for _, s := range stops {
		mustValid(s)
	}

	original := PathDistance(stops)

	pIdx := InsertionIndex(stops, pickup, 0)
	withPickup := insertAt(stops, pIdx, pickup)
	dIdx := InsertionIndex(withPickup, delivery, pIdx+1)
	full := insertAt(withPickup, dIdx, delivery)

	total := PathDistance(full)
	minutes := e.DurationMinutes(total)
	return Estimate{
		OriginalDistanceKm: original,
		TotalDistanceKm:    total,
		DurationMinutes:    minutes,
		EstimatedDelivery:  ref.Add(time.Duration(minutes * float64(time.Minute))),
		DeviationKm:        total - original,
		PickupIndex:        pIdx,
		DeliveryIndex:      dIdx,
	}
}

// DurationMinutes converts a distance into travel minutes at the configured speed.
func (e Estimator) DurationMinutes(distanceKm float64) float64 {
	speed := e.SpeedKmh
	if speed <= 0 {
		speed = DefaultSpeedKmh
	}
	return distanceKm / speed * 60
}

// InsertionIndex returns the position in [from, len(stops)] where inserting p
// adds the least distance. A missing neighbour at either end contributes
// nothing to the cost. Ties keep the earliest index.
func InsertionIndex(stops []model.Coordinates, p model.Coordinates, from int) int {
	if from < 0 {
		from = 0
	}
	if from > len(stops) {
		from = len(stops)
	}
	best := from
	bestCost := math.Inf(1)
	for i := from; i <= len(stops); i++ {
		var cost float64
		hasPrev, hasNext := i > 0, i < len(stops)
		if hasPrev {
			cost += Haversine(stops[i-1], p)
		}
		if hasNext {
			cost += Haversine(p, stops[i])
		}
		if hasPrev && hasNext {
			cost -= Haversine(stops[i-1], stops[i])
		}
		if cost < bestCost {
			best, bestCost = i, cost
		}
	}
	return best
}

// PathDistance sums the great-circle distance between consecutive stops in km.
func PathDistance(stops []model.Coordinates) float64 {
	total := 0.0
	for i := 1; i < len(stops); i++ {
		total += Haversine(stops[i-1], stops[i])
	}
	return total
}

// Haversine returns the great-circle distance between a and b in km.
func Haversine(a, b model.Coordinates) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func insertAt(stops []model.Coordinates, idx int, p model.Coordinates) []model.Coordinates {
	out := make([]model.Coordinates, 0, len(stops)+1)
	out = append(out, stops[:idx]...)
	out = append(out, p)
	return append(out, stops[idx:]...)
}

func mustValid(c model.Coordinates) {
	if err := c.Validate(); err != nil {
		panic(fmt.Sprintf("route: malformed coordinates %+v: %v", c, err))
	}
}
