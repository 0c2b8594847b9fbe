package model

import (
	"fmt"
	"math"
)

// VehicleType distinguishes two-wheelers from four-wheelers.
type VehicleType string

const (
	VehicleTwoWheeler  VehicleType = "two_wheeler"
	VehicleFourWheeler VehicleType = "four_wheeler"
)

// Capacity holds the load limits and current load of a vehicle.
type Capacity struct {
	MaxWeightKg     float64 `json:"max_weight_kg" yaml:"max_weight_kg"`
	CurrentWeightKg float64 `json:"current_weight_kg" yaml:"current_weight_kg"`
	MaxVolumeM3     float64 `json:"max_volume_m3" yaml:"max_volume_m3"`
	CurrentVolumeM3 float64 `json:"current_volume_m3" yaml:"current_volume_m3"`
}

// StopKind tells whether a route stop collects or drops a parcel.
type StopKind string

const (
	StopPickup   StopKind = "pickup"
	StopDelivery StopKind = "delivery"
)

// RouteStop is one planned stop on a vehicle route.
type RouteStop struct {
	ID       string      `json:"id,omitempty" yaml:"id,omitempty"`
	ParcelID string      `json:"parcel_id,omitempty" yaml:"parcel_id,omitempty"`
	Kind     StopKind    `json:"kind,omitempty" yaml:"kind,omitempty"`
	Location Coordinates `json:"location" yaml:"location"`
}

// VehicleSnapshot is a point-in-time copy of a vehicle owned by the tracking
// subsystem. The decision pipeline never mutates it.
type VehicleSnapshot struct {
	ID       string      `json:"id" yaml:"id"`
	Type     VehicleType `json:"type" yaml:"type"`
	Capacity Capacity    `json:"capacity" yaml:"capacity"`
	Location Coordinates `json:"location" yaml:"location"`
	Route    []RouteStop `json:"route" yaml:"route"`
	// EligibilityScore is an externally computed suitability in [0,1].
	EligibilityScore float64 `json:"eligibility_score" yaml:"eligibility_score"`
}

// Validate checks the capacity figures and coordinates are usable.
func (v VehicleSnapshot) Validate() error {
	if v.ID == "" {
		return fmt.Errorf("vehicle id is required")
	}
	if v.Capacity.MaxWeightKg <= 0 {
		return fmt.Errorf("vehicle %s: max weight must be positive", v.ID)
	}
	if v.Capacity.MaxVolumeM3 < 0 {
		return fmt.Errorf("vehicle %s: max volume must not be negative", v.ID)
	}
	if v.EligibilityScore < 0 || v.EligibilityScore > 1 {
		return fmt.Errorf("vehicle %s: eligibility %.2f outside [0,1]", v.ID, v.EligibilityScore)
	}
	if err := v.Location.Validate(); err != nil {
		return fmt.Errorf("vehicle %s location: %w", v.ID, err)
	}
	for i, s := range v.Route {
		if err := s.Location.Validate(); err != nil {
			return fmt.Errorf("vehicle %s stop %d: %w", v.ID, i, err)
		}
	}
	return nil
}

// StopLocations returns the coordinates of the planned route in order.
func (v VehicleSnapshot) StopLocations() []Coordinates {
	out := make([]Coordinates, len(v.Route))
	for i, s := range v.Route {
		out[i] = s.Location
	}
	return out
}

// Utilization returns the load in percent as the maximum of weight and volume
// utilization. A zero volume limit is ignored.
func Utilization(c Capacity) float64 {
	return utilization(c.CurrentWeightKg, c.MaxWeightKg, c.CurrentVolumeM3, c.MaxVolumeM3)
}

// UtilizationAfter returns the utilization in percent once the parcel is loaded.
func UtilizationAfter(c Capacity, weightKg, volumeM3 float64) float64 {
	return utilization(c.CurrentWeightKg+weightKg, c.MaxWeightKg, c.CurrentVolumeM3+volumeM3, c.MaxVolumeM3)
}

func utilization(weight, maxWeight, volume, maxVolume float64) float64 {
	var w, vol float64
	if maxWeight > 0 {
		w = weight / maxWeight * 100
	}
	if maxVolume > 0 {
		vol = volume / maxVolume * 100
	}
	return math.Max(w, vol)
}
