package model

import (
	"errors"
	"fmt"
	"time"
)

// PriorityTier classifies how urgent a delivery request is.
type PriorityTier string

const (
	PriorityStandard PriorityTier = "standard"
	PriorityExpress  PriorityTier = "express"
	PrioritySameDay  PriorityTier = "same_day"
)

// Dimensions are the outer parcel dimensions in centimetres.
type Dimensions struct {
	LengthCm float64 `json:"length_cm" yaml:"length_cm"`
	WidthCm  float64 `json:"width_cm" yaml:"width_cm"`
	HeightCm float64 `json:"height_cm" yaml:"height_cm"`
}

// VolumeM3 returns the parcel volume in cubic metres.
func (d Dimensions) VolumeM3() float64 {
	return d.LengthCm * d.WidthCm * d.HeightCm / 1e6
}

// DecisionRequest is an incoming parcel that needs a vehicle.
type DecisionRequest struct {
	ParcelID    string       `json:"parcel_id" yaml:"parcel_id"`
	Pickup      Coordinates  `json:"pickup" yaml:"pickup"`
	Delivery    Coordinates  `json:"delivery" yaml:"delivery"`
	SLADeadline time.Time    `json:"sla_deadline" yaml:"sla_deadline"`
	WeightKg    float64      `json:"weight_kg" yaml:"weight_kg"`
	Dimensions  Dimensions   `json:"dimensions" yaml:"dimensions"`
	Priority    PriorityTier `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// Validate checks the request fields the pipeline relies on.
func (r DecisionRequest) Validate() error {
	if r.ParcelID == "" {
		return errors.New("parcel_id is required")
	}
	if err := r.Pickup.Validate(); err != nil {
		return fmt.Errorf("pickup: %w", err)
	}
	if err := r.Delivery.Validate(); err != nil {
		return fmt.Errorf("delivery: %w", err)
	}
	if r.SLADeadline.IsZero() {
		return errors.New("sla_deadline is required")
	}
	if r.WeightKg < 0 {
		return errors.New("weight_kg must not be negative")
	}
	if r.Dimensions.LengthCm < 0 || r.Dimensions.WidthCm < 0 || r.Dimensions.HeightCm < 0 {
		return errors.New("dimensions must not be negative")
	}
	return nil
}
