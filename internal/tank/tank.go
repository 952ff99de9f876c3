package tank

import (
	"math"
	"time"
)

// Shape identifies the geometric model used for volume computation.
//
// It is a closed set: anything that is not a recognised shape is treated as
// ShapeOther, which falls back to linear interpolation against capacity.
type Shape string

// Recognised tank shapes.
const (
	ShapeCylinder Shape = "cylinder"
	ShapeCuboid   Shape = "cuboid"
	ShapeOther    Shape = "other"
)

// ParseShape maps a free-form shape string onto the closed Shape set.
// Unrecognised values map to ShapeOther, never an error.
func ParseShape(raw string) Shape {
	switch Shape(raw) {
	case ShapeCylinder:
		return ShapeCylinder
	case ShapeCuboid:
		return ShapeCuboid
	default:
		return ShapeOther
	}
}

// litresPerCubicMetre converts cubic metres to litres. All linear
// dimensions are metres, so geometric volumes come out in m³.
const litresPerCubicMetre = 1000

// Geometry describes a tank's physical dimensions.
//
// All lengths are metres, capacity is litres. The distance sensor is
// mounted SensorHeight metres above the tank floor, measuring down to
// the water surface.
type Geometry struct {
	Shape        Shape   `json:"shape"`
	Diameter     float64 `json:"diameter"`
	Length       float64 `json:"length"`
	Breadth      float64 `json:"breadth"`
	Height       float64 `json:"height"`
	SensorHeight float64 `json:"sensorHeight"`
	Capacity     float64 `json:"capacity"`
}

// Volume returns the water volume in litres for the given water level.
//
// Shape handling:
//   - Cylinder: π·(diameter/2)²·level, converted to litres
//   - Cuboid: length·breadth·level, converted to litres
//   - Anything else: linear interpolation (level/height)·capacity
//
// Zero or missing dimensions yield zero volume rather than an error;
// untrusted geometry must never fault the sync pipeline.
func (g Geometry) Volume(waterLevel float64) float64 {
	if waterLevel <= 0 {
		return 0
	}

	switch g.Shape {
	case ShapeCylinder:
		radius := g.Diameter / 2
		return math.Pi * radius * radius * waterLevel * litresPerCubicMetre
	case ShapeCuboid:
		return g.Length * g.Breadth * waterLevel * litresPerCubicMetre
	default:
		if g.Height <= 0 {
			return 0
		}
		return (waterLevel / g.Height) * g.Capacity
	}
}

// WaterLevelFromDistance converts a sensor distance reading to a water level.
//
// The level is sensorHeight minus the measured distance, clamped to
// [0, sensorHeight]: the surface can neither be below the tank floor nor
// above the sensor mount.
func (g Geometry) WaterLevelFromDistance(distance float64) float64 {
	level := g.SensorHeight - distance
	if level < 0 {
		return 0
	}
	if level > g.SensorHeight {
		return g.SensorHeight
	}
	return level
}

// Tank is a configured tank device: identity plus geometry.
//
// History operations read tanks but never mutate them; the sync engine
// snapshots Geometry onto each history entry at write time.
type Tank struct {
	// ID is the unique identifier for the tank record.
	ID string `json:"id"`

	// DeviceID is the identifier of the sensor device attached to this tank.
	DeviceID string `json:"device_id"`

	// Name is the human-readable tank name.
	Name string `json:"name"`

	Geometry

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
