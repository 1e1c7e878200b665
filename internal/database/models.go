package database

import (
	"time"
)

// Station is an observation station
type Station struct {
	ID         int
	Geom       *string
	Properties *string
}

// Sensor describes one measured quantity
type Sensor struct {
	ID        int
	Name      string
	ShortName *string
	Unit      *string
	Accuracy  *int
}

// Observation is one timestamped measurement event of a station
type Observation struct {
	ID        int64
	TFrom     time.Time
	StationID int
}

// SensorReading is a sensor value of an observation. A nil Value is a
// missing reading.
type SensorReading struct {
	ObsID    int64
	SensorID int
	Value    *float64
}
