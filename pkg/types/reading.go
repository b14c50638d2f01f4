package types

import "time"

// Reading is the outcome of one telemetry cycle, exported to metrics and MQTT.
type Reading struct {
	Timestamp          time.Time
	TemperatureCelsius float64
	SampleValid        bool
	Score              int
	Liferate           string
	LiferateCode       int
	RegisteredSensors  int
}
