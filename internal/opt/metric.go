package opt

import "math"

const (
	// EarthRadiusMeters is the mean Earth radius used by Haversine.
	EarthRadiusMeters = 6371000.0
	// NominalSpeed is the travel speed (m/s) assumed by TravelTime.
	NominalSpeed = 9.0
)

// Metric measures the cost of travelling from (x1,y1) to (x2,y2).
type Metric interface {
	Calculate(x1, y1, x2, y2 float64) float64
}

// MetricFunc adapts a plain function to Metric.
type MetricFunc func(x1, y1, x2, y2 float64) float64

func (f MetricFunc) Calculate(x1, y1, x2, y2 float64) float64 { return f(x1, y1, x2, y2) }

// Haversine is the great-circle distance in metres between two lat/lon
// points given in degrees.
type Haversine struct{}

func (Haversine) Calculate(lat1, lon1, lat2, lon2 float64) float64 {
	return haversine(lat1, lon1, lat2, lon2)
}

// TravelTime converts a distance metric into seconds at a fixed speed.
type TravelTime struct {
	Base  Metric
	Speed float64
}

func (t TravelTime) Calculate(x1, y1, x2, y2 float64) float64 {
	base := t.Base
	if base == nil {
		base = Haversine{}
	}
	speed := t.Speed
	if speed <= 0 {
		speed = NominalSpeed
	}
	return base.Calculate(x1, y1, x2, y2) / speed
}

func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}
