package opt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversine(t *testing.T) {
	h := Haversine{}
	assert.Equal(t, 0.0, h.Calculate(48.1, 11.5, 48.1, 11.5))
	// one degree of latitude is ~111.19 km
	assert.InDelta(t, 111195, h.Calculate(0, 0, 1, 0), 10)
	// Berlin -> Paris ~878 km
	assert.InDelta(t, 878000, h.Calculate(52.5200, 13.4050, 48.8566, 2.3522), 3000)
	assert.InDelta(t, h.Calculate(1, 2, 3, 4), h.Calculate(3, 4, 1, 2), 1e-6)
}

func TestTravelTime(t *testing.T) {
	tt := TravelTime{}
	d := Haversine{}.Calculate(0, 0, 1, 0)
	assert.InDelta(t, d/NominalSpeed, tt.Calculate(0, 0, 1, 0), 1e-9)

	fast := TravelTime{Base: MetricFunc(func(x1, y1, x2, y2 float64) float64 { return 100 }), Speed: 10}
	assert.Equal(t, 10.0, fast.Calculate(0, 0, 0, 0))
}
