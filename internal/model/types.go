package model

// Wire types shared with the runner and backend services. Field names
// follow the runner's camelCase JSON.

// Coordinate is a planar or geodesic position (x=lat, y=lon for geodesic metrics).
type Coordinate struct {
	X float64
	Y float64
}

type Scenario struct {
	ID        string     `json:"id"`
	StartTime *string    `json:"startTime,omitempty"`
	EndTime   *string    `json:"endTime,omitempty"`
	Status    string     `json:"status"`
	Vehicles  []Vehicle  `json:"vehicles"`
	Customers []Customer `json:"customers"`
}

// Done reports whether the runner has marked the scenario terminal.
func (s Scenario) Done() bool { return s.EndTime != nil }

// AvailableVehicles returns vehicles that are free to take a new customer.
func (s Scenario) AvailableVehicles() []Vehicle {
	out := []Vehicle{}
	for _, v := range s.Vehicles {
		if v.Free() {
			out = append(out, v)
		}
	}
	return out
}

// AwaitingCustomers returns customers still waiting for a pickup.
func (s Scenario) AwaitingCustomers() []Customer {
	out := []Customer{}
	for _, c := range s.Customers {
		if c.AwaitingService {
			out = append(out, c)
		}
	}
	return out
}

// ServedCustomerIDs returns the ids of customers currently linked to a vehicle.
func (s Scenario) ServedCustomerIDs() map[string]struct{} {
	out := map[string]struct{}{}
	for _, v := range s.Vehicles {
		if v.CustomerID != nil && *v.CustomerID != "" {
			out[*v.CustomerID] = struct{}{}
		}
	}
	return out
}

type Customer struct {
	ID              string   `json:"id"`
	CoordX          float64  `json:"coordX"`
	CoordY          float64  `json:"coordY"`
	DestinationX    *float64 `json:"destinationX,omitempty"`
	DestinationY    *float64 `json:"destinationY,omitempty"`
	AwaitingService bool     `json:"awaitingService"`
}

// Origin is the pickup position.
func (c Customer) Origin() Coordinate { return Coordinate{X: c.CoordX, Y: c.CoordY} }

// Destination is the drop-off position. Customers without a destination
// yet are treated as a zero-length trip ending at the origin.
func (c Customer) Destination() Coordinate {
	if c.DestinationX == nil || c.DestinationY == nil {
		return c.Origin()
	}
	return Coordinate{X: *c.DestinationX, Y: *c.DestinationY}
}

type Vehicle struct {
	ID                  string   `json:"id"`
	CoordX              float64  `json:"coordX"`
	CoordY              float64  `json:"coordY"`
	IsAvailable         bool     `json:"isAvailable"`
	VehicleSpeed        *float64 `json:"vehicleSpeed,omitempty"`
	CustomerID          *string  `json:"customerId,omitempty"`
	RemainingTravelTime *float64 `json:"remainingTravelTime,omitempty"`
	DistanceTravelled   *float64 `json:"distanceTravelled,omitempty"`
	ActiveTime          *float64 `json:"activeTime,omitempty"`
	NumberOfTrips       *int     `json:"numberOfTrips,omitempty"`
}

// Position is the vehicle's current coordinate.
func (v Vehicle) Position() Coordinate { return Coordinate{X: v.CoordX, Y: v.CoordY} }

// Free reports whether the vehicle can accept an assignment this tick.
func (v Vehicle) Free() bool {
	return v.IsAvailable && (v.CustomerID == nil || *v.CustomerID == "")
}

// UpdateScenario is the assignment delta sent to the runner.
type UpdateScenario struct {
	Vehicles []UpdateVehicle `json:"vehicles"`
}

type UpdateVehicle struct {
	ID         string `json:"id"`
	CustomerID string `json:"customerId"`
}

type UpdateScenarioResponse struct {
	FailedToUpdate  []string  `json:"failedToUpdate"`
	UpdatedVehicles []Vehicle `json:"updatedVehicles"`
}

type LaunchScenarioResponse struct {
	Message    string `json:"message"`
	ScenarioID string `json:"scenarioId"`
	StartTime  string `json:"startTime"`
}

// Policy selector values accepted on the subscriber surface.
const (
	PolicyGreedy = "greedy"
	PolicyALNS   = "alns"
)

// StringPtr and FloatPtr are small helpers for building optional fields.
func StringPtr(s string) *string { return &s }

func FloatPtr(f float64) *float64 { return &f }
