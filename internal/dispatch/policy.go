// Package dispatch turns a scenario snapshot into an assignment delta.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ridedispatch/internal/model"
)

// Policy computes the vehicle-to-customer assignments for one tick.
// A Policy may keep state between ticks of the same scenario and is driven
// by a single goroutine.
type Policy interface {
	Name() string
	Assign(ctx context.Context, snap model.Scenario) (model.UpdateScenario, error)
}

var ErrUnknownPolicy = errors.New("dispatch: unknown policy")

// Normalize maps a selector value to its canonical policy name. Empty
// selects the greedy dispatcher; "batch" is an alias of "alns".
func Normalize(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", model.PolicyGreedy:
		return model.PolicyGreedy, nil
	case model.PolicyALNS, "batch":
		return model.PolicyALNS, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}

// Factory builds a fresh Policy per simulation session.
type Factory func(name string) (Policy, error)

// NewFactory returns a Factory producing Greedy or Planned policies.
func NewFactory(planned PlannedConfig) Factory {
	return func(name string) (Policy, error) {
		n, err := Normalize(name)
		if err != nil {
			return nil, err
		}
		if n == model.PolicyALNS {
			return NewPlanned(planned), nil
		}
		return Greedy{}, nil
	}
}

// freeVehicles returns available vehicles without a customer, in snapshot order.
func freeVehicles(snap model.Scenario) []model.Vehicle {
	return snap.AvailableVehicles()
}

// pendingCustomers returns customers awaiting service that no vehicle is
// already heading to, in snapshot order.
func pendingCustomers(snap model.Scenario) []model.Customer {
	served := snap.ServedCustomerIDs()
	out := make([]model.Customer, 0, len(snap.Customers))
	for _, c := range snap.AwaitingCustomers() {
		if _, ok := served[c.ID]; !ok {
			out = append(out, c)
		}
	}
	return out
}
