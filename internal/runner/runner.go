// Package runner talks to the scenario runner and the scenario backend.
package runner

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"ridedispatch/internal/model"
)

// Operation names used on errors and metrics.
const (
	OpInitialize = "initialize"
	OpLaunch     = "launch"
	OpGet        = "get"
	OpUpdate     = "update"
	OpCreate     = "create"
)

// Client calls the scenario runner, which owns vehicle and customer physics.
type Client struct {
	c *client
}

func New(baseURL string, o Options) (*Client, error) {
	c, err := newClient(baseURL, o)
	if err != nil {
		return nil, err
	}
	return &Client{c: c}, nil
}

type initializeResponse struct {
	Message  *string         `json:"message"`
	Error    *string         `json:"error"`
	Scenario *model.Scenario `json:"scenario"`
}

// Initialize imports a stored scenario into the runner. It must be called
// before Launch.
func (r *Client) Initialize(ctx context.Context, scenarioID string) (model.Scenario, error) {
	var resp initializeResponse
	q := url.Values{"db_scenario_id": {scenarioID}}
	if err := r.c.do(ctx, OpInitialize, http.MethodPost, "/Scenarios/initialize_scenario", q, struct{}{}, &resp); err != nil {
		return model.Scenario{}, err
	}
	if resp.Scenario != nil {
		return *resp.Scenario, nil
	}
	msg := "runner returned neither scenario nor error"
	if resp.Error != nil && *resp.Error != "" {
		msg = *resp.Error
	}
	return model.Scenario{}, &ProtocolError{Op: OpInitialize, Status: http.StatusOK, Err: errors.New(msg)}
}

// Launch starts the simulation at the given speed factor.
func (r *Client) Launch(ctx context.Context, scenarioID string, speed float64) (model.LaunchScenarioResponse, error) {
	var out model.LaunchScenarioResponse
	q := url.Values{"speed": {strconv.FormatFloat(speed, 'f', -1, 64)}}
	err := r.c.do(ctx, OpLaunch, http.MethodPost, "/Runner/launch_scenario/"+url.PathEscape(scenarioID), q, nil, &out)
	return out, err
}

// Get fetches the current snapshot of a running scenario.
func (r *Client) Get(ctx context.Context, scenarioID string) (model.Scenario, error) {
	var out model.Scenario
	err := r.c.do(ctx, OpGet, http.MethodGet, "/Scenarios/get_scenario/"+url.PathEscape(scenarioID), nil, nil, &out)
	return out, err
}

// Update sends an assignment delta.
func (r *Client) Update(ctx context.Context, scenarioID string, delta model.UpdateScenario) (model.UpdateScenarioResponse, error) {
	var out model.UpdateScenarioResponse
	err := r.c.do(ctx, OpUpdate, http.MethodPut, "/Scenarios/update_scenario/"+url.PathEscape(scenarioID), nil, delta, &out)
	return out, err
}

// Backend creates scenarios in the scenario store.
type Backend struct {
	c *client
}

func NewBackend(baseURL string, o Options) (*Backend, error) {
	c, err := newClient(baseURL, o)
	if err != nil {
		return nil, err
	}
	return &Backend{c: c}, nil
}

// CreateScenario asks the backend for a new random scenario.
func (b *Backend) CreateScenario(ctx context.Context, vehicles, customers int) (model.Scenario, error) {
	var out model.Scenario
	q := url.Values{
		"numberOfVehicles":  {strconv.Itoa(vehicles)},
		"numberOfCustomers": {strconv.Itoa(customers)},
	}
	err := b.c.do(ctx, OpCreate, http.MethodPost, "/scenario/create", q, nil, &out)
	return out, err
}
