package api

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"ridedispatch/internal/dispatch"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type createRequest struct {
	Vehicles  int `validate:"min=1,max=10000"`
	Customers int `validate:"min=1,max=100000"`
}

type watchRequest struct {
	ScenarioID string  `validate:"required,max=128"`
	Speed      float64 `validate:"gt=0,lte=1000"`
	Policy     string
}

func parseCreateRequest(q url.Values) (createRequest, error) {
	var req createRequest
	var err error
	if req.Vehicles, err = intParam(q, "numberOfVehicles"); err != nil {
		return req, err
	}
	if req.Customers, err = intParam(q, "numberOfCustomers"); err != nil {
		return req, err
	}
	return req, validationError(validate.Struct(req))
}

func parseWatchRequest(q url.Values, defaultSpeed float64, defaultPolicy string) (watchRequest, error) {
	req := watchRequest{
		ScenarioID: strings.TrimSpace(q.Get("scenario_id")),
		Speed:      defaultSpeed,
		Policy:     defaultPolicy,
	}
	if v := q.Get("speed"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, fmt.Errorf("speed: %q is not a number", v)
		}
		req.Speed = f
	}
	if v := q.Get("policy"); v != "" {
		req.Policy = v
	}
	if err := validationError(validate.Struct(req)); err != nil {
		return req, err
	}
	if _, err := dispatch.Normalize(req.Policy); err != nil {
		return req, err
	}
	return req, nil
}

func intParam(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if v == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", name, v)
	}
	return n, nil
}

// validationError flattens validator output into one readable error.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
