// Package main runs a demo client: it creates a scenario through the
// service and prints a one-line summary of every streamed snapshot.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/gorilla/websocket"

	"ridedispatch/internal/logger"
	"ridedispatch/internal/model"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "5000"
	}
	vehicles := flag.Int("vehicles", 3, "vehicles in the created scenario")
	customers := flag.Int("customers", 8, "customers in the created scenario")
	policy := flag.String("policy", "greedy", "dispatch policy: greedy or alns")
	speed := flag.Float64("speed", 1, "simulation speed factor")
	scenarioID := flag.String("scenario", "", "stream an existing scenario instead of creating one")
	flag.Parse()

	log := logger.New("ws-client")
	host := "localhost:" + port

	id := *scenarioID
	if id == "" {
		q := url.Values{
			"numberOfVehicles":  {fmt.Sprint(*vehicles)},
			"numberOfCustomers": {fmt.Sprint(*customers)},
		}
		resp, err := http.Post("http://"+host+"/scenario/create?"+q.Encode(), "application/json", nil)
		if err != nil {
			log.Errorf("create scenario: %v", err)
			os.Exit(1)
		}
		var sc model.Scenario
		err = json.NewDecoder(resp.Body).Decode(&sc)
		_ = resp.Body.Close()
		if err != nil || resp.StatusCode != http.StatusOK {
			log.Errorf("create scenario: status %d: %v", resp.StatusCode, err)
			os.Exit(1)
		}
		id = sc.ID
		log.Infof("created scenario %s", id)
	}

	u := url.URL{Scheme: "ws", Host: host, Path: "/ws", RawQuery: url.Values{
		"scenario_id": {id},
		"speed":       {fmt.Sprint(*speed)},
		"policy":      {*policy},
	}.Encode()}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Errorf("dial: %v", err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	for tick := 0; ; tick++ {
		_, data, err := c.ReadMessage()
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			log.Infof("stream closed: %d %s", ce.Code, ce.Text)
			return
		}
		if err != nil {
			log.Errorf("read: %v", err)
			return
		}
		var sc model.Scenario
		if err := json.Unmarshal(data, &sc); err != nil {
			log.Warnf("bad frame: %v", err)
			continue
		}
		log.Infof("tick %d: status=%s free=%d awaiting=%d", tick, sc.Status, len(sc.AvailableVehicles()), len(sc.AwaitingCustomers()))
	}
}
