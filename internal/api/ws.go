package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"ridedispatch/internal/dispatch"
	"ridedispatch/internal/sim"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 20 * time.Second
	// close frame payloads are capped at 125 bytes including the code
	maxCloseText = 120
)

// WSHandler handles GET /ws?scenario_id=&speed=&policy=
//
// The scenario is initialized before the upgrade so runner failures are
// reported as a plain HTTP problem. After the upgrade every snapshot is
// one text frame; inbound frames are only read to notice the disconnect.
func (s *Server) WSHandler(w http.ResponseWriter, r *http.Request) {
	req, err := parseWatchRequest(r.URL.Query(), s.Cfg.Sim.DefaultSpeed, s.Cfg.Sim.DefaultPolicy)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid request", err.Error(), r.URL.Path)
		return
	}
	if !websocket.IsWebSocketUpgrade(r) {
		writeProblem(w, http.StatusBadRequest, "WebSocket upgrade required", "", r.URL.Path)
		return
	}
	if !s.checkOrigin(r) {
		writeProblem(w, http.StatusForbidden, "Origin not allowed", r.Header.Get("Origin"), r.URL.Path)
		return
	}

	sub, err := s.Registry.Subscribe(r.Context(), sim.Request{ScenarioID: req.ScenarioID, Speed: req.Speed, Policy: req.Policy})
	if err != nil {
		status, title := http.StatusBadGateway, "Scenario unavailable"
		if errors.Is(err, dispatch.ErrUnknownPolicy) {
			status, title = http.StatusBadRequest, "Invalid request"
		}
		s.Log.Warnf("subscribe %s: %v", req.ScenarioID, err)
		writeProblem(w, status, title, err.Error(), r.URL.Path)
		return
	}
	defer s.Registry.Unsubscribe(sub)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Debugf("upgrade %s: %v", req.ScenarioID, err)
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(s.Cfg.Sim.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })

	// Read loop: inbound messages are ignored, any error means the peer left
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				s.Registry.Unsubscribe(sub)
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		}
	}()

	s.stream(conn, sub)
}

// stream writes frames until the subscriber ends, then sends a close frame
// carrying the end reason.
func (s *Server) stream(conn *websocket.Conn, sub *sim.Subscriber) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	write := func(data []byte) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	for {
		select {
		case data := <-sub.Frames():
			if err := write(data); err != nil {
				s.Log.Debugf("write to %s: %v", sub.ID, err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-sub.Done():
			for {
				select {
				case data := <-sub.Frames():
					if err := write(data); err != nil {
						return
					}
					continue
				default:
				}
				break
			}
			reason, detail := sub.Reason()
			msg := websocket.FormatCloseMessage(closeCode(reason), closeText(reason, detail))
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}
	}
}

func closeCode(r sim.Reason) int {
	switch r {
	case sim.ReasonFailed:
		return websocket.CloseInternalServerErr
	case sim.ReasonSlowConsumer:
		return websocket.CloseTryAgainLater
	case sim.ReasonCancelled:
		return websocket.CloseGoingAway
	default:
		return websocket.CloseNormalClosure
	}
}

func closeText(r sim.Reason, detail string) string {
	text := string(r)
	if detail != "" {
		text += ": " + detail
	}
	if len(text) > maxCloseText {
		text = text[:maxCloseText]
	}
	return text
}
