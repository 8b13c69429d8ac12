package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/rotor_bench/internal/config"
	"github.com/relabs-tech/rotor_bench/internal/telemetry"
)

// maxRuns bounds the run summaries kept for /api/runs.
const maxRuns = 500

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// liveMessage is what /ws/live pushes for every MQTT message.
type liveMessage struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// liveState keeps the latest rig messages seen on MQTT.
type liveState struct {
	cfg *config.Config
	hub *liveHub

	mu          sync.RWMutex
	status      telemetry.Status
	haveStatus  bool
	calibration CalibrationEvent
	haveCal     bool
	runs        []RunSummary
}

func newLiveState(cfg *config.Config, hub *liveHub) *liveState {
	return &liveState{cfg: cfg, hub: hub}
}

// handle decodes one MQTT payload and forwards it to websocket clients.
func (s *liveState) handle(topic string, payload []byte) error {
	s.mu.Lock()
	switch topic {
	case s.cfg.TopicStatus:
		var st telemetry.Status
		if err := json.Unmarshal(payload, &st); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("status payload: %w", err)
		}
		s.status, s.haveStatus = st, true
	case s.cfg.TopicCalibration:
		var ev CalibrationEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("calibration payload: %w", err)
		}
		s.calibration, s.haveCal = ev, true
	case s.cfg.TopicRuns:
		var run RunSummary
		if err := json.Unmarshal(payload, &run); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("run payload: %w", err)
		}
		s.runs = append(s.runs, run)
		if len(s.runs) > maxRuns {
			s.runs = s.runs[len(s.runs)-maxRuns:]
		}
	default:
		s.mu.Unlock()
		return fmt.Errorf("unexpected topic %q", topic)
	}
	s.mu.Unlock()

	if s.hub != nil {
		s.hub.broadcast(liveMessage{Topic: topic, Payload: payload})
	}
	return nil
}

// snapshot returns the messages a new websocket client starts from.
func (s *liveState) snapshot() []liveMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []liveMessage
	if s.haveStatus {
		if b, err := json.Marshal(s.status); err == nil {
			out = append(out, liveMessage{Topic: s.cfg.TopicStatus, Payload: b})
		}
	}
	if s.haveCal {
		if b, err := json.Marshal(s.calibration); err == nil {
			out = append(out, liveMessage{Topic: s.cfg.TopicCalibration, Payload: b})
		}
	}
	return out
}

// liveHub fans messages out to every connected websocket.
type liveHub struct {
	mu      sync.Mutex
	clients map[*liveClient]struct{}
}

type liveClient struct {
	conn *websocket.Conn
	send chan liveMessage
}

func newLiveHub() *liveHub {
	return &liveHub{clients: make(map[*liveClient]struct{})}
}

func (h *liveHub) broadcast(m liveMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- m:
		default:
			// slow client, it will catch up on the next status
		}
	}
}

func (h *liveHub) remove(c *liveClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// serve upgrades the request and streams until the client goes away.
func (h *liveHub) serve(state *liveState, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}

	c := &liveClient{conn: conn, send: make(chan liveMessage, 64)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	for _, m := range state.snapshot() {
		c.send <- m
	}

	go func() {
		defer conn.Close()
		for m := range c.send {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(m); err != nil {
				log.Printf("web: websocket write error: %v", err)
				h.remove(c)
				return
			}
		}
	}()

	// Reads only detect the close; clients have nothing to say.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("web: websocket error: %v", err)
			}
			h.remove(c)
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

func newWebRouter(state *liveState, hub *liveHub, static string) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/api/status", func(w http.ResponseWriter, _ *http.Request) {
		state.mu.RLock()
		defer state.mu.RUnlock()
		if !state.haveStatus {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, state.status)
	}).Methods(http.MethodGet)

	router.HandleFunc("/api/calibration", func(w http.ResponseWriter, _ *http.Request) {
		state.mu.RLock()
		defer state.mu.RUnlock()
		if !state.haveCal {
			http.Error(w, "no calibration yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, state.calibration)
	}).Methods(http.MethodGet)

	router.HandleFunc("/api/runs", func(w http.ResponseWriter, _ *http.Request) {
		state.mu.RLock()
		defer state.mu.RUnlock()
		runs := state.runs
		if runs == nil {
			runs = []RunSummary{}
		}
		writeJSON(w, runs)
	}).Methods(http.MethodGet)

	router.HandleFunc("/api/runs/{test:[0-9]+}", func(w http.ResponseWriter, r *http.Request) {
		test, err := strconv.Atoi(mux.Vars(r)["test"])
		if err != nil {
			http.Error(w, "bad test number", http.StatusBadRequest)
			return
		}
		state.mu.RLock()
		defer state.mu.RUnlock()
		var runs []RunSummary
		for _, run := range state.runs {
			if run.Test == test {
				runs = append(runs, run)
			}
		}
		if len(runs) == 0 {
			http.Error(w, "unknown test", http.StatusNotFound)
			return
		}
		writeJSON(w, runs)
	}).Methods(http.MethodGet)

	router.HandleFunc("/ws/live", func(w http.ResponseWriter, r *http.Request) {
		hub.serve(state, w, r)
	})

	if static != "" {
		router.PathPrefix("/").Handler(http.FileServer(http.Dir(static)))
	}
	return router
}

// RunWeb serves the live dashboard fed from the rig's MQTT topics.
func RunWeb(cfg *config.Config) error {
	if cfg.MQTTBroker == "" {
		return fmt.Errorf("web: MQTT_BROKER is not configured")
	}

	hub := newLiveHub()
	state := newLiveState(cfg, hub)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDWeb)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("web: connected to MQTT broker at %s", cfg.MQTTBroker)

	for _, topic := range []string{cfg.TopicStatus, cfg.TopicCalibration, cfg.TopicRuns} {
		token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			if err := state.handle(msg.Topic(), msg.Payload()); err != nil {
				log.Printf("web: %v", err)
			}
		})
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
		log.Printf("web: subscribed to %s", topic)
	}

	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.WebServerPort),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Handler:        newWebRouter(state, hub, "web"),
	}
	log.Printf("web: listening on %s", server.Addr)
	return server.ListenAndServe()
}
