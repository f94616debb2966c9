package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/kelseyhightower/envconfig"
)

type config struct {
	Port        string  `envconfig:"PORT" default:"8090"`
	SuccessRate float64 `envconfig:"MOCK_SUCCESS_RATE" default:"0.95"`
	DelayMs     int     `envconfig:"MOCK_DELAY_MS" default:"50"`
	// Phones in this comma-free list always fail, for deterministic tests.
	AlwaysFail string `envconfig:"MOCK_ALWAYS_FAIL_PHONE" default:""`
}

type sendRequest struct {
	Phone    string `json:"phone"`
	Message  string `json:"message"`
	Caption  string `json:"caption"`
	Image    string `json:"image"`
	Video    string `json:"video"`
	Document string `json:"document"`
}

type sendResponse struct {
	MessageID string `json:"messageId,omitempty"`
	Sent      bool   `json:"sent"`
	Error     string `json:"error,omitempty"`
}

type sentRecord struct {
	Operation string    `json:"operation"`
	Phone     string    `json:"phone"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

type server struct {
	cfg   config
	seq   uint64
	rng   *rand.Rand
	rngMu sync.Mutex

	mu  sync.Mutex
	log []sentRecord
}

var operations = []string{
	"send-text",
	"send-image",
	"send-video",
	"send-document",
	"send-button-actions",
	"send-button-list",
	"send-button-list-image",
	"send-button-list-video",
}

func main() {
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	s := &server{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	router := mux.NewRouter()
	for _, op := range operations {
		router.HandleFunc("/instances/{instance}/token/{token}/"+op, s.handleSend(op)).Methods(http.MethodPost)
	}
	router.HandleFunc("/admin/sent", s.handleSentLog).Methods(http.MethodGet)

	slog.Info("mock gateway listening", "port", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		slog.Error("mock gateway server failed", "err", err)
		os.Exit(1)
	}
}

func (s *server) handleSend(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, sendResponse{Error: "invalid json"})
			return
		}
		if req.Phone == "" {
			writeJSON(w, http.StatusBadRequest, sendResponse{Error: "phone is required"})
			return
		}

		if s.cfg.DelayMs > 0 {
			time.Sleep(time.Duration(s.cfg.DelayMs) * time.Millisecond)
		}

		if req.Phone == s.cfg.AlwaysFail || !s.roll() {
			writeJSON(w, http.StatusOK, sendResponse{Sent: false, Error: "invalid recipient number"})
			return
		}

		s.mu.Lock()
		s.log = append(s.log, sentRecord{Operation: op, Phone: req.Phone, Message: req.Message, At: time.Now().UTC()})
		if len(s.log) > 10000 {
			s.log = s.log[len(s.log)-10000:]
		}
		s.mu.Unlock()

		id := fmt.Sprintf("mock_%d", atomic.AddUint64(&s.seq, 1))
		writeJSON(w, http.StatusOK, sendResponse{MessageID: id, Sent: true})
	}
}

func (s *server) handleSentLog(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]sentRecord, len(s.log))
	copy(out, s.log)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *server) roll() bool {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64() < s.cfg.SuccessRate
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
