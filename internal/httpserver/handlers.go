package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"blast/internal/dispatch"
	"blast/internal/domain"
	"blast/internal/gateway"
	"blast/internal/service"
	"blast/internal/util"
)

type API struct {
	Svc        *service.BroadcastService
	Dispatcher *dispatch.Dispatcher

	BroadcastIDGen func() string
	RecipientIDGen func() string
}

func (a *API) Register(m *mux.Router) {
	m.HandleFunc("/v1/broadcasts", a.handleCreateBroadcast).Methods(http.MethodPost)
	m.HandleFunc("/v1/broadcasts/control", a.handleControl).Methods(http.MethodPost)
	m.HandleFunc("/v1/broadcasts/{id}", a.handleGetBroadcast).Methods(http.MethodGet)
	m.HandleFunc("/v1/broadcasts/{id}/recipients", a.handleAddRecipients).Methods(http.MethodPost)
	m.HandleFunc("/v1/broadcasts/{id}/recipients", a.handleListRecipients).Methods(http.MethodGet)
}

func (a *API) handleCreateBroadcast(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateBroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := a.Svc.CreateBroadcast(r.Context(), req, a.BroadcastIDGen(), util.NowUTC())
	if err != nil {
		slog.Error("create broadcast failed", "err", err)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(resp)
}

// handleControl is the single control entry point: the dashboard and the
// periodic scheduler both drive campaigns through it.
func (a *API) handleControl(w http.ResponseWriter, r *http.Request) {
	var req domain.ControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	action, err := domain.ParseAction(req.Action)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	msg, err := a.Dispatcher.Handle(r.Context(), action, req.BroadcastID)
	if err != nil {
		status := controlStatus(err)
		if status >= http.StatusInternalServerError {
			slog.Error("broadcast control failed",
				"err", err,
				"action", req.Action,
				"broadcast_id", req.BroadcastID,
			)
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(domain.ControlResponse{Success: true, Message: msg})
}

func controlStatus(err error) int {
	switch {
	case errors.Is(err, dispatch.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnknownAction):
		return http.StatusBadRequest
	case errors.Is(err, dispatch.ErrInvalidTransition), errors.Is(err, dispatch.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, gateway.ErrNotConfigured):
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}

func (a *API) handleGetBroadcast(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		http.Error(w, ErrMissingID, http.StatusBadRequest)
		return
	}
	view, found, err := a.Svc.GetBroadcast(r.Context(), id)
	if err != nil {
		slog.Error("get broadcast failed", "err", err, "id", id)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	}
	if !found {
		http.Error(w, ErrNotFound, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(view)
}

func (a *API) handleAddRecipients(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req domain.AddRecipientsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	added, err := a.Svc.AddRecipients(r.Context(), id, req, a.RecipientIDGen, util.NowUTC())
	if err != nil {
		if errors.Is(err, service.ErrBroadcastNotFound) {
			http.Error(w, ErrNotFound, http.StatusNotFound)
			return
		}
		slog.Error("add recipients failed", "err", err, "broadcast_id", id)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]int{"added": added})
}

func (a *API) handleListRecipients(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	status := r.URL.Query().Get("status")

	out, err := a.Svc.ListRecipients(r.Context(), id, status, 0)
	if err != nil {
		slog.Error("list recipients failed", "err", err, "broadcast_id", id)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}
