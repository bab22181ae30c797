// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/s4link/s4link/pkg/poll"
	"github.com/s4link/s4link/pkg/s4"
	"github.com/s4link/s4link/pkg/session"
)

// sessionAPI is the part of *session.Session the HTTP API uses.
type sessionAPI interface {
	State() session.State
	Identity() (s4.ModelInformation, bool)
	Engine() *poll.Engine
	Send(m s4.Message) error
}

type stateResponse struct {
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	Model     int    `json:"model,omitempty"`
	Firmware  string `json:"firmware,omitempty"`
}

type readingResponse struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Address  string     `json:"address"`
	Location int        `json:"location"`
	Width    string     `json:"width"`
	Priority string     `json:"priority"`
	Value    *uint32    `json:"value,omitempty"`
	Updated  *time.Time `json:"updated,omitempty"`
}

type workoutRequest struct {
	Distance int    `json:"distance,omitempty"`
	Unit     string `json:"unit,omitempty"`
	Duration string `json:"duration,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type api struct {
	session sessionAPI
}

// newRouter returns the HTTP API for s.
func newRouter(s sessionAPI) *mux.Router {
	a := &api{session: s}

	router := mux.NewRouter()
	router.HandleFunc("/state", a.getState).Methods("GET")
	router.HandleFunc("/subscriptions", a.getSubscriptions).Methods("GET")
	router.HandleFunc("/readings/{id}", a.getReading).Methods("GET")
	router.HandleFunc("/workout", a.postWorkout).Methods("POST")
	return router
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	e := json.NewEncoder(w)
	if err := e.Encode(v); err != nil {
		logger.WithError(err).Debug("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func toReadingResponse(r poll.Reading) readingResponse {
	out := readingResponse{
		ID:       r.ID,
		Name:     r.Name,
		Address:  r.Address.String(),
		Location: int(r.Address.Location),
		Width:    r.Address.Width.String(),
		Priority: r.Priority.String(),
	}
	if r.Valid {
		v, t := r.Value, r.Updated
		out.Value = &v
		out.Updated = &t
	}
	return out
}

func (a *api) getState(w http.ResponseWriter, r *http.Request) {
	st := a.session.State()
	resp := stateResponse{State: st.String(), Connected: st.Connected()}
	if mi, ok := a.session.Identity(); ok {
		resp.Model = mi.Model
		resp.Firmware = mi.Firmware.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) getSubscriptions(w http.ResponseWriter, r *http.Request) {
	readings := a.session.Engine().Snapshot()
	out := make([]readingResponse, 0, len(readings))
	for _, rd := range readings {
		out = append(out, toReadingResponse(rd))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) getReading(w http.ResponseWriter, r *http.Request) {
	params := mux.Vars(r)
	id := params["id"]

	for _, rd := range a.session.Engine().Snapshot() {
		if rd.ID == id || rd.Name == id {
			writeJSON(w, http.StatusOK, toReadingResponse(rd))
			return
		}
	}
	writeError(w, http.StatusNotFound, errors.New("no such subscription: "+id))
}

func (a *api) postWorkout(w http.ResponseWriter, r *http.Request) {
	var req workoutRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var duration time.Duration
	if req.Duration != "" {
		d, err := time.ParseDuration(req.Duration)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		duration = d
	}
	unit := req.Unit
	if unit == "" {
		unit = "meters"
	}

	msg, err := buildWorkout(req.Distance, unit, duration)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := a.session.Send(msg); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, session.ErrNotReady) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"sent": msg.Identifier()})
}
