// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s4link/s4link/pkg/poll"
	"github.com/s4link/s4link/pkg/s4"
	"github.com/s4link/s4link/pkg/session"
)

type fakeSession struct {
	state    session.State
	identity *s4.ModelInformation
	engine   *poll.Engine
	sent     []s4.Message
	sendErr  error
}

func (f *fakeSession) State() session.State { return f.state }

func (f *fakeSession) Identity() (s4.ModelInformation, bool) {
	if f.identity == nil {
		return s4.ModelInformation{}, false
	}
	return *f.identity, true
}

func (f *fakeSession) Engine() *poll.Engine { return f.engine }

func (f *fakeSession) Send(m s4.Message) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, m)
	return nil
}

func newFakeSession(t *testing.T) (*fakeSession, *poll.Subscription) {
	t.Helper()
	engine, err := poll.NewEngine(poll.Options{})
	require.NoError(t, err)

	sub := poll.NewSubscription(poll.High, s4.MustMemoryAddress(s4.LocationStrokeRate, s4.Single), nil, poll.WithName("stroke_rate"))
	engine.Subscribe(sub)
	engine.Subscribe(poll.NewSubscription(poll.Low, s4.MustMemoryAddress(s4.LocationDistance, s4.Double), nil, poll.WithName("distance")))
	engine.Handle(s4.DataMemory{Location: s4.LocationStrokeRate, Values: []byte{24}})

	return &fakeSession{
		state:    session.ConnectedSupportedWaterRower,
		identity: &s4.ModelInformation{Model: 4, Firmware: s4.Version{Major: 2, Minor: 10}},
		engine:   engine,
	}, sub
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAPI_State(t *testing.T) {
	fs, _ := newFakeSession(t)
	rec := do(t, newRouter(fs), "GET", "/state", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=UTF-8", rec.Header().Get("Content-Type"))

	var got stateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, stateResponse{
		State:     session.ConnectedSupportedWaterRower.String(),
		Connected: true,
		Model:     4,
		Firmware:  "02.10",
	}, got)
}

func TestAPI_StateDisconnected(t *testing.T) {
	fs, _ := newFakeSession(t)
	fs.state = session.NotConnected
	fs.identity = nil

	var got map[string]interface{}
	rec := do(t, newRouter(fs), "GET", "/state", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, false, got["connected"])
	assert.NotContains(t, got, "firmware")
}

func TestAPI_Subscriptions(t *testing.T) {
	fs, _ := newFakeSession(t)
	rec := do(t, newRouter(fs), "GET", "/subscriptions", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []readingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)

	byName := map[string]readingResponse{}
	for _, r := range got {
		byName[r.Name] = r
	}
	require.NotNil(t, byName["stroke_rate"].Value)
	assert.Equal(t, uint32(24), *byName["stroke_rate"].Value)
	assert.Nil(t, byName["distance"].Value)
	assert.Equal(t, "HIGH", byName["stroke_rate"].Priority)
}

func TestAPI_Reading(t *testing.T) {
	fs, sub := newFakeSession(t)
	router := newRouter(fs)

	for _, id := range []string{"stroke_rate", sub.ID().String()} {
		rec := do(t, router, "GET", "/readings/"+id, "")
		require.Equal(t, http.StatusOK, rec.Code, id)

		var got readingResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, sub.ID().String(), got.ID)
		assert.Equal(t, int(s4.LocationStrokeRate), got.Location)
	}

	rec := do(t, router, "GET", "/readings/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_Workout(t *testing.T) {
	fs, _ := newFakeSession(t)
	router := newRouter(fs)

	rec := do(t, router, "POST", "/workout", `{"distance":2000}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = do(t, router, "POST", "/workout", `{"duration":"20m"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	require.Len(t, fs.sent, 2)
	assert.Equal(t, s4.DistanceWorkout{Unit: s4.UnitMeters, Distance: 2000}, fs.sent[0])
	assert.Equal(t, s4.DurationWorkout{Seconds: 1200}, fs.sent[1])
}

func TestAPI_WorkoutErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		sendErr error
		want    int
	}{
		{"bad json", `{`, nil, http.StatusBadRequest},
		{"unknown field", `{"laps":3}`, nil, http.StatusBadRequest},
		{"bad duration", `{"duration":"soon"}`, nil, http.StatusBadRequest},
		{"out of range", `{"distance":70000}`, nil, http.StatusBadRequest},
		{"empty", `{}`, nil, http.StatusBadRequest},
		{"not ready", `{"distance":100}`, fmt.Errorf("send: %w", session.ErrNotReady), http.StatusConflict},
		{"transport", `{"distance":100}`, fmt.Errorf("broken pipe"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, _ := newFakeSession(t)
			fs.sendErr = tt.sendErr
			rec := do(t, newRouter(fs), "POST", "/workout", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())

			var e errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
			assert.NotEmpty(t, e.Error)
		})
	}
}

func TestAPI_MethodNotAllowed(t *testing.T) {
	fs, _ := newFakeSession(t)
	rec := do(t, newRouter(fs), "GET", "/workout", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
