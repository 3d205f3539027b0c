package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"lighting-bridge/internal/domain/model"

	"github.com/amimof/huego"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLighting struct {
	mu      sync.Mutex
	on      bool
	level   model.Level
	actions []model.Action
	levels  []model.Level
}

func (f *fakeLighting) Init(ctx context.Context) error { return nil }

func (f *fakeLighting) IsTurnedOn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on
}

func (f *fakeLighting) GetLevel() model.Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.level
}

func (f *fakeLighting) SetLevel(value model.Level) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels = append(f.levels, value)
	f.level = value
}

func (f *fakeLighting) InitiateAction(action model.Action) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	want := action == model.ActionTurnOn
	if f.on == want {
		return false
	}
	f.on = want
	return true
}

func (f *fakeLighting) calls() ([]model.Action, []model.Level) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Action(nil), f.actions...), append([]model.Level(nil), f.levels...)
}

func (f *fakeLighting) SetCallbacks(onInitiated, onCompleted model.ActionCallback) {}

func (f *fakeLighting) State() *huego.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &huego.State{On: f.on, Bri: f.level, Reachable: true}
}

var testUUID = uuid.MustParse("2f402f80-da50-11e1-9b23-001788102201")

func newTestServer(lighting *fakeLighting, hub *EventHub) *httptest.Server {
	info := BridgeInfo{Name: "devicectl", UUID: testUUID, IP: "10.0.0.2", Port: 80}
	return httptest.NewServer(NewServer(lighting, hub, info, zap.NewNop()).Handler())
}

func doRequest(t *testing.T, method, url, body string) *http.Response {
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServer_Description(t *testing.T) {
	srv := newTestServer(&fakeLighting{}, nil)
	defer srv.Close()

	resp := doRequest(t, http.MethodGet, srv.URL+"/description.xml", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	buf := new(bytes.Buffer)
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "http://10.0.0.2:80/")
	assert.Contains(t, buf.String(), "uuid:2f402f80-da50-11e1-9b23-001788102201")
	assert.Contains(t, buf.String(), "<serialNumber>001788102201</serialNumber>")
}

func TestServer_Register(t *testing.T) {
	srv := newTestServer(&fakeLighting{}, nil)
	defer srv.Close()

	resp := doRequest(t, http.MethodPost, srv.URL+"/api", `{"devicetype":"echo"}`)
	var body []map[string]map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body, 1)
	assert.Len(t, body[0]["success"]["username"], 32)

	resp = doRequest(t, http.MethodGet, srv.URL+"/api", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServer_GetLights(t *testing.T) {
	lighting := &fakeLighting{on: true, level: 120}
	srv := newTestServer(lighting, nil)
	defer srv.Close()

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/user/lights", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var lights map[string]huego.Light
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&lights))
	require.Contains(t, lights, "1")
	assert.Equal(t, "devicectl", lights["1"].Name)
	assert.True(t, lights["1"].State.On)
	assert.Equal(t, uint8(120), lights["1"].State.Bri)
}

func TestServer_GetLightAndFullState(t *testing.T) {
	srv := newTestServer(&fakeLighting{on: false, level: 9}, nil)
	defer srv.Close()

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/user/lights/1", "")
	var light huego.Light
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&light))
	assert.False(t, light.State.On)
	assert.Equal(t, "001788102201-1", light.UniqueID)

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/user", "")
	var full map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&full))
	assert.Contains(t, full, "lights")
	assert.Contains(t, full, "config")
}

func TestServer_UnknownLight(t *testing.T) {
	srv := newTestServer(&fakeLighting{}, nil)
	defer srv.Close()

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/user/lights/2", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body []map[string]map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, float64(errResourceNotFound), body[0]["error"]["type"])
	assert.Equal(t, "/lights/2", body[0]["error"]["address"])

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/user/groups", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_SetLightState(t *testing.T) {
	lighting := &fakeLighting{on: false}
	srv := newTestServer(lighting, nil)
	defer srv.Close()

	resp := doRequest(t, http.MethodPut, srv.URL+"/api/user/lights/1/state", `{"on": true, "bri": 200}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body []map[string]map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body, 2)
	assert.Equal(t, true, body[0]["success"]["/lights/1/state/on"])
	assert.Equal(t, float64(200), body[1]["success"]["/lights/1/state/bri"])

	actions, levels := lighting.calls()
	assert.Equal(t, []model.Action{model.ActionTurnOn}, actions)
	assert.Equal(t, []model.Level{200}, levels)
	assert.True(t, lighting.IsTurnedOn())

	resp = doRequest(t, http.MethodPut, srv.URL+"/api/user/lights/1/state", `{"on": false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, lighting.IsTurnedOn())
	_, levels = lighting.calls()
	assert.Len(t, levels, 1)
}

func TestServer_SetLightStateInvalid(t *testing.T) {
	lighting := &fakeLighting{}
	srv := newTestServer(lighting, nil)
	defer srv.Close()

	tests := []struct {
		name   string
		method string
		body   string
		status int
	}{
		{"invalid json", http.MethodPut, `{"on":`, http.StatusBadRequest},
		{"on not bool", http.MethodPut, `{"on": "yes"}`, http.StatusBadRequest},
		{"bri too low", http.MethodPut, `{"bri": 0}`, http.StatusBadRequest},
		{"bri too high", http.MethodPut, `{"bri": 255}`, http.StatusBadRequest},
		{"wrong method", http.MethodPost, `{"on": true}`, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, tt.method, srv.URL+"/api/user/lights/1/state", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	actions, levels := lighting.calls()
	assert.Empty(t, actions)
	assert.Empty(t, levels)
}

func TestEventHub_StreamsCallbacks(t *testing.T) {
	hub := NewEventHub(zap.NewNop())
	defer hub.Close()
	lighting := &fakeLighting{on: true, level: 30}
	srv := newTestServer(lighting, hub)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.clients) == 1
	}, time.Second, 10*time.Millisecond)

	onInitiated, onCompleted := hub.Callbacks(lighting)
	onInitiated(model.ActionTurnOff)
	onCompleted(model.ActionTurnOff)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventActionInitiated, ev.Type)
	assert.Equal(t, "turn_off", ev.Action)
	assert.True(t, ev.On)
	assert.Equal(t, model.Level(30), ev.Level)

	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventActionCompleted, ev.Type)
}

func TestEventHub_ClientDisconnect(t *testing.T) {
	hub := NewEventHub(zap.NewNop())
	srv := newTestServer(&fakeLighting{}, hub)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.clients) == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.clients) == 0
	}, time.Second, 10*time.Millisecond)

	assert.NotPanics(t, func() { hub.Publish(Event{Type: EventActionCompleted}) })
	hub.Close()
}
