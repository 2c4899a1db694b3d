package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gwebsocket "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tankguard-gateway/internal/data"
	"tankguard-gateway/internal/websocket"
)

func TestObserverLogin(t *testing.T) {
	e := newTestEnv(t)
	server := httptest.NewServer(SetupObserverRouter(e.handler, e.handler.observers))
	t.Cleanup(server.Close)

	resp, err := http.Post(server.URL+"/api/login", "application/json",
		bytes.NewReader([]byte(`{"username":"admin","password":"hunter2"}`)))
	require.NoError(t, err)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["token"])

	claims, err := e.handler.observers.ValidateJWT(body["token"])
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)

	resp, err = http.Post(server.URL+"/api/login", "application/json",
		bytes.NewReader([]byte(`{"username":"admin","password":"wrong"}`)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestObserverLoginAndCommandFlow(t *testing.T) {
	e := newTestEnv(t)
	e.registerDevice(t, "sump-1", data.RoleLevelAndPump, "s3cret")

	observers := e.handler.observers
	server := httptest.NewServer(SetupObserverRouter(e.handler, observers))
	t.Cleanup(server.Close)

	token, err := observers.GenerateJWT("admin", "admin")
	require.NoError(t, err)

	// Unauthenticated command request is rejected.
	resp, err := http.Post(server.URL+"/api/devices/sump-1/commands", "application/json",
		bytes.NewReader([]byte(`{"type":"motor_stop"}`)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Authenticated command request enqueues for the offline device.
	req, _ := http.NewRequest(http.MethodPost, server.URL+"/api/devices/sump-1/commands",
		bytes.NewReader([]byte(`{"type":"motor_stop","critical":true}`)))
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	var cmd data.Command
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cmd))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, cmd.ID)

	polled := e.queue.Poll("sump-1", time.Now().UTC())
	require.NotNil(t, polled)
	assert.Equal(t, cmd.ID, polled.ID)
}

func TestObserverCommandForUnknownDevice(t *testing.T) {
	e := newTestEnv(t)
	server := httptest.NewServer(SetupObserverRouter(e.handler, e.handler.observers))
	t.Cleanup(server.Close)

	token, err := e.handler.observers.GenerateJWT("admin", "admin")
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/api/devices/ghost/commands",
		bytes.NewReader([]byte(`{"type":"reboot"}`)))
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeviceRegistrationAndDeactivation(t *testing.T) {
	e := newTestEnv(t)
	server := httptest.NewServer(SetupObserverRouter(e.handler, e.handler.observers))
	t.Cleanup(server.Close)

	token, err := e.handler.observers.GenerateJWT("admin", "admin")
	require.NoError(t, err)

	body := []byte(`{"id":"top-9","role":"level_sensor","hmac_secret":"s","firmware":"1.2.0"}`)
	req, _ := http.NewRequest(http.MethodPost, server.URL+"/api/devices", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	device, err := e.store.DeviceByID(context.Background(), "top-9")
	require.NoError(t, err)
	require.NotNil(t, device)
	assert.True(t, device.Active)

	req, _ = http.NewRequest(http.MethodDelete, server.URL+"/api/devices/top-9", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	device, err = e.store.DeviceByID(context.Background(), "top-9")
	require.NoError(t, err)
	assert.False(t, device.Active)
}

func TestObserverStreamReceivesReadings(t *testing.T) {
	e := newTestEnv(t)
	e.registerDevice(t, "sump-1", data.RoleLevelAndPump, "s3cret")

	server := httptest.NewServer(SetupObserverRouter(e.handler, e.handler.observers))
	t.Cleanup(server.Close)

	token, err := e.handler.observers.GenerateJWT("admin", "admin")
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + token
	conn, _, err := gwebsocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Wait for the hub to register the observer before ingesting.
	require.Eventually(t, func() bool { return e.handler.hub.ObserverCount() == 1 },
		2*time.Second, 5*time.Millisecond)

	body := []byte(`{"tank_role":"sump_tank","level_percentage":55,"sensor_health":true,"auto_mode_enabled":true}`)
	resp := e.signedRequest(t, http.MethodPost, "/api/sensor-data", "sump-1", "s3cret", body, time.Now())
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	// A frame may batch several newline-separated envelopes.
	first := msg
	if i := bytes.IndexByte(msg, '\n'); i >= 0 {
		first = msg[:i]
	}
	var env struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(first, &env))
	assert.Equal(t, "tank_reading", env.Type)
}

func TestHistoryToDroppedObserverIsDiscarded(t *testing.T) {
	e := newTestEnv(t)

	e.handler.recent.Add(&data.Reading{
		DeviceID: "sump-1", Tank: data.TankSump, LevelPercent: 50,
		SensorHealthy: true, SensorAgreement: true, Timestamp: time.Now().UTC(),
	})

	// An observer with a tiny buffer gets dropped by the fan-out; the hub
	// closes its channel. The late history send must be discarded, not sent
	// on the closed channel.
	client := &websocket.Client{Hub: e.handler.hub, Send: make(chan []byte, 1)}
	e.handler.hub.RegisterClient(client)
	require.Eventually(t, func() bool { return e.handler.hub.ObserverCount() == 1 },
		2*time.Second, 5*time.Millisecond)

	e.handler.hub.Broadcast(websocket.EventSystemStatus, map[string]any{"n": 1})
	e.handler.hub.Broadcast(websocket.EventSystemStatus, map[string]any{"n": 2})
	require.Eventually(t, func() bool { return e.handler.hub.ObserverCount() == 0 },
		2*time.Second, 5*time.Millisecond)

	e.handler.sendInitialData(client)
	assert.False(t, client.TrySend([]byte(`{}`)))
}

func TestObserverStreamRejectsBadToken(t *testing.T) {
	e := newTestEnv(t)
	server := httptest.NewServer(SetupObserverRouter(e.handler, e.handler.observers))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=garbage"
	_, resp, err := gwebsocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
