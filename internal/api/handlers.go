// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	gwebsocket "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"tankguard-gateway/internal/alerting"
	"tankguard-gateway/internal/auth"
	"tankguard-gateway/internal/commands"
	"tankguard-gateway/internal/config"
	"tankguard-gateway/internal/data"
	"tankguard-gateway/internal/decision"
	"tankguard-gateway/internal/presence"
	"tankguard-gateway/internal/storage"
	"tankguard-gateway/internal/websocket"
)

// Header names devices sign requests with.
const (
	HeaderDeviceID  = "X-Device-ID"
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
)

var upgrader = gwebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// APIHandler wires the request surface to the core components.
type APIHandler struct {
	cfg       *config.Config
	store     *storage.Store
	recent    *storage.RecentReadings
	validator *data.Validator
	verifier  *auth.Verifier
	observers *auth.ObserverAuth
	hub       *websocket.Hub
	queue     *commands.Queue
	alerter   *alerting.Alerter
	monitor   *presence.Monitor

	thresholds decision.Thresholds
	cooldown   *decision.CooldownTracker

	// Per-device serialization: telemetry for one device is processed in
	// order so decision calls stay deterministic; different devices proceed
	// in parallel.
	deviceLocks sync.Map // device id -> *sync.Mutex
}

func NewAPIHandler(
	cfg *config.Config,
	store *storage.Store,
	recent *storage.RecentReadings,
	verifier *auth.Verifier,
	observers *auth.ObserverAuth,
	hub *websocket.Hub,
	queue *commands.Queue,
	alerter *alerting.Alerter,
	monitor *presence.Monitor,
) *APIHandler {
	h := &APIHandler{
		cfg:       cfg,
		store:     store,
		recent:    recent,
		verifier:  verifier,
		observers: observers,
		hub:       hub,
		queue:     queue,
		alerter:   alerter,
		monitor:   monitor,
		validator: &data.Validator{
			Tolerance:        cfg.Telemetry.Tolerance,
			FloatSwitchLevel: cfg.Telemetry.FloatSwitchLevel,
			Capacities: map[data.TankRole]float64{
				data.TankTop:  cfg.Tanks.TopCapacityLiters,
				data.TankSump: cfg.Tanks.SumpCapacityLiters,
			},
		},
		thresholds: decision.FromConfig(cfg),
		cooldown:   decision.NewCooldownTracker(time.Duration(cfg.Motor.CooldownSeconds) * time.Second),
	}

	hub.OnDeviceMessage = h.routeDeviceMessage
	hub.OnDeviceConnect = h.onDeviceConnect
	hub.OnDeviceDisconnect = h.onDeviceDisconnect
	queue.OnExpire = h.onCommandExpire

	return h
}

func (h *APIHandler) lockDevice(deviceID string) func() {
	v, _ := h.deviceLocks.LoadOrStore(deviceID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// verifyRequest authenticates a device HTTP request from its signature
// headers. Responds with 401 itself on failure.
func (h *APIHandler) verifyRequest(w http.ResponseWriter, r *http.Request, body []byte) *data.Device {
	device, err := h.verifier.Verify(r.Context(),
		r.Header.Get(HeaderDeviceID), body,
		r.Header.Get(HeaderTimestamp), r.Header.Get(HeaderSignature))
	if err != nil {
		logrus.WithError(err).WithField("device_id", r.Header.Get(HeaderDeviceID)).
			Warn("device request rejected")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil
	}
	return device
}

// HandleSensorData ingests one signed telemetry reading.
func (h *APIHandler) HandleSensorData(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	device := h.verifyRequest(w, r, body)
	if device == nil {
		return
	}

	reading, err := h.validator.ParseReading(body, device.ID)
	if err != nil {
		logrus.WithError(err).WithField("device_id", device.ID).Warn("reading rejected")
		http.Error(w, "Bad Request: invalid reading", http.StatusBadRequest)
		return
	}

	h.processReading(r.Context(), device, reading)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "received"})
}

// processReading is the core ingestion path: persist (best effort), cache,
// broadcast, then let agreed readings drive alerts and the motor decision.
func (h *APIHandler) processReading(ctx context.Context, device *data.Device, reading *data.Reading) {
	unlock := h.lockDevice(device.ID)
	defer unlock()

	h.monitor.Touch(ctx, device.ID)

	// Persistence is best-effort: a timed-out write degrades durability for
	// this event but never blocks the broadcast path.
	if err := h.store.InsertReading(ctx, reading); err != nil {
		logrus.WithError(err).WithField("device_id", device.ID).
			Warn("reading persist failed, continuing degraded")
	}
	h.recent.Add(reading)
	h.hub.Broadcast(websocket.EventTankReading, reading)

	if !reading.SensorAgreement {
		// Disagreeing sensors freeze all safety-relevant side effects; the
		// raw reading above is kept for diagnostics.
		logrus.WithField("device_id", device.ID).Debug("sensor disagreement, skipping decision and alerts")
		return
	}

	h.alerter.Evaluate(ctx, reading)
	h.runDecision(ctx, device, reading)
}

func (h *APIHandler) runDecision(ctx context.Context, device *data.Device, reading *data.Reading) {
	counterpart, err := h.store.LatestAgreedReading(ctx, reading.Tank.Counterpart())
	if err != nil {
		logrus.WithError(err).Warn("counterpart lookup failed, using defaults")
	}

	counterpartLevel := decision.DefaultCounterpartLevel
	if counterpart != nil {
		counterpartLevel = counterpart.LevelPercent
	}

	// The pump lives on the sump device; a top-tank reading controls its
	// counterpart's motor.
	pumpDeviceID := ""
	motorRunning := false
	switch {
	case device.Role == data.RoleLevelAndPump:
		pumpDeviceID = device.ID
		motorRunning = reading.MotorRunning
	case counterpart != nil:
		pumpDeviceID = counterpart.DeviceID
		motorRunning = counterpart.MotorRunning
	}
	if pumpDeviceID == "" {
		return // no pump-capable device known yet
	}

	now := time.Now().UTC()
	in := decision.Input{
		Tank:             reading.Tank,
		Level:            reading.LevelPercent,
		CounterpartLevel: counterpartLevel,
		MotorRunning:     motorRunning,
		Now:              now,
	}
	if last, err := h.store.LastMotorEvent(ctx, pumpDeviceID); err == nil && last != nil {
		if last.Transition == data.MotorStarted {
			in.RunningSince = last.Timestamp
		} else {
			in.LastStoppedAt = last.Timestamp
		}
	}

	d := decision.Decide(in, h.thresholds)
	if d.Action == decision.Maintain {
		return
	}

	// Manual override freezes automatic control; the operator owns the pump.
	if reading.ManualOverride {
		logrus.WithField("device_id", pumpDeviceID).Debug("manual override active, suppressing auto command")
		return
	}
	if d.Action == decision.Start && !reading.AutoMode {
		return
	}

	if !h.cooldown.Allow(pumpDeviceID, d.Action, now) {
		return
	}

	cmdType := data.CommandMotorStart
	critical := false
	if d.Action == decision.Stop {
		cmdType = data.CommandMotorStop
		critical = true // safety stops must never be dropped by the queue cap
	}
	cmd := &data.Command{
		DeviceID: pumpDeviceID,
		Type:     cmdType,
		Payload:  map[string]any{"reason": d.Reason},
		Critical: critical,
	}
	h.dispatchCommand(ctx, cmd)

	if d.Reason == decision.ReasonMaxRuntime && !in.RunningSince.IsZero() {
		h.alerter.MotorOverrun(ctx, pumpDeviceID, now.Sub(in.RunningSince))
	}
}

// dispatchCommand enqueues a command and, when the target has a live
// channel, pushes the next due command immediately. Queue state stays the
// single source of truth so redelivery and acks behave the same on both
// paths.
func (h *APIHandler) dispatchCommand(ctx context.Context, cmd *data.Command) *data.Command {
	cmd = h.queue.Enqueue(cmd)
	h.persistCommand(ctx, cmd)

	logrus.WithFields(logrus.Fields{
		"device_id":  cmd.DeviceID,
		"command_id": cmd.ID,
		"type":       cmd.Type,
	}).Info("command enqueued")

	if h.hub.DeviceConnected(cmd.DeviceID) {
		if due := h.queue.Poll(cmd.DeviceID, time.Now().UTC()); due != nil {
			if h.hub.SendToDevice(cmd.DeviceID, "command", due) {
				h.persistCommand(ctx, due)
			}
		}
	}
	return cmd
}

func (h *APIHandler) persistCommand(ctx context.Context, cmd *data.Command) {
	if err := h.store.SaveCommand(ctx, cmd); err != nil {
		logrus.WithError(err).WithField("command_id", cmd.ID).Warn("command persist failed")
	}
}

func (h *APIHandler) onCommandExpire(cmd *data.Command) {
	logrus.WithFields(logrus.Fields{
		"device_id":  cmd.DeviceID,
		"command_id": cmd.ID,
	}).Warn("command expired without acknowledgment")
	h.persistCommand(context.Background(), cmd)
}

// motorStatusPayload is the wire shape for pump transition reports.
type motorStatusPayload struct {
	MotorRunning    bool     `json:"motor_running"`
	DurationSeconds float64  `json:"duration_seconds"`
	CurrentDraw     *float64 `json:"current_draw_amps"`
	Timestamp       string   `json:"timestamp"`
}

// HandleMotorStatus records a confirmed motor state transition.
func (h *APIHandler) HandleMotorStatus(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	device := h.verifyRequest(w, r, body)
	if device == nil {
		return
	}

	var p motorStatusPayload
	if err := json.Unmarshal(body, &p); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	h.processMotorStatus(r.Context(), device.ID, p)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "received"})
}

func (h *APIHandler) processMotorStatus(ctx context.Context, deviceID string, p motorStatusPayload) {
	unlock := h.lockDevice(deviceID)
	defer unlock()

	h.monitor.Touch(ctx, deviceID)

	transition := data.MotorStopped
	if p.MotorRunning {
		transition = data.MotorStarted
	}

	// Only confirmed transitions create events; a repeat of the last known
	// state is a status refresh, not a transition.
	last, err := h.store.LastMotorEvent(ctx, deviceID)
	if err == nil && last != nil && last.Transition == transition {
		return
	}

	event := &data.MotorEvent{
		DeviceID:    deviceID,
		Transition:  transition,
		Duration:    p.DurationSeconds,
		CurrentDraw: p.CurrentDraw,
		Timestamp:   time.Now().UTC(),
	}
	if p.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, p.Timestamp); err == nil {
			event.Timestamp = t.UTC()
		}
	}

	if err := h.store.InsertMotorEvent(ctx, event); err != nil {
		logrus.WithError(err).WithField("device_id", deviceID).
			Warn("motor event persist failed, continuing degraded")
	}
	h.hub.Broadcast(websocket.EventMotorStatus, event)

	if transition == data.MotorStopped {
		h.alerter.AcknowledgeMotorOverrun(ctx, deviceID)
	}
}

type heartbeatResponse struct {
	ServerTime      string `json:"server_time"`
	PendingCommands int    `json:"pending_commands"`
	PollRequired    bool   `json:"poll_required"`
}

// HandleHeartbeat answers a device heartbeat with server time and whether
// config or control commands await it.
func (h *APIHandler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	device := h.verifyRequest(w, r, body)
	if device == nil {
		return
	}

	h.monitor.Touch(r.Context(), device.ID)

	pending := h.queue.PendingCount(device.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(heartbeatResponse{
		ServerTime:      time.Now().UTC().Format(time.RFC3339),
		PendingCommands: pending,
		PollRequired:    pending > 0,
	})
}

// HandleCommandPoll returns at most one pending command for the device.
func (h *APIHandler) HandleCommandPoll(w http.ResponseWriter, r *http.Request) {
	device := h.verifyRequest(w, r, nil)
	if device == nil {
		return
	}

	h.monitor.Touch(r.Context(), device.ID)

	w.Header().Set("Content-Type", "application/json")
	cmd := h.queue.Poll(device.ID, time.Now().UTC())
	if cmd == nil {
		json.NewEncoder(w).Encode(map[string]any{"command": nil})
		return
	}
	h.persistCommand(r.Context(), cmd)
	json.NewEncoder(w).Encode(map[string]any{"command": cmd})
}

type ackPayload struct {
	CommandID string `json:"command_id"`
	Status    string `json:"status"`
}

// HandleCommandAck marks a command acknowledged. Unknown or repeated ids are
// a silent no-op.
func (h *APIHandler) HandleCommandAck(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	device := h.verifyRequest(w, r, body)
	if device == nil {
		return
	}

	var p ackPayload
	if err := json.Unmarshal(body, &p); err != nil || p.CommandID == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	h.acknowledge(r.Context(), device.ID, p.CommandID, p.Status)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *APIHandler) acknowledge(ctx context.Context, deviceID, commandID, status string) {
	cmd, changed := h.queue.Acknowledge(deviceID, commandID, status, time.Now().UTC())
	if !changed {
		return
	}
	h.persistCommand(ctx, cmd)
	logrus.WithFields(logrus.Fields{
		"device_id":  deviceID,
		"command_id": commandID,
		"ack_status": status,
	}).Info("command acknowledged")
}

type systemAlertPayload struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// HandleSystemAlert ingests an alert the firmware raised locally.
func (h *APIHandler) HandleSystemAlert(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	device := h.verifyRequest(w, r, body)
	if device == nil {
		return
	}

	var p systemAlertPayload
	if err := json.Unmarshal(body, &p); err != nil || p.Message == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	severity := data.AlertSeverity(p.Severity)
	switch severity {
	case data.SeverityLow, data.SeverityMedium, data.SeverityHigh:
	default:
		severity = data.SeverityMedium
	}

	h.monitor.Touch(r.Context(), device.ID)
	h.alerter.ReportDeviceAlert(r.Context(), device.ID, p.Message, severity)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "received"})
}

// HandleDeviceWebSocket authenticates the handshake with the same signature
// headers as the request path, then upgrades and registers the device
// channel. A second connection from the same id supersedes the first.
func (h *APIHandler) HandleDeviceWebSocket(w http.ResponseWriter, r *http.Request) {
	device := h.verifyRequest(w, r, nil)
	if device == nil {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("device websocket upgrade failed")
		return
	}

	client := &websocket.Client{
		Hub:      h.hub,
		Conn:     conn,
		Send:     make(chan []byte, websocket.SendBufferSize),
		DeviceID: device.ID,
	}
	h.hub.RegisterClient(client)

	go client.WritePump()
	go client.ReadPump()

	logrus.WithField("device_id", device.ID).Info("device channel established")
}

// routeDeviceMessage dispatches an inbound device frame by declared type.
// The channel was authenticated at the handshake.
func (h *APIHandler) routeDeviceMessage(deviceID, msgType string, payload json.RawMessage) {
	ctx := context.Background()

	switch msgType {
	case websocket.DeviceMsgTelemetry:
		device, err := h.store.DeviceByID(ctx, deviceID)
		if err != nil || device == nil {
			return
		}
		reading, err := h.validator.ParseReading(payload, deviceID)
		if err != nil {
			logrus.WithError(err).WithField("device_id", deviceID).Warn("reading rejected")
			return
		}
		h.processReading(ctx, device, reading)

	case websocket.DeviceMsgMotorStatus:
		var p motorStatusPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return
		}
		h.processMotorStatus(ctx, deviceID, p)

	case websocket.DeviceMsgHeartbeat:
		h.monitor.Touch(ctx, deviceID)

	case websocket.DeviceMsgAlertReport:
		var p systemAlertPayload
		if err := json.Unmarshal(payload, &p); err != nil || p.Message == "" {
			return
		}
		h.monitor.Touch(ctx, deviceID)
		h.alerter.ReportDeviceAlert(ctx, deviceID, p.Message, data.AlertSeverity(p.Severity))

	case websocket.DeviceMsgCommandAck:
		var p ackPayload
		if err := json.Unmarshal(payload, &p); err != nil || p.CommandID == "" {
			return
		}
		h.acknowledge(ctx, deviceID, p.CommandID, p.Status)

	default:
		logrus.WithFields(logrus.Fields{
			"device_id": deviceID,
			"type":      msgType,
		}).Debug("unknown device message type")
	}
}

func (h *APIHandler) onDeviceConnect(deviceID string) {
	ctx := context.Background()
	h.monitor.Touch(ctx, deviceID)

	// Drain the next queued command onto the fresh channel.
	if due := h.queue.Poll(deviceID, time.Now().UTC()); due != nil {
		if h.hub.SendToDevice(deviceID, "command", due) {
			h.persistCommand(ctx, due)
		}
	}
}

func (h *APIHandler) onDeviceDisconnect(deviceID string) {
	h.monitor.MarkOffline(context.Background(), deviceID)
}

// --- Observer surface ---

type loginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleLogin authenticates an observer and issues a JWT.
func (h *APIHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var p loginPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	role, err := h.observers.AuthenticateUser(p.Username, p.Password)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	token, err := h.observers.GenerateJWT(p.Username, role)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": token, "role": role})
}

// HandleObserverWebSocket registers an observer stream.
func (h *APIHandler) HandleObserverWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("observer websocket upgrade failed")
		return
	}

	client := &websocket.Client{
		Hub:  h.hub,
		Conn: conn,
		Send: make(chan []byte, websocket.SendBufferSize),
	}
	h.hub.RegisterClient(client)

	go client.WritePump()
	go client.ReadPump()

	go h.sendInitialData(client)
}

// sendInitialData sends recent history to a newly connected observer.
func (h *APIHandler) sendInitialData(client *websocket.Client) {
	recentData := h.recent.GetRecent(50)
	if len(recentData) == 0 {
		return
	}

	raw, err := json.Marshal(recentData)
	if err != nil {
		return
	}
	messageBytes, err := json.Marshal(websocket.Envelope{Type: websocket.EventHistory, Payload: raw})
	if err != nil {
		return
	}

	if !client.TrySend(messageBytes) {
		logrus.Warn("observer gone before history send, discarding")
	}
}

type observerCommandPayload struct {
	Type     string         `json:"type"`
	Payload  map[string]any `json:"payload"`
	Critical bool           `json:"critical"`
}

// HandleObserverCommand enqueues a control or config command for a device,
// delivering immediately when it has a live channel.
func (h *APIHandler) HandleObserverCommand(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	var p observerCommandPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.Type == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	device, err := h.store.DeviceByID(r.Context(), deviceID)
	if err != nil || device == nil || !device.Active {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	cmd := h.dispatchCommand(r.Context(), &data.Command{
		DeviceID: deviceID,
		Type:     p.Type,
		Payload:  p.Payload,
		Critical: p.Critical,
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cmd)
}

type registerDevicePayload struct {
	ID         string          `json:"id"`
	Role       data.DeviceRole `json:"role"`
	HMACSecret string          `json:"hmac_secret"`
	Firmware   string          `json:"firmware"`
}

// HandleRegisterDevice provisions a device with its shared secret.
func (h *APIHandler) HandleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var p registerDevicePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.ID == "" || p.HMACSecret == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if p.Role != data.RoleLevelSensor && p.Role != data.RoleLevelAndPump {
		http.Error(w, "Bad Request: unknown role", http.StatusBadRequest)
		return
	}

	device := &data.Device{
		ID:         p.ID,
		Role:       p.Role,
		HMACSecret: p.HMACSecret,
		Firmware:   p.Firmware,
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.store.UpsertDevice(r.Context(), device); err != nil {
		logrus.WithError(err).Error("device registration failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(device)
}

// HandleDeactivateDevice retires a device. History is kept.
func (h *APIHandler) HandleDeactivateDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	if err := h.store.DeactivateDevice(r.Context(), deviceID); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	h.cooldown.Forget(deviceID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleListDevices returns all registered devices.
func (h *APIHandler) HandleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.store.ListDevices(r.Context())
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(devices)
}

// HandleListAlerts returns recent alerts, newest first.
func (h *APIHandler) HandleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.store.ListAlerts(r.Context(), 100)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(alerts)
}
