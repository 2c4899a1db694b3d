// internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"tankguard-gateway/internal/data"
)

// Store wraps the SQLite database connection and schema lifecycle. All
// writes run under a bounded timeout; callers treat failures as degraded
// mode, never as fatal to ingestion.
type Store struct {
	db           *sql.DB
	writeTimeout time.Duration
}

// Open initializes the database connection, creating directories as needed.
func Open(path string, writeTimeout time.Duration) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &Store{db: db, writeTimeout: writeTimeout}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InitSchema ensures baseline tables exist.
func (s *Store) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS devices (
			id TEXT PRIMARY KEY,
			role TEXT NOT NULL,
			hmac_secret TEXT NOT NULL,
			remote_addr TEXT,
			firmware TEXT,
			active INTEGER NOT NULL DEFAULT 1,
			online INTEGER NOT NULL DEFAULT 0,
			last_seen TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		);`,
		`CREATE TABLE IF NOT EXISTS readings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id TEXT NOT NULL,
			tank_role TEXT NOT NULL,
			level_percent REAL NOT NULL,
			volume_liters REAL NOT NULL,
			sensor_healthy INTEGER NOT NULL,
			float_switch INTEGER,
			sensor_agreement INTEGER NOT NULL,
			motor_running INTEGER NOT NULL,
			manual_override INTEGER NOT NULL,
			auto_mode INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_readings_tank_time ON readings(tank_role, recorded_at);`,
		`CREATE TABLE IF NOT EXISTS motor_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id TEXT NOT NULL,
			transition TEXT NOT NULL,
			duration_seconds REAL,
			current_draw REAL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			severity TEXT NOT NULL,
			device_id TEXT NOT NULL,
			message TEXT NOT NULL,
			resolved INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			resolved_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_device_kind ON alerts(device_id, kind, resolved);`,
		`CREATE TABLE IF NOT EXISTS commands (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			type TEXT NOT NULL,
			payload TEXT,
			status TEXT NOT NULL,
			critical INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			delivered_at TEXT,
			acked_at TEXT,
			ack_status TEXT
		);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *Store) writeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.writeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.writeTimeout)
}

const timeLayout = "2006-01-02T15:04:05.000Z"

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, s.String)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}

// UpsertDevice registers a device or refreshes its metadata. The secret and
// role are only written on first registration unless explicitly changed.
func (s *Store) UpsertDevice(ctx context.Context, d *data.Device) error {
	ctx, cancel := s.writeCtx(ctx)
	defer cancel()

	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (id, role, hmac_secret, remote_addr, firmware, active, online, last_seen, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			role = excluded.role,
			hmac_secret = excluded.hmac_secret,
			remote_addr = excluded.remote_addr,
			firmware = excluded.firmware,
			active = excluded.active`,
		d.ID, string(d.Role), d.HMACSecret, d.RemoteAddr, d.Firmware,
		boolInt(d.Active), boolInt(d.Online), fmtTime(d.LastSeen), fmtTime(d.CreatedAt))
	return err
}

// DeviceByID returns the device record, or nil when unknown. Satisfies
// auth.CredentialSource.
func (s *Store) DeviceByID(ctx context.Context, id string) (*data.Device, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, role, hmac_secret, remote_addr, firmware, active, online, last_seen, created_at
		FROM devices WHERE id = ?`, id)
	return scanDevice(row)
}

// ListDevices returns all registered devices, active and deactivated.
func (s *Store) ListDevices(ctx context.Context) ([]*data.Device, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, hmac_secret, remote_addr, firmware, active, online, last_seen, created_at
		FROM devices ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*data.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*data.Device, error) {
	var d data.Device
	var role string
	var remoteAddr, firmware, lastSeen, createdAt sql.NullString
	var active, online int
	err := row.Scan(&d.ID, &role, &d.HMACSecret, &remoteAddr, &firmware, &active, &online, &lastSeen, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d.Role = data.DeviceRole(role)
	d.RemoteAddr = remoteAddr.String
	d.Firmware = firmware.String
	d.Active = active == 1
	d.Online = online == 1
	d.LastSeen = parseTime(lastSeen)
	d.CreatedAt = parseTime(createdAt)
	return &d, nil
}

// TouchDevice updates last-seen and marks the device online.
func (s *Store) TouchDevice(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := s.writeCtx(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`UPDATE devices SET last_seen = ?, online = 1 WHERE id = ?`, fmtTime(at), id)
	return err
}

// SetDeviceOnline flips the liveness flag.
func (s *Store) SetDeviceOnline(ctx context.Context, id string, online bool) error {
	ctx, cancel := s.writeCtx(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`UPDATE devices SET online = ? WHERE id = ?`, boolInt(online), id)
	return err
}

// DeactivateDevice retires a device without deleting its history.
func (s *Store) DeactivateDevice(ctx context.Context, id string) error {
	ctx, cancel := s.writeCtx(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`UPDATE devices SET active = 0, online = 0 WHERE id = ?`, id)
	return err
}

// InsertReading appends one telemetry sample. Readings are append-only.
func (s *Store) InsertReading(ctx context.Context, r *data.Reading) error {
	ctx, cancel := s.writeCtx(ctx)
	defer cancel()

	var floatSwitch any
	if r.FloatSwitch != nil {
		floatSwitch = boolInt(*r.FloatSwitch)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO readings (device_id, tank_role, level_percent, volume_liters, sensor_healthy,
			float_switch, sensor_agreement, motor_running, manual_override, auto_mode, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.DeviceID, string(r.Tank), r.LevelPercent, r.VolumeLiters, boolInt(r.SensorHealthy),
		floatSwitch, boolInt(r.SensorAgreement), boolInt(r.MotorRunning),
		boolInt(r.ManualOverride), boolInt(r.AutoMode), fmtTime(r.Timestamp))
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		r.ID = id
	}
	return nil
}

// LatestAgreedReading returns the newest reading for a tank with the
// dual-sensor agreement flag set, or nil when the tank has never agreed.
func (s *Store) LatestAgreedReading(ctx context.Context, tank data.TankRole) (*data.Reading, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, device_id, tank_role, level_percent, volume_liters, sensor_healthy,
			float_switch, sensor_agreement, motor_running, manual_override, auto_mode, recorded_at
		FROM readings WHERE tank_role = ? AND sensor_agreement = 1
		ORDER BY recorded_at DESC, id DESC LIMIT 1`, string(tank))
	return scanReading(row)
}

func scanReading(row rowScanner) (*data.Reading, error) {
	var r data.Reading
	var tank, recordedAt string
	var healthy, agreement, motor, manual, auto int
	var floatSwitch sql.NullInt64
	err := row.Scan(&r.ID, &r.DeviceID, &tank, &r.LevelPercent, &r.VolumeLiters, &healthy,
		&floatSwitch, &agreement, &motor, &manual, &auto, &recordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Tank = data.TankRole(tank)
	r.SensorHealthy = healthy == 1
	r.SensorAgreement = agreement == 1
	r.MotorRunning = motor == 1
	r.ManualOverride = manual == 1
	r.AutoMode = auto == 1
	if floatSwitch.Valid {
		v := floatSwitch.Int64 == 1
		r.FloatSwitch = &v
	}
	r.Timestamp = parseTime(sql.NullString{String: recordedAt, Valid: true})
	return &r, nil
}

// InsertMotorEvent records a confirmed pump transition.
func (s *Store) InsertMotorEvent(ctx context.Context, e *data.MotorEvent) error {
	ctx, cancel := s.writeCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO motor_events (device_id, transition, duration_seconds, current_draw, recorded_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.DeviceID, e.Transition, e.Duration, e.CurrentDraw, fmtTime(e.Timestamp))
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

// LastMotorEvent returns the most recent transition for a device, or nil.
func (s *Store) LastMotorEvent(ctx context.Context, deviceID string) (*data.MotorEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, device_id, transition, duration_seconds, current_draw, recorded_at
		FROM motor_events WHERE device_id = ? ORDER BY recorded_at DESC, id DESC LIMIT 1`, deviceID)

	var e data.MotorEvent
	var recordedAt string
	var duration sql.NullFloat64
	var draw sql.NullFloat64
	err := row.Scan(&e.ID, &e.DeviceID, &e.Transition, &duration, &draw, &recordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Duration = duration.Float64
	if draw.Valid {
		e.CurrentDraw = &draw.Float64
	}
	e.Timestamp = parseTime(sql.NullString{String: recordedAt, Valid: true})
	return &e, nil
}

// CreateAlert persists a new alert and fills in its id.
func (s *Store) CreateAlert(ctx context.Context, a *data.Alert) error {
	ctx, cancel := s.writeCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (kind, severity, device_id, message, resolved, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		a.Kind, string(a.Severity), a.DeviceID, a.Message, fmtTime(a.CreatedAt))
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		a.ID = id
	}
	return nil
}

// UnresolvedAlert finds the open alert for (device, kind), or nil.
func (s *Store) UnresolvedAlert(ctx context.Context, deviceID, kind string) (*data.Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, severity, device_id, message, resolved, created_at, resolved_at
		FROM alerts WHERE device_id = ? AND kind = ? AND resolved = 0
		ORDER BY created_at DESC LIMIT 1`, deviceID, kind)
	return scanAlert(row)
}

// ResolveAlert marks an alert resolved.
func (s *Store) ResolveAlert(ctx context.Context, id int64, at time.Time) error {
	ctx, cancel := s.writeCtx(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET resolved = 1, resolved_at = ? WHERE id = ?`, fmtTime(at), id)
	return err
}

// ListAlerts returns the newest alerts first, up to limit.
func (s *Store) ListAlerts(ctx context.Context, limit int) ([]*data.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, severity, device_id, message, resolved, created_at, resolved_at
		FROM alerts ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*data.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func scanAlert(row rowScanner) (*data.Alert, error) {
	var a data.Alert
	var severity, createdAt string
	var resolvedAt sql.NullString
	var resolved int
	err := row.Scan(&a.ID, &a.Kind, &severity, &a.DeviceID, &a.Message, &resolved, &createdAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Severity = data.AlertSeverity(severity)
	a.Resolved = resolved == 1
	a.CreatedAt = parseTime(sql.NullString{String: createdAt, Valid: true})
	if resolvedAt.Valid {
		t := parseTime(resolvedAt)
		a.ResolvedAt = &t
	}
	return &a, nil
}

// SaveCommand mirrors queue state durably so command history survives
// restarts. Upsert keyed by command id.
func (s *Store) SaveCommand(ctx context.Context, c *data.Command) error {
	ctx, cancel := s.writeCtx(ctx)
	defer cancel()

	payload, err := json.Marshal(c.Payload)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO commands (id, device_id, type, payload, status, critical, created_at, delivered_at, acked_at, ack_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			delivered_at = excluded.delivered_at,
			acked_at = excluded.acked_at,
			ack_status = excluded.ack_status`,
		c.ID, c.DeviceID, c.Type, string(payload), string(c.Status), boolInt(c.Critical),
		fmtTime(c.CreatedAt), nullTime(c.DeliveredAt), nullTime(c.AckedAt), c.AckStatus)
	return err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return fmtTime(t)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
