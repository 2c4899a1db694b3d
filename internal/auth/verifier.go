// internal/auth/verifier.go
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"tankguard-gateway/internal/data"
)

var (
	// ErrUnauthorized covers bad, missing, or expired signatures. The core
	// never retries; the device must resend with a fresh timestamp.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnknownDevice is returned for ids with no stored credentials.
	ErrUnknownDevice = fmt.Errorf("%w: unknown device", ErrUnauthorized)
)

// CredentialSource looks up device identity and shared secret.
type CredentialSource interface {
	DeviceByID(ctx context.Context, id string) (*data.Device, error)
}

// Verifier validates inbound device requests against stored credentials.
// Stateless aside from the credential lookup.
type Verifier struct {
	creds       CredentialSource
	driftWindow time.Duration
	now         func() time.Time
}

func NewVerifier(creds CredentialSource, driftWindow time.Duration) *Verifier {
	return &Verifier{creds: creds, driftWindow: driftWindow, now: time.Now}
}

// Verify recomputes the keyed hash over deviceID+body+timestamp and checks
// the declared timestamp against the drift window. On success it returns the
// verified device record. Every failure maps to ErrUnauthorized.
func (v *Verifier) Verify(ctx context.Context, deviceID string, body []byte, timestamp, signature string) (*data.Device, error) {
	if deviceID == "" || timestamp == "" || signature == "" {
		return nil, fmt.Errorf("%w: missing credentials", ErrUnauthorized)
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad timestamp", ErrUnauthorized)
	}
	drift := v.now().Unix() - ts
	if drift < 0 {
		drift = -drift
	}
	if time.Duration(drift)*time.Second > v.driftWindow {
		return nil, fmt.Errorf("%w: timestamp outside drift window", ErrUnauthorized)
	}

	device, err := v.creds.DeviceByID(ctx, deviceID)
	if err != nil || device == nil {
		return nil, ErrUnknownDevice
	}
	if !device.Active {
		return nil, fmt.Errorf("%w: device deactivated", ErrUnauthorized)
	}

	expected := Sign(device.HMACSecret, deviceID, body, timestamp)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return nil, fmt.Errorf("%w: signature mismatch", ErrUnauthorized)
	}

	return device, nil
}

// Sign computes the hex HMAC-SHA256 over deviceID || body || timestamp.
// Exported so client tooling can produce matching signatures.
func Sign(secret, deviceID string, body []byte, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(deviceID))
	mac.Write(body)
	mac.Write([]byte(timestamp))
	return hex.EncodeToString(mac.Sum(nil))
}
