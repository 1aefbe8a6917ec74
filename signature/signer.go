// Package signature implements the shared-secret HMAC scheme used on both
// legs of the relay: outbound deliveries are signed, inbound callbacks are
// verified. The signature covers the unix timestamp and the exact payload
// bytes, so any mutation of either invalidates it.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderSignature = "X-Webhook-Signature-256"
	HeaderTimestamp = "X-Webhook-Timestamp"
)

var (
	ErrMissingSecret    = errors.New("signature: secret is required")
	ErrMissingSignature = errors.New("signature: signature header is required")
	ErrMissingTimestamp = errors.New("signature: timestamp header is required")
	ErrInvalidSignature = errors.New("signature: signature mismatch")
	ErrStaleTimestamp   = errors.New("signature: timestamp outside allowed window")
)

// Sign computes the hex HMAC-SHA256 of "<unix-ts>.<payload>" under secret.
func Sign(payload []byte, secret string, ts time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", ErrMissingSecret
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts.Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify checks signature against payload and timestamp using a constant
// time comparison. maxAge bounds clock skew in both directions; a zero or
// negative maxAge disables the freshness check.
func Verify(payload []byte, secret, signature string, ts int64, maxAge time.Duration, now time.Time) error {
	if strings.TrimSpace(secret) == "" {
		return ErrMissingSecret
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrMissingSignature
	}
	if maxAge > 0 {
		drift := now.Sub(time.Unix(ts, 0))
		if drift < 0 {
			drift = -drift
		}
		if drift > maxAge {
			return fmt.Errorf("%w: %s drift exceeds %s", ErrStaleTimestamp, drift.Truncate(time.Second), maxAge)
		}
	}
	expected, err := Sign(payload, secret, time.Unix(ts, 0))
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(signature))) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

// Apply stamps the signature headers onto an outbound request header set.
func Apply(header http.Header, payload []byte, secret string, ts time.Time) error {
	signed, err := Sign(payload, secret, ts)
	if err != nil {
		return err
	}
	header.Set(HeaderSignature, signed)
	header.Set(HeaderTimestamp, strconv.FormatInt(ts.Unix(), 10))
	return nil
}

// RequestVerifier validates the signature headers of an inbound request
// body. Now is injectable for tests and defaults to the wall clock.
type RequestVerifier struct {
	MaxAge time.Duration
	Now    func() time.Time
}

// VerifyRequest checks the header pair against body. It returns the parsed
// signature and timestamp so callers can derive a replay key from them.
func (v RequestVerifier) VerifyRequest(header http.Header, body []byte, secret string) (string, int64, error) {
	signature := strings.TrimSpace(header.Get(HeaderSignature))
	if signature == "" {
		return "", 0, ErrMissingSignature
	}
	rawTS := strings.TrimSpace(header.Get(HeaderTimestamp))
	if rawTS == "" {
		return "", 0, ErrMissingTimestamp
	}
	ts, err := strconv.ParseInt(rawTS, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("signature: invalid timestamp %q: %w", rawTS, err)
	}
	now := time.Now().UTC()
	if v.Now != nil {
		now = v.Now().UTC()
	}
	if err := Verify(body, secret, signature, ts, v.MaxAge, now); err != nil {
		return "", 0, err
	}
	return strings.ToLower(signature), ts, nil
}
