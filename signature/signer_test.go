package signature

import (
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	payload := []byte(`{"event":"lead.qualified","id":"42"}`)
	ts := time.Unix(1700000000, 0)

	signed, err := Sign(payload, "s3cret", ts)
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}
	if signed == "" {
		t.Fatal("expected non-empty signature")
	}
	if err := Verify(payload, "s3cret", signed, ts.Unix(), 5*time.Minute, ts.Add(time.Minute)); err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
}

func TestSignRequiresSecret(t *testing.T) {
	if _, err := Sign([]byte("x"), "  ", time.Now()); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	payload := []byte(`{"decision":"accepted"}`)
	ts := time.Unix(1700000000, 0)
	signed, err := Sign(payload, "s3cret", ts)
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	tampered := []byte(`{"decision":"rejected"}`)
	err = Verify(tampered, "s3cret", signed, ts.Unix(), 5*time.Minute, ts)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	payload := []byte(`{"ok":true}`)
	ts := time.Unix(1700000000, 0)
	signed, err := Sign(payload, "s3cret", ts)
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}
	if err := Verify(payload, "other", signed, ts.Unix(), 0, ts); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	payload := []byte(`{"ok":true}`)
	ts := time.Unix(1700000000, 0)
	signed, err := Sign(payload, "s3cret", ts)
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	// Six minutes later with a five minute window.
	err = Verify(payload, "s3cret", signed, ts.Unix(), 5*time.Minute, ts.Add(6*time.Minute))
	if !errors.Is(err, ErrStaleTimestamp) {
		t.Fatalf("expected ErrStaleTimestamp, got %v", err)
	}

	// Future timestamps are rejected the same way.
	err = Verify(payload, "s3cret", signed, ts.Unix(), 5*time.Minute, ts.Add(-6*time.Minute))
	if !errors.Is(err, ErrStaleTimestamp) {
		t.Fatalf("expected ErrStaleTimestamp for future drift, got %v", err)
	}
}

func TestVerifyAcceptsUppercaseHex(t *testing.T) {
	payload := []byte(`{"ok":true}`)
	ts := time.Unix(1700000000, 0)
	signed, err := Sign(payload, "s3cret", ts)
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}
	upper := ""
	for _, r := range signed {
		if r >= 'a' && r <= 'f' {
			r = r - 'a' + 'A'
		}
		upper += string(r)
	}
	if err := Verify(payload, "s3cret", upper, ts.Unix(), 0, ts); err != nil {
		t.Fatalf("expected uppercase signature to verify, got %v", err)
	}
}

func TestApplySetsHeaders(t *testing.T) {
	header := http.Header{}
	payload := []byte(`{"ok":true}`)
	ts := time.Unix(1700000000, 0)

	if err := Apply(header, payload, "s3cret", ts); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if header.Get(HeaderSignature) == "" {
		t.Fatal("expected signature header to be set")
	}
	if got := header.Get(HeaderTimestamp); got != strconv.FormatInt(ts.Unix(), 10) {
		t.Fatalf("unexpected timestamp header: %s", got)
	}
}

func TestRequestVerifier(t *testing.T) {
	payload := []byte(`{"workflow_id":"wf-1","decision":"accepted"}`)
	ts := time.Unix(1700000000, 0)
	header := http.Header{}
	if err := Apply(header, payload, "s3cret", ts); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	verifier := RequestVerifier{
		MaxAge: 5 * time.Minute,
		Now:    func() time.Time { return ts.Add(time.Minute) },
	}
	sig, gotTS, err := verifier.VerifyRequest(header, payload, "s3cret")
	if err != nil {
		t.Fatalf("VerifyRequest returned error: %v", err)
	}
	if sig == "" || gotTS != ts.Unix() {
		t.Fatalf("unexpected verification result: sig=%q ts=%d", sig, gotTS)
	}

	header.Set(HeaderTimestamp, "not-a-number")
	if _, _, err := verifier.VerifyRequest(header, payload, "s3cret"); err == nil {
		t.Fatal("expected error for malformed timestamp")
	}

	header.Del(HeaderTimestamp)
	if _, _, err := verifier.VerifyRequest(header, payload, "s3cret"); !errors.Is(err, ErrMissingTimestamp) {
		t.Fatalf("expected ErrMissingTimestamp, got %v", err)
	}

	header.Del(HeaderSignature)
	if _, _, err := verifier.VerifyRequest(header, payload, "s3cret"); !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("expected ErrMissingSignature, got %v", err)
	}
}
