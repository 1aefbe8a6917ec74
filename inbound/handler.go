// Package inbound accepts signed callbacks from remote systems and applies
// the carried decision to a paused workflow. Verification happens before
// anything else touches the body; replayed deliveries are captured by the
// ledger and acknowledged without effect.
package inbound

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-webhook-relay/core"
	"github.com/goliatone/go-webhook-relay/signature"
)

const (
	// HeaderEndpoint carries the caller's registered endpoint id so the
	// right shared secret is used for verification.
	HeaderEndpoint = "X-Webhook-Endpoint"
	// HeaderStrict requests a 409 on duplicate callbacks instead of the
	// default idempotent acknowledgement.
	HeaderStrict = "X-Webhook-Strict"
)

// CallbackService is the slice of the relay service the processor needs.
type CallbackService interface {
	ResolveCallback(ctx context.Context, req core.CallbackRequest) (core.CallbackOutcome, error)
}

// Result reports how an inbound delivery was handled. Deduped means the
// replay ledger had already seen this exact delivery.
type Result struct {
	Deduped bool
	Outcome core.CallbackOutcome
}

type Processor struct {
	Verifier  signature.RequestVerifier
	Secrets   core.SecretResolver
	Ledger    core.ReplayLedger
	Service   CallbackService
	Logger    core.Logger
	ReplayTTL time.Duration
}

func NewProcessor(
	service CallbackService,
	secrets core.SecretResolver,
	ledger core.ReplayLedger,
	cfg core.Config,
	logger core.Logger,
) *Processor {
	maxAge := cfg.Signature.MaxAge
	if maxAge <= 0 {
		maxAge = core.DefaultConfig().Signature.MaxAge
	}
	return &Processor{
		Verifier: signature.RequestVerifier{MaxAge: maxAge},
		Secrets:  secrets,
		Ledger:   ledger,
		Service:  service,
		Logger:   glog.Ensure(logger),
		// Entries only need to outlive the freshness window; after that
		// the timestamp check rejects the replay on its own.
		ReplayTTL: 2 * maxAge,
	}
}

// Process verifies, deduplicates, parses, and applies one inbound delivery.
// Errors carry goerrors envelopes so the HTTP layer can map them directly.
func (p *Processor) Process(ctx context.Context, header http.Header, body []byte) (Result, error) {
	if p == nil || p.Service == nil {
		return Result{}, goerrors.New("inbound: processor is not configured", goerrors.CategoryInternal).
			WithTextCode(core.RelayErrorInternal)
	}

	endpointID := strings.TrimSpace(header.Get(HeaderEndpoint))
	if endpointID == "" {
		return Result{}, unauthorized("inbound: endpoint header is required")
	}
	if p.Secrets == nil {
		return Result{}, goerrors.New("inbound: secret resolver is required", goerrors.CategoryInternal).
			WithTextCode(core.RelayErrorInternal)
	}
	secret, err := p.Secrets.SecretForEndpoint(ctx, endpointID)
	if err != nil || strings.TrimSpace(secret) == "" {
		// Unknown endpoints get the same answer as bad signatures so
		// callers cannot probe for registered ids.
		return Result{}, unauthorized("inbound: signature verification failed")
	}

	sig, ts, err := p.Verifier.VerifyRequest(header, body, secret)
	if err != nil {
		p.Logger.Warn("inbound signature rejected", "endpoint_id", endpointID, "error", err.Error())
		return Result{}, unauthorized("inbound: signature verification failed")
	}

	if p.Ledger != nil {
		key := replayKey(endpointID, sig, ts)
		fresh, claimErr := p.Ledger.Claim(ctx, key, p.ReplayTTL)
		if claimErr != nil {
			return Result{}, goerrors.Wrap(claimErr, goerrors.CategoryInternal, "inbound: replay ledger failed").
				WithTextCode(core.RelayErrorInternal)
		}
		if !fresh {
			p.Logger.Info("inbound delivery deduplicated", "endpoint_id", endpointID)
			return Result{Deduped: true}, nil
		}
	}

	var req core.CallbackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return Result{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "inbound: invalid callback body").
			WithCode(http.StatusBadRequest).
			WithTextCode(core.RelayErrorBadInput)
	}
	if strict := strings.TrimSpace(header.Get(HeaderStrict)); strict != "" {
		if parsed, parseErr := strconv.ParseBool(strict); parseErr == nil && parsed {
			req.Strict = true
		}
	}

	outcome, err := p.Service.ResolveCallback(ctx, req)
	if err != nil {
		return Result{}, err
	}
	return Result{Outcome: outcome}, nil
}

func replayKey(endpointID, sig string, ts int64) string {
	return fmt.Sprintf("%s:%d:%s", endpointID, ts, sig)
}

func unauthorized(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(core.RelayErrorSignature)
}
