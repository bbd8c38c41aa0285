// Package carrier fronts the carrier tracking systems. The gateway
// validates PRO formats, throttles outbound calls, and normalizes
// backend failures into tri-state lookup results so the orchestrator
// never sees a raw transport error.
package carrier

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/wwexlabs/freightdesk/agent/contract"
)

// Backend is the raw carrier API surface the gateway wraps.
type Backend interface {
	FetchByPRO(ctx context.Context, pro string) (contractx.ShipmentRecord, bool, error)
	Search(ctx context.Context, c contractx.Criteria) ([]contractx.ShipmentRecord, error)
}

// Config tunes the gateway. PROFormats overrides the default carrier
// pattern set ("carrier:regex" pairs).
type Config struct {
	MaxRequestsPerMinute int               `envconfig:"MAX_REQUESTS_PER_MINUTE" split_words:"true" default:"60"`
	PROFormats           map[string]string `envconfig:"PRO_FORMATS" split_words:"true"`
}

type Gateway struct {
	backend   Backend
	validator *Validator
	limiter   *tokenBucket
}

func NewGateway(cfg Config, backend Backend) (*Gateway, error) {
	if backend == nil {
		return nil, fmt.Errorf("carrier backend is required")
	}
	validator, err := NewValidator(cfg.PROFormats)
	if err != nil {
		return nil, err
	}
	return &Gateway{
		backend:   backend,
		validator: validator,
		limiter:   newTokenBucket(cfg.MaxRequestsPerMinute),
	}, nil
}

// ValidatePRO reports the carrier whose PRO format matches.
func (g *Gateway) ValidatePRO(pro string) (string, bool) {
	return g.validator.ValidatePRO(pro)
}

// LookupByPRO resolves a single shipment. An unknown PRO is NOT_FOUND;
// transport failures and throttling come back as ERROR results, never
// as error returns.
func (g *Gateway) LookupByPRO(ctx context.Context, pro string) (contractx.LookupResult, error) {
	if err := ctx.Err(); err != nil {
		return contractx.LookupResult{}, err
	}
	pro = strings.ToUpper(strings.TrimSpace(pro))
	if pro == "" {
		return contractx.LookupResult{}, fmt.Errorf("%w: pro is required", contractx.ErrValidation)
	}

	if !g.limiter.allow() {
		log.Warn().Str("pro", pro).Msg("carrier lookup rate limited")
		return contractx.LookupResult{
			Status: contractx.LookupError,
			Reason: contractx.ErrRateLimited.Error(),
		}, nil
	}

	rec, found, err := g.backend.FetchByPRO(ctx, pro)
	if err != nil {
		if ctx.Err() != nil {
			return contractx.LookupResult{}, ctx.Err()
		}
		log.Warn().Err(err).Str("pro", pro).Msg("carrier lookup failed")
		return contractx.LookupResult{
			Status: contractx.LookupError,
			Reason: fmt.Sprintf("%v: %v", contractx.ErrCarrierUnavailable, err),
		}, nil
	}
	if !found {
		return contractx.LookupResult{Status: contractx.LookupNotFound}, nil
	}
	return contractx.LookupResult{Status: contractx.LookupFound, Record: rec}, nil
}

// LookupByCriteria searches shipments matching partial criteria. The
// result order is the backend's; empty is a valid answer.
func (g *Gateway) LookupByCriteria(ctx context.Context, c contractx.Criteria) ([]contractx.ShipmentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Empty() {
		return nil, fmt.Errorf("%w: criteria is empty", contractx.ErrValidation)
	}
	if !g.limiter.allow() {
		return nil, fmt.Errorf("%w: carrier search throttled", contractx.ErrRateLimited)
	}

	recs, err := g.backend.Search(ctx, c)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", contractx.ErrCarrierUnavailable, err)
	}
	return recs, nil
}
