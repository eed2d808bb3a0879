package rpc

import (
	"context"
	"encoding/json"
	"time"

	"xmr-escrow/go-backend/internal/domains/escrow/domain"
)

type createResult struct {
	ContractID string              `json:"contract_id"`
	Secret     string              `json:"secret"`
	View       domain.ContractView `json:"view"`
}

type releaseResult struct {
	Outcome   domain.Outcome       `json:"outcome"`
	Message   string               `json:"message"`
	Retryable bool                 `json:"retryable"`
	View      *domain.ContractView `json:"view,omitempty"`
}

type escrowHandler func(s *Server, ctx context.Context, rawParams json.RawMessage, meta callMeta) (any, *rpcError)

// escrowMethods is the single list of service-backed methods; rpc.version
// advertises exactly these.
var escrowMethods = map[string]escrowHandler{
	"escrow.create": func(s *Server, ctx context.Context, rawParams json.RawMessage, meta callMeta) (any, *rpcError) {
		return s.idempotency.do(meta.idempotencyKey, meta.requestHash, func() (any, *rpcError) {
			return s.createContract(ctx, rawParams)
		})
	},
	"escrow.get": func(s *Server, ctx context.Context, rawParams json.RawMessage, _ callMeta) (any, *rpcError) {
		return s.getContract(ctx, rawParams)
	},
	"escrow.release": func(s *Server, ctx context.Context, rawParams json.RawMessage, _ callMeta) (any, *rpcError) {
		return s.releaseContract(ctx, rawParams)
	},
}

func (s *Server) dispatchEscrowRPC(ctx context.Context, method string, rawParams json.RawMessage, meta callMeta) (any, *rpcError, bool) {
	h, ok := escrowMethods[method]
	if !ok {
		return nil, nil, false
	}
	result, rpcErr := h(s, ctx, rawParams, meta)
	return result, rpcErr, true
}

func (s *Server) createContract(ctx context.Context, rawParams json.RawMessage) (any, *rpcError) {
	p, err := decodeCreateParams(rawParams)
	if err != nil {
		return nil, rpcInvalidParams()
	}
	created, err := s.service.CreateContract(ctx, p.ContractText, p.RecipientWallet)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return createResult{ContractID: created.ContractID, Secret: created.Secret, View: created.View}, nil
}

func (s *Server) getContract(ctx context.Context, rawParams json.RawMessage) (any, *rpcError) {
	id, outcome, err := decodeGetParams(rawParams)
	if err != nil {
		return nil, rpcInvalidParams()
	}
	view, err := s.service.ContractView(ctx, id, outcome)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return view, nil
}

func (s *Server) releaseContract(ctx context.Context, rawParams json.RawMessage) (any, *rpcError) {
	p, err := decodeReleaseParams(rawParams)
	if err != nil {
		return nil, rpcInvalidParams()
	}
	if ok, wait := s.allowReleaseAttempt(p.ContractID, time.Now()); !ok {
		return nil, &rpcError{
			Code:    codeReleaseRateLimited,
			Message: "too many release attempts, retry in " + retryAfterSeconds(wait) + "s",
		}
	}
	outcome, err := s.service.ReleaseFunds(ctx, p.ContractID, p.Passphrase)
	if err != nil {
		return nil, mapServiceError(err)
	}
	res := releaseResult{Outcome: outcome, Message: outcome.Message(), Retryable: outcome.Retryable()}
	if outcome == domain.OutcomeNotFound {
		return res, nil
	}
	view, err := s.service.ContractView(ctx, p.ContractID, outcome)
	if err != nil {
		// The outcome is authoritative; a failed re-read only loses the view.
		s.logger.Warn("contract view after release failed", "component", "rpc", "contract_id", p.ContractID, "error", err.Error())
		return res, nil
	}
	res.View = &view
	return res, nil
}
