package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"xmr-escrow/go-backend/internal/domains/escrow/domain"
)

var errInvalidParams = errors.New("invalid params")

type createParams struct {
	ContractText    string `json:"contract_text"`
	RecipientWallet string `json:"recipient_wallet"`
}

type getParams struct {
	ContractID string `json:"contract_id"`
	Outcome    string `json:"outcome,omitempty"`
}

type releaseParams struct {
	ContractID string `json:"contract_id"`
	Passphrase string `json:"passphrase"`
}

// decodeParams accepts either a named object or a positional array whose
// elements fill the given string fields in order.
func decodeParams(raw json.RawMessage, into any, positional ...*string) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return errInvalidParams
	}
	if trimmed[0] == '[' {
		var arr []string
		if err := json.Unmarshal(trimmed, &arr); err != nil || len(arr) == 0 || len(arr) > len(positional) {
			return errInvalidParams
		}
		for i, v := range arr {
			*positional[i] = v
		}
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return errInvalidParams
	}
	return nil
}

func decodeCreateParams(raw json.RawMessage) (createParams, error) {
	var p createParams
	if err := decodeParams(raw, &p, &p.ContractText, &p.RecipientWallet); err != nil {
		return createParams{}, err
	}
	if strings.TrimSpace(p.RecipientWallet) == "" {
		return createParams{}, errInvalidParams
	}
	return p, nil
}

func decodeGetParams(raw json.RawMessage) (string, domain.Outcome, error) {
	var p getParams
	if err := decodeParams(raw, &p, &p.ContractID, &p.Outcome); err != nil {
		return "", "", err
	}
	id := strings.TrimSpace(p.ContractID)
	if id == "" {
		return "", "", errInvalidParams
	}
	// Unknown outcome codes are dropped, like an unrecognised msg query value.
	outcome, _ := domain.ParseOutcome(strings.TrimSpace(p.Outcome))
	return id, outcome, nil
}

func decodeReleaseParams(raw json.RawMessage) (releaseParams, error) {
	var p releaseParams
	if err := decodeParams(raw, &p, &p.ContractID, &p.Passphrase); err != nil {
		return releaseParams{}, err
	}
	p.ContractID = strings.TrimSpace(p.ContractID)
	if p.ContractID == "" {
		return releaseParams{}, errInvalidParams
	}
	return p, nil
}
