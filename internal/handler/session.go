package handler

import (
	"net/http"
	"time"

	"github.com/idudko/fhe-telemetry/internal/model"
)

type challengeRequest struct {
	Address model.Address `json:"address"`
}

type challengeResponse struct {
	Challenge string        `json:"challenge"`
	Address   model.Address `json:"address"`
	ExpiresAt time.Time     `json:"expiresAt"`
}

// sessionRequest carries a challenge signed by the wallet. PublicKey is the
// PKIX DER key and Signature an ASN.1 ECDSA signature, both base64 in JSON.
type sessionRequest struct {
	Challenge string `json:"challenge"`
	PublicKey []byte `json:"publicKey"`
	Signature []byte `json:"signature"`
}

type sessionResponse struct {
	Token     string        `json:"token"`
	Address   model.Address `json:"address"`
	ExpiresAt time.Time     `json:"expiresAt"`
}

// ChallengeHandler starts a wallet connection by handing out a nonce for the
// address to sign.
func (h *Handler) ChallengeHandler(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	challenge, exp, err := h.issuer.IssueChallenge(req.Address)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, challengeResponse{Challenge: challenge, Address: req.Address, ExpiresAt: exp})
}

// SessionHandler connects a wallet: it issues a bearer token once the
// challenge signature proves control of the address.
func (h *Handler) SessionHandler(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	token, addr, exp, err := h.issuer.Authenticate(req.Challenge, req.PublicKey, req.Signature)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sessionResponse{Token: token, Address: addr, ExpiresAt: exp})
}
